package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/photoshot-be/internal/api/handler"
	"github.com/cuongbtq/photoshot-be/internal/auth"
	"github.com/cuongbtq/photoshot-be/internal/metrics"
)

// Options carries what the router needs beyond the handler dependencies
type Options struct {
	ServiceName string
	Verifier    *auth.Verifier
	Metrics     *metrics.Metrics
	// HealthCheck, when set, is probed by /health
	HealthCheck func(ctx context.Context) error
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(opts.Metrics.Middleware())

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "photoshot-api"
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if opts.HealthCheck != nil {
			if err := opts.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Error("Health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))

	predictionHandler := handler.NewPredictionHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(opts.Verifier, deps.Logger))
	{
		predictions := v1.Group("/predictions")
		{
			// POST /api/v1/predictions - Launch a batch of generations
			predictions.POST("", predictionHandler.CreatePredictions)

			// GET /api/v1/predictions - List predictions with pagination
			predictions.GET("", predictionHandler.ListPredictions)

			// GET /api/v1/predictions/:prediction_id - Reconcile and report status
			predictions.GET("/:prediction_id", predictionHandler.GetPrediction)
		}

		// GET /api/v1/usage - Usage counter and remaining quota
		v1.GET("/usage", predictionHandler.GetUsage)
	}

	return r
}
