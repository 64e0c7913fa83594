package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/quota"
	"github.com/cuongbtq/photoshot-be/internal/storage"
)

// ContextUserIDKey is the gin context key holding the authenticated user id
const ContextUserIDKey = "user_id"

// Generator runs the fan-out generate flow
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest, user domain.UserAccount) (*prediction.GenerateResult, error)
}

// Reconciler checks the status of one prediction
type Reconciler interface {
	Reconcile(ctx context.Context, req prediction.ReconcileRequest) (*prediction.ReconcileResult, error)
}

// Store reads accounts and prediction history
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.UserAccount, error)
	ListPredictions(ctx context.Context, filter storage.PredictionFilter) ([]domain.Prediction, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Generator  Generator
	Reconciler Reconciler
	Store      Store
	Cap        int
}

// PredictionHandler handles prediction-related HTTP requests
type PredictionHandler struct {
	logger     *slog.Logger
	generator  Generator
	reconciler Reconciler
	store      Store
	cap        int
}

// NewPredictionHandler creates a new PredictionHandler instance
func NewPredictionHandler(deps *Dependencies) *PredictionHandler {
	limit := deps.Cap
	if limit <= 0 {
		limit = quota.DefaultCap
	}
	return &PredictionHandler{
		logger:     deps.Logger,
		generator:  deps.Generator,
		reconciler: deps.Reconciler,
		store:      deps.Store,
		cap:        limit,
	}
}

// UserIDFromContext returns the id stored by the auth middleware
func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
