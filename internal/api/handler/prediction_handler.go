package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/photoshot-be/internal/api/dto"
	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/quota"
	"github.com/cuongbtq/photoshot-be/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreatePredictions handles POST /api/v1/predictions
// Launches up to quantity generations for the authenticated user
func (h *PredictionHandler) CreatePredictions(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var body dto.GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		WriteError(c, h.logger, domain.Wrap(domain.ErrInvalidRequest, err))
		return
	}

	req, err := body.ToGenerationRequest()
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}

	h.logger.Info("CreatePredictions called",
		slog.String("user_id", user.ID),
		slog.String("theme", req.Theme),
		slog.Int("quantity", req.Quantity),
	)

	result, err := h.generator.Generate(c.Request.Context(), req, *user)
	if err != nil {
		var errBody dto.ErrorResponse
		if result != nil && result.Launched > 0 {
			errBody.Launched = &result.Launched
			errBody.Failed = &result.Failed
		}
		writeError(c, h.logger, err, errBody)
		return
	}

	predictions := make([]dto.PredictionDTO, len(result.Predictions))
	for i, p := range result.Predictions {
		predictions[i] = toPredictionDTO(p)
	}

	c.JSON(http.StatusOK, dto.GenerateResponse{
		Done:         true,
		Requested:    result.Requested,
		Launched:     result.Launched,
		UsageCounter: result.UsageCounter,
		Predictions:  predictions,
	})
}

// GetPrediction handles GET /api/v1/predictions/:prediction_id
// Reconciles the prediction with the provider and reports its status
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		WriteError(c, h.logger, domain.ErrUnauthenticated)
		return
	}

	predictionID := strings.TrimSpace(c.Param("prediction_id"))
	if predictionID == "" {
		WriteError(c, h.logger, domain.Wrap(domain.ErrInvalidRequest, errors.New("prediction_id is required")))
		return
	}

	var query dto.GetPredictionRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		WriteError(c, h.logger, domain.Wrap(domain.ErrInvalidRequest, err))
		return
	}

	h.logger.Debug("GetPrediction called",
		slog.String("user_id", userID),
		slog.String("prediction_id", predictionID),
		slog.Bool("require_output", query.RequireOutput),
	)

	result, err := h.reconciler.Reconcile(c.Request.Context(), prediction.ReconcileRequest{
		PredictionID:  predictionID,
		OwnerID:       userID,
		RequireOutput: query.RequireOutput,
	})
	if err != nil {
		WriteError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.GetPredictionResponse{
		Done:        true,
		Prediction:  toPredictionDTO(result.Prediction),
		Enhanced:    result.Enhanced,
		ArtifactKey: result.ArtifactKey,
	})
}

// ListPredictions handles GET /api/v1/predictions
// Lists the caller's predictions, newest first, with cursor pagination
func (h *PredictionHandler) ListPredictions(c *gin.Context) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		WriteError(c, h.logger, domain.ErrUnauthenticated)
		return
	}

	var req dto.ListPredictionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		WriteError(c, h.logger, domain.Wrap(domain.ErrInvalidRequest, err))
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	if req.Status != "" && domain.ParseStatus(req.Status) != domain.Status(strings.ToLower(req.Status)) {
		WriteError(c, h.logger, domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("unknown status %q", req.Status)))
		return
	}

	cursor, err := DecodePredictionCursor(req.Cursor)
	if err != nil {
		WriteError(c, h.logger, domain.NewError(domain.KindInvalidRequest, "Invalid cursor", err))
		return
	}

	predictions, err := h.store.ListPredictions(c.Request.Context(), storage.PredictionFilter{
		OwnerID:  userID,
		Status:   strings.ToLower(req.Status),
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		WriteError(c, h.logger, domain.Wrap(domain.ErrPersistenceError, err))
		return
	}

	hasMore := len(predictions) > req.PageSize
	if hasMore {
		predictions = predictions[:req.PageSize]
	}

	items := make([]dto.PredictionDTO, len(predictions))
	for i, p := range predictions {
		items[i] = toPredictionDTO(p)
	}

	var nextCursor string
	if hasMore {
		last := predictions[len(predictions)-1]
		nextCursor = EncodePredictionCursor(&storage.PredictionCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListPredictionsResponse{
		Predictions: items,
		NextCursor:  nextCursor,
	})
}

// GetUsage handles GET /api/v1/usage
func (h *PredictionHandler) GetUsage(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.UsageResponse{
		Used:      user.UsageCounter,
		Cap:       h.cap,
		Remaining: quota.Remaining(user.UsageCounter, h.cap),
	})
}

// currentUser loads the authenticated account, writing the error response
// itself when that fails
func (h *PredictionHandler) currentUser(c *gin.Context) (*domain.UserAccount, bool) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		WriteError(c, h.logger, domain.ErrUnauthenticated)
		return nil, false
	}

	user, err := h.loadUser(c.Request.Context(), userID)
	if err != nil {
		WriteError(c, h.logger, err)
		return nil, false
	}
	return user, true
}

func (h *PredictionHandler) loadUser(ctx context.Context, userID string) (*domain.UserAccount, error) {
	user, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewError(domain.KindUnauthenticated, "Account not found", err)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrPersistenceError, fmt.Errorf("failed to load user: %w", err))
	}
	return user, nil
}

func toPredictionDTO(p domain.Prediction) dto.PredictionDTO {
	return dto.PredictionDTO{
		ID:        p.ID,
		UserID:    p.OwnerID,
		Status:    string(p.Status),
		OutputURL: p.OutputURL,
		CreatedAt: formatTime(p.CreatedAt),
		UpdatedAt: formatTime(p.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
