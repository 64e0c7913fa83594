package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pdomain "github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/worker/domain"
)

// processMessage reconciles one prediction. A nil return means the prediction
// reached a terminal status; a RetryableError asks for another poll.
func (w *Worker) processMessage(ctx context.Context, msg domain.ReconcileMessage) error {
	logger := w.logger.With(
		slog.String("prediction_id", msg.PredictionID),
		slog.String("user_id", msg.OwnerID),
		slog.Int("attempt", msg.Attempt),
	)
	logger.Debug("Reconciling prediction")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result, err := w.reconciler.Reconcile(jobCtx, prediction.ReconcileRequest{
		PredictionID: msg.PredictionID,
		OwnerID:      msg.OwnerID,
	})

	switch {
	case err == nil:
	case errors.Is(err, pdomain.ErrProviderUnavailable), errors.Is(err, pdomain.ErrPersistenceError):
		return domain.NewRetryableError(fmt.Errorf("failed to reconcile: %w", err))
	case errors.Is(err, pdomain.ErrEnhancementFailed):
		// the succeeded status is stored; enhancement is not retried
		logger.Error("Prediction finished but enhancement failed",
			slog.Any("error", err),
		)
		return nil
	default:
		return fmt.Errorf("%w: %v", domain.ErrRejected, err)
	}

	status := result.Prediction.Status
	if !status.Terminal() {
		return domain.NewRetryableError(fmt.Errorf("%w: %s", domain.ErrPredictionPending, status))
	}

	logger.Info("Prediction reconciled",
		slog.String("status", string(status)),
		slog.Bool("enhanced", result.Enhanced),
		slog.String("artifact_key", result.ArtifactKey),
	)
	return nil
}
