package prediction

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/metrics"
)

// Launcher starts exactly one provider job per call and never retries
type Launcher struct {
	generator Generator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewLauncher creates a new Launcher instance
func NewLauncher(generator Generator, logger *slog.Logger, m *metrics.Metrics) *Launcher {
	return &Launcher{
		generator: generator,
		logger:    logger,
		metrics:   m,
	}
}

// Launch starts one job for ownerID and returns its record in the status the
// provider reported
func (l *Launcher) Launch(ctx context.Context, spec domain.JobSpec, ownerID string) (domain.Prediction, error) {
	job, err := l.generator.StartJob(ctx, spec)
	l.metrics.RecordLaunch(err)
	if err != nil {
		l.logger.Warn("Failed to start prediction",
			slog.String("user_id", ownerID),
			slog.Any("error", err),
		)
		return domain.Prediction{}, domain.Wrap(domain.ErrProviderUnavailable, err)
	}

	l.logger.Debug("Prediction started",
		slog.String("prediction_id", job.ID),
		slog.String("user_id", ownerID),
		slog.String("status", string(job.Status)),
	)

	return domain.Prediction{
		ID:      job.ID,
		OwnerID: ownerID,
		Status:  job.Status,
	}, nil
}
