package worker

import (
	"context"
	"time"

	pdomain "github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/worker/domain"
)

// Publisher sends a JSON message to the reconcile queue
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Scheduler enqueues the first reconcile of a launched prediction
type Scheduler struct {
	publisher Publisher
	now       func() time.Time
}

// NewScheduler creates a scheduler publishing through p
func NewScheduler(p Publisher) *Scheduler {
	return &Scheduler{publisher: p, now: time.Now}
}

// ScheduleReconcile publishes a reconcile message for p
func (s *Scheduler) ScheduleReconcile(ctx context.Context, p pdomain.Prediction) error {
	return s.publisher.PublishJSON(ctx, domain.ReconcileMessage{
		PredictionID: p.ID,
		OwnerID:      p.OwnerID,
		EnqueuedAt:   s.now(),
	})
}
