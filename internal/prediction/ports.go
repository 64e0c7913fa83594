// Package prediction launches photo generations within the user's quota and
// reconciles their status with the provider.
package prediction

import (
	"context"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// Generator starts predictions and reports their status
type Generator interface {
	StartJob(ctx context.Context, spec domain.JobSpec) (domain.ProviderJob, error)
	GetJobStatus(ctx context.Context, id string) (domain.ProviderJob, error)
}

// Enhancer runs face restoration on an output image and fetches the result
type Enhancer interface {
	Enhance(ctx context.Context, imageURL string) (string, error)
	Download(ctx context.Context, imageURL string) ([]byte, string, error)
}

// RecordStore persists accounts and prediction records
type RecordStore interface {
	GetUser(ctx context.Context, userID string) (*domain.UserAccount, error)
	GetPrediction(ctx context.Context, id string) (*domain.Prediction, error)
	UpsertPrediction(ctx context.Context, p domain.Prediction) (domain.Transition, error)
	IncrementUsage(ctx context.Context, userID string, delta int) (int, error)
}

// ArtifactStore keeps enhanced images
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Scheduler queues a background reconcile of a freshly launched prediction
type Scheduler interface {
	ScheduleReconcile(ctx context.Context, p domain.Prediction) error
}
