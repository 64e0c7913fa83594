package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/photoshot-be/internal/domain"
)

// MemoryStore keeps records in process memory. It backs local development and
// tests and follows the same upsert and increment rules as PostgresStore.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[string]domain.UserAccount
	predictions map[string]domain.Prediction
	now         func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.UserAccount),
		predictions: make(map[string]domain.Prediction),
		now:         time.Now,
	}
}

// PutUser creates or replaces an account
func (s *MemoryStore) PutUser(user domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// GetUser returns a copy of the account row
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*domain.UserAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

// GetPrediction returns a copy of the prediction record
func (s *MemoryStore) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// UpsertPrediction inserts or advances a prediction
func (s *MemoryStore) UpsertPrediction(ctx context.Context, p domain.Prediction) (domain.Transition, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transition{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored, exists := s.predictions[p.ID]
	if !exists {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.predictions[p.ID] = p
		return domain.Transition{Applied: true, Current: p.Status}, nil
	}

	if !stored.Status.CanAdvanceTo(p.Status) {
		return domain.Transition{Applied: false, Previous: stored.Status, Current: stored.Status}, nil
	}

	previous := stored.Status
	stored.Status = p.Status
	if p.OutputURL != "" {
		stored.OutputURL = p.OutputURL
	}
	stored.UpdatedAt = now
	s.predictions[p.ID] = stored
	return domain.Transition{Applied: true, Previous: previous, Current: p.Status}, nil
}

// IncrementUsage adds delta to the user's counter
func (s *MemoryStore) IncrementUsage(ctx context.Context, userID string, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	user.UsageCounter += delta
	s.users[userID] = user
	return user.UsageCounter, nil
}

// ListPredictions mirrors PostgresStore.ListPredictions
func (s *MemoryStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]domain.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Prediction
	for _, p := range s.predictions {
		if filter.OwnerID != "" && p.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && string(p.Status) != filter.Status {
			continue
		}
		if filter.Cursor != nil && !olderThan(p, *filter.Cursor) {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return olderThan(out[j], PredictionCursor{CreatedAt: out[i].CreatedAt, ID: out[i].ID})
	})

	if limit := filter.PageSize + 1; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// olderThan reports whether p comes strictly before c in (created_at, id) order
func olderThan(p domain.Prediction, c PredictionCursor) bool {
	if p.CreatedAt.Equal(c.CreatedAt) {
		return p.ID < c.ID
	}
	return p.CreatedAt.Before(c.CreatedAt)
}
