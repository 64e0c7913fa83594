package prediction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGenerator struct {
	mu       sync.Mutex
	specs    []domain.JobSpec
	failOn   map[int]bool
	statuses map[string]domain.ProviderJob
	statErr  error
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeGenerator) StartJob(_ context.Context, spec domain.JobSpec) (domain.ProviderJob, error) {
	n := int(f.calls.Add(1))

	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if f.failOn[n] {
		return domain.ProviderJob{}, fmt.Errorf("launch %d refused", n)
	}
	return domain.ProviderJob{ID: fmt.Sprintf("pred-%d", n), Status: domain.StatusStarting}, nil
}

func (f *fakeGenerator) GetJobStatus(_ context.Context, id string) (domain.ProviderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return domain.ProviderJob{}, f.statErr
	}
	job, ok := f.statuses[id]
	if !ok {
		return domain.ProviderJob{}, errors.New("prediction not found")
	}
	return job, nil
}

func (f *fakeGenerator) setStatus(job domain.ProviderJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]domain.ProviderJob)
	}
	f.statuses[job.ID] = job
}

type fakeEnhancer struct {
	calls       atomic.Int32
	enhanceErr  error
	downloadErr error
	inputs      sync.Map
}

func (f *fakeEnhancer) Enhance(_ context.Context, imageURL string) (string, error) {
	f.calls.Add(1)
	f.inputs.Store(imageURL, true)
	if f.enhanceErr != nil {
		return "", f.enhanceErr
	}
	return imageURL + "?restored", nil
}

func (f *fakeEnhancer) Download(_ context.Context, imageURL string) ([]byte, string, error) {
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return []byte("bytes of " + imageURL), "image/jpeg", nil
}

type fakeArtifacts struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (f *fakeArtifacts) Put(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[key] = data
	return nil
}

// flakyStore wraps MemoryStore and fails selected writes
type flakyStore struct {
	*storage.MemoryStore
	failUpsert    map[string]bool
	failIncrement bool
	increments    atomic.Int32
}

func (s *flakyStore) UpsertPrediction(ctx context.Context, p domain.Prediction) (domain.Transition, error) {
	if s.failUpsert[p.ID] {
		return domain.Transition{}, errors.New("insert timed out")
	}
	return s.MemoryStore.UpsertPrediction(ctx, p)
}

func (s *flakyStore) IncrementUsage(ctx context.Context, userID string, delta int) (int, error) {
	s.increments.Add(1)
	if s.failIncrement {
		return 0, errors.New("update timed out")
	}
	return s.MemoryStore.IncrementUsage(ctx, userID, delta)
}

type fakeLocker struct {
	mu     sync.Mutex
	keys   []string
	err    error
	unlock atomic.Int32
}

func (f *fakeLocker) Lock(_ context.Context, key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.keys = append(f.keys, key)
	return func() { f.unlock.Add(1) }, nil
}

type fakeScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeScheduler) ScheduleReconcile(_ context.Context, p domain.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, p.ID)
	return f.err
}

func readyUser(id string, counter int) domain.UserAccount {
	return domain.UserAccount{
		ID:             id,
		Paid:           true,
		Trained:        true,
		ModelVersionID: "owner/model:v1",
		UsageCounter:   counter,
		InstanceClass:  "man",
	}
}
