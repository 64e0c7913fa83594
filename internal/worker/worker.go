// Package worker reconciles launched predictions in the background. It
// consumes reconcile messages, polls the provider through the reconciler and
// re-queues predictions that are still running.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/photoshot-be/internal/metrics"
	"github.com/cuongbtq/photoshot-be/internal/prediction"
	"github.com/cuongbtq/photoshot-be/internal/worker/domain"
)

const (
	defaultConcurrency  = 4
	defaultJobTimeout   = 3 * time.Minute
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 120
)

// Broker is the queue the worker consumes from and re-publishes to
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	PublishDelayed(ctx context.Context, body []byte, contentType string, delay time.Duration) error
}

// Reconciler syncs one prediction with the provider
type Reconciler interface {
	Reconcile(ctx context.Context, req prediction.ReconcileRequest) (*prediction.ReconcileResult, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Broker        Broker
	Reconciler    Reconciler
	Metrics       *metrics.Metrics
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	PollInterval  time.Duration
	MaxPolls      int
}

// Worker represents the background reconcile worker
type Worker struct {
	logger        *slog.Logger
	broker        Broker
	reconciler    Reconciler
	metrics       *metrics.Metrics
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	pollInterval  time.Duration
	maxPolls      int
	now           func() time.Time

	jobsChan chan *task
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// task is one decoded message together with the delivery to settle
type task struct {
	msg      domain.ReconcileMessage
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:        cfg.Logger,
		broker:        cfg.Broker,
		reconciler:    cfg.Reconciler,
		metrics:       cfg.Metrics,
		workerID:      "worker-" + uuid.NewString()[:8],
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		jobTimeout:    cfg.JobTimeout,
		pollInterval:  cfg.PollInterval,
		maxPolls:      cfg.MaxPolls,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	if w.concurrency <= 0 {
		w.concurrency = defaultConcurrency
	}
	if w.prefetchCount <= 0 {
		w.prefetchCount = w.concurrency
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = defaultJobTimeout
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.maxPolls <= 0 {
		w.maxPolls = defaultMaxPolls
	}
	w.jobsChan = make(chan *task)
	return w
}

// Start consumes reconcile messages until ctx is canceled. It returns an
// error when the broker closes the delivery channel underneath it.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("poll_interval", w.pollInterval),
		slog.Int("max_polls", w.maxPolls),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if closed := w.startMessageDispatcher(ctx, deliveries); closed && ctx.Err() == nil {
		return errors.New("rabbitmq delivery channel closed")
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker and waits for in-flight messages
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
