package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/photoshot-be/internal/worker/domain"
)

const settleTimeout = 10 * time.Second

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case t := <-w.jobsChan:
			err := w.processMessage(ctx, t.msg)
			w.settle(ctx, t, err)
		}
	}
}

// settle acknowledges a processed message. Still-running predictions and
// transient failures are re-published with a delay before the ACK so a crash
// in between redelivers instead of losing the poll.
func (w *Worker) settle(ctx context.Context, t *task, err error) {
	logger := w.logger.With(
		slog.String("prediction_id", t.msg.PredictionID),
		slog.Int("attempt", t.msg.Attempt),
	)

	var retryable *domain.RetryableError
	switch {
	case err == nil:
		w.ack(logger, t, "acked")

	case errors.As(err, &retryable):
		if t.msg.Attempt+1 >= w.maxPolls {
			logger.Warn("Giving up on prediction",
				slog.Any("error", fmt.Errorf("%w: %v", domain.ErrMaxPollsExceeded, err)),
			)
			w.nack(logger, t, false, "exhausted")
			return
		}

		if pubErr := w.requeue(ctx, t.msg); pubErr != nil {
			w.metrics.RecordPublishFailure()
			logger.Error("Failed to re-publish reconcile message",
				slog.Any("error", pubErr),
			)
			w.nack(logger, t, true, "redelivered")
			return
		}
		logger.Debug("Prediction re-queued",
			slog.Duration("delay", w.pollInterval),
			slog.String("reason", err.Error()),
		)
		w.ack(logger, t, "requeued")

	default:
		logger.Error("Reconcile failed permanently",
			slog.Any("error", err),
		)
		w.nack(logger, t, false, "rejected")
	}
}

func (w *Worker) requeue(ctx context.Context, msg domain.ReconcileMessage) error {
	body, err := json.Marshal(msg.Next(w.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal reconcile message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	return w.broker.PublishDelayed(pubCtx, body, "application/json", w.pollInterval)
}

func (w *Worker) ack(logger *slog.Logger, t *task, outcome string) {
	w.metrics.RecordWorkerOutcome(outcome)
	if err := t.delivery.Ack(false); err != nil {
		logger.Error("Failed to ACK message",
			slog.Any("error", err),
		)
	}
}

func (w *Worker) nack(logger *slog.Logger, t *task, requeue bool, outcome string) {
	w.metrics.RecordWorkerOutcome(outcome)
	if err := t.delivery.Nack(false, requeue); err != nil {
		logger.Error("Failed to NACK message",
			slog.Any("error", err),
		)
	}
}
