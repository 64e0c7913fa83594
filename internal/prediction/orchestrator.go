package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/metrics"
	"github.com/cuongbtq/photoshot-be/internal/prompt"
	"github.com/cuongbtq/photoshot-be/internal/quota"
)

const defaultConcurrency = 4

// OrchestratorConfig holds the quota and fan-out settings
type OrchestratorConfig struct {
	Cap           int
	MaxPerRequest int
	Concurrency   int
}

// OrchestratorDeps holds all dependencies needed by the orchestrator.
// Locker and Scheduler are optional.
type OrchestratorDeps struct {
	Launcher  *Launcher
	Store     RecordStore
	Catalog   *prompt.Catalog
	Locker    Locker
	Scheduler Scheduler
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Config    OrchestratorConfig
}

// Orchestrator runs the generate flow: quota, fan-out launch, record, charge
type Orchestrator struct {
	launcher  *Launcher
	store     RecordStore
	catalog   *prompt.Catalog
	locker    Locker
	scheduler Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       OrchestratorConfig
}

// GenerateResult reports what a generate call did
type GenerateResult struct {
	Requested    int
	Allowed      int
	Launched     int
	Failed       int
	Recorded     int
	Charged      int
	UsageCounter int
	Predictions  []domain.Prediction
}

// NewOrchestrator creates a new Orchestrator instance
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	cfg := deps.Config
	if cfg.Cap <= 0 {
		cfg.Cap = quota.DefaultCap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = prompt.NewCatalog(nil, "", "")
	}
	return &Orchestrator{
		launcher:  deps.Launcher,
		store:     deps.Store,
		catalog:   catalog,
		locker:    deps.Locker,
		scheduler: deps.Scheduler,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}
}

// Generate launches up to req.Quantity predictions for user and charges the
// usage counter with the number that were launched and recorded.
//
// The returned result is non-nil once launching has started, also when an
// error is returned, so callers can report partial outcomes.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest, user domain.UserAccount) (*GenerateResult, error) {
	text, err := o.catalog.Resolve(req.Theme, req.Prompt)
	if err != nil {
		return nil, err
	}

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, user.ID)
		if err != nil {
			return nil, domain.NewError(domain.KindPersistenceError, "Another generation is in progress", err)
		}
		defer unlock()

		fresh, err := o.store.GetUser(ctx, user.ID)
		if err != nil {
			return nil, domain.Wrap(domain.ErrPersistenceError, fmt.Errorf("failed to reload user: %w", err))
		}
		user = *fresh
	}

	if !user.Paid {
		return nil, domain.ErrPaymentRequired
	}
	if !user.ModelReady() {
		return nil, domain.ErrModelNotReady
	}

	allowed, err := quota.Compute(quota.Clamp(req.Quantity, o.cfg.MaxPerRequest), user.UsageCounter, o.cfg.Cap)
	if err != nil {
		return nil, err
	}

	spec := domain.JobSpec{
		ModelVersionID: user.ModelVersionID,
		Prompt:         o.catalog.Render(text, user.InstanceClass),
		NegativePrompt: o.catalog.Negative(),
		Seed:           req.Seed,
	}

	// Launched jobs exist at the provider, so bookkeeping must finish even if
	// the caller goes away.
	work := context.WithoutCancel(ctx)

	result := &GenerateResult{Requested: req.Quantity, Allowed: allowed, UsageCounter: user.UsageCounter}
	launched, launchErr := o.launchAll(work, spec, user.ID, allowed)
	result.Launched = len(launched)
	result.Failed = allowed - len(launched)

	if len(launched) == 0 {
		o.logger.Error("All prediction launches failed",
			slog.String("user_id", user.ID),
			slog.Int("allowed", allowed),
			slog.Any("error", launchErr),
		)
		return result, domain.Wrap(domain.ErrProviderUnavailable, launchErr)
	}

	recorded, persistErr := o.recordAll(work, launched)
	result.Recorded = len(recorded)
	result.Predictions = recorded

	if len(recorded) > 0 {
		counter, err := o.store.IncrementUsage(work, user.ID, len(recorded))
		if err != nil {
			persistErr = errors.Join(persistErr, fmt.Errorf("failed to increment usage: %w", err))
		} else {
			result.Charged = len(recorded)
			result.UsageCounter = counter
			o.metrics.RecordCharge(len(recorded))
		}
	}

	o.schedule(work, recorded)

	o.logger.Info("Generation batch finished",
		slog.String("user_id", user.ID),
		slog.Int("requested", req.Quantity),
		slog.Int("allowed", allowed),
		slog.Int("launched", result.Launched),
		slog.Int("recorded", result.Recorded),
		slog.Int("charged", result.Charged),
		slog.Int("usage_counter", result.UsageCounter),
	)

	if persistErr != nil {
		return result, domain.Wrap(domain.ErrPersistenceError, errors.Join(persistErr, launchErr))
	}
	if launchErr != nil {
		return result, domain.Wrap(domain.ErrProviderUnavailable, launchErr)
	}
	return result, nil
}

// launchAll starts n jobs with bounded concurrency. A failed launch does not
// stop the others; all outcomes are joined before returning.
func (o *Orchestrator) launchAll(ctx context.Context, spec domain.JobSpec, ownerID string, n int) ([]domain.Prediction, error) {
	predictions := make([]domain.Prediction, n)
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			predictions[i], errs[i] = o.launcher.Launch(ctx, spec, ownerID)
			return nil
		})
	}
	_ = g.Wait()

	launched := make([]domain.Prediction, 0, n)
	for i := range predictions {
		if errs[i] == nil {
			launched = append(launched, predictions[i])
		}
	}
	return launched, errors.Join(errs...)
}

// recordAll upserts every launched prediction and returns those that were stored
func (o *Orchestrator) recordAll(ctx context.Context, launched []domain.Prediction) ([]domain.Prediction, error) {
	recorded := make([]domain.Prediction, 0, len(launched))
	var errs []error
	for _, p := range launched {
		if _, err := o.store.UpsertPrediction(ctx, p); err != nil {
			o.logger.Error("Failed to record prediction",
				slog.String("prediction_id", p.ID),
				slog.String("user_id", p.OwnerID),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("prediction %s: %w", p.ID, err))
			continue
		}
		recorded = append(recorded, p)
	}
	return recorded, errors.Join(errs...)
}

func (o *Orchestrator) schedule(ctx context.Context, recorded []domain.Prediction) {
	if o.scheduler == nil {
		return
	}
	for _, p := range recorded {
		if err := o.scheduler.ScheduleReconcile(ctx, p); err != nil {
			o.metrics.RecordPublishFailure()
			o.logger.Warn("Failed to schedule reconcile",
				slog.String("prediction_id", p.ID),
				slog.Any("error", err),
			)
		}
	}
}
