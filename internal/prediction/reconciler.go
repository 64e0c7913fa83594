package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/photoshot-be/internal/artifact"
	"github.com/cuongbtq/photoshot-be/internal/domain"
	"github.com/cuongbtq/photoshot-be/internal/metrics"
	"github.com/cuongbtq/photoshot-be/internal/quota"
)

const defaultArtifactExt = ".jpg"

// ReconcilerConfig holds reconcile settings
type ReconcilerConfig struct {
	Cap         int
	ArtifactExt string
}

// ReconcilerDeps holds all dependencies needed by the reconciler
type ReconcilerDeps struct {
	Generator Generator
	Enhancer  Enhancer
	Store     RecordStore
	Artifacts ArtifactStore
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Config    ReconcilerConfig
}

// Reconciler syncs one prediction with the provider and runs the
// enhancement stage when the prediction completes
type Reconciler struct {
	generator Generator
	enhancer  Enhancer
	store     RecordStore
	artifacts ArtifactStore
	logger    *slog.Logger
	metrics   *metrics.Metrics
	cfg       ReconcilerConfig
}

// ReconcileRequest identifies the prediction to check and who asks
type ReconcileRequest struct {
	PredictionID string
	OwnerID      string
	// RequireOutput fails with OutputNotReady while no output exists
	RequireOutput bool
}

// ReconcileResult reports the observed state
type ReconcileResult struct {
	Prediction  domain.Prediction
	Transition  domain.Transition
	Enhanced    bool
	ArtifactKey string
}

// NewReconciler creates a new Reconciler instance
func NewReconciler(deps ReconcilerDeps) *Reconciler {
	cfg := deps.Config
	if cfg.Cap <= 0 {
		cfg.Cap = quota.DefaultCap
	}
	if cfg.ArtifactExt == "" {
		cfg.ArtifactExt = defaultArtifactExt
	}
	return &Reconciler{
		generator: deps.Generator,
		enhancer:  deps.Enhancer,
		store:     deps.Store,
		artifacts: deps.Artifacts,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		cfg:       cfg,
	}
}

// Reconcile fetches the provider status of a prediction, persists it, and on
// the transition into succeeded enhances and stores the output.
func (r *Reconciler) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	req.PredictionID = strings.TrimSpace(req.PredictionID)
	if req.PredictionID == "" || req.OwnerID == "" {
		return nil, domain.Wrap(domain.ErrInvalidRequest, errors.New("prediction id and owner are required"))
	}

	user, err := r.store.GetUser(ctx, req.OwnerID)
	if err != nil {
		return nil, r.lookupError("user", req.OwnerID, err)
	}
	record, err := r.store.GetPrediction(ctx, req.PredictionID)
	if err != nil {
		return nil, r.lookupError("prediction", req.PredictionID, err)
	}
	if record.OwnerID != req.OwnerID {
		return nil, domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("prediction %s is not owned by %s", req.PredictionID, req.OwnerID))
	}

	if !user.Paid {
		return nil, domain.ErrPaymentRequired
	}
	if !user.ModelReady() {
		return nil, domain.ErrModelNotReady
	}
	if user.UsageCounter > r.cfg.Cap {
		return nil, domain.NewError(domain.KindQuotaExhausted,
			fmt.Sprintf("You have already generated %d photos", r.cfg.Cap), nil)
	}

	job, err := r.generator.GetJobStatus(ctx, req.PredictionID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrProviderUnavailable, err)
	}

	observed := domain.Prediction{
		ID:      req.PredictionID,
		OwnerID: req.OwnerID,
		Status:  job.Status,
	}
	if job.Status == domain.StatusSucceeded {
		observed.OutputURL = job.OutputURL()
	}

	// The provider already moved on; persisting and enhancing must not be
	// cut short by the caller.
	work := context.WithoutCancel(ctx)

	transition, err := r.store.UpsertPrediction(work, observed)
	if err != nil {
		return nil, domain.Wrap(domain.ErrPersistenceError, err)
	}
	r.metrics.RecordReconcile(string(observed.Status), transition.Applied)

	result := &ReconcileResult{Prediction: observed, Transition: transition}
	if !transition.Applied {
		result.Prediction.Status = transition.Current
	}

	logger := r.logger.With(
		slog.String("prediction_id", req.PredictionID),
		slog.String("user_id", req.OwnerID),
	)

	if observed.OutputURL == "" {
		logger.Debug("Prediction has no output yet", slog.String("status", string(job.Status)))
		if req.RequireOutput {
			return result, domain.ErrOutputNotReady
		}
		return result, nil
	}

	if !transition.Completed() {
		logger.Debug("Prediction already completed, skipping enhancement")
		return result, nil
	}

	key, err := r.enhance(work, req.OwnerID, req.PredictionID, observed.OutputURL)
	r.metrics.RecordEnhancement(err)
	if err != nil {
		logger.Error("Enhancement failed", slog.Any("error", err))
		return result, domain.Wrap(domain.ErrEnhancementFailed, err)
	}

	result.Enhanced = true
	result.ArtifactKey = key
	logger.Info("Prediction enhanced", slog.String("artifact_key", key))
	return result, nil
}

func (r *Reconciler) enhance(ctx context.Context, ownerID, predictionID, outputURL string) (string, error) {
	enhancedURL, err := r.enhancer.Enhance(ctx, outputURL)
	if err != nil {
		return "", fmt.Errorf("failed to enhance output: %w", err)
	}
	data, contentType, err := r.enhancer.Download(ctx, enhancedURL)
	if err != nil {
		return "", fmt.Errorf("failed to download enhanced image: %w", err)
	}

	key := artifact.Key(ownerID, predictionID, r.cfg.ArtifactExt)
	if err := r.artifacts.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return key, nil
}

func (r *Reconciler) lookupError(what, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Wrap(domain.ErrInvalidRequest, fmt.Errorf("%s %s not found", what, id))
	}
	return domain.Wrap(domain.ErrPersistenceError, err)
}
