package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a prediction reported by the provider
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// ParseStatus normalizes a provider status string. Unknown values map to
// starting, canceled maps to failed.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processing":
		return StatusProcessing
	case "succeeded":
		return StatusSucceeded
	case "failed", "canceled", "cancelled":
		return StatusFailed
	default:
		return StatusStarting
	}
}

// Rank orders statuses along the only allowed direction of travel
func (s Status) Rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusSucceeded, StatusFailed:
		return 2
	default:
		return 0
	}
}

// Terminal reports whether s is sticky
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanAdvanceTo reports whether a persisted status s may be replaced by next.
// Re-applying the same non-terminal status is allowed and has no effect.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next.Rank() >= s.Rank()
}

// Prediction is the handle of one external generation job
type Prediction struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"user_id"`
	Status    Status    `db:"status"`
	OutputURL string    `db:"output_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Transition describes the effect of an upsert on a persisted prediction
type Transition struct {
	// Applied is false when the stored status was already at or past the new one
	Applied  bool
	Previous Status
	Current  Status
}

// Completed reports whether this transition moved the prediction into succeeded
func (t Transition) Completed() bool {
	return t.Applied && t.Current == StatusSucceeded && t.Previous != StatusSucceeded
}

// JobSpec is everything the provider needs to start one prediction
type JobSpec struct {
	ModelVersionID string
	Prompt         string
	NegativePrompt string
	Seed           *int
}

// ProviderJob is the provider's view of a prediction
type ProviderJob struct {
	ID         string
	Status     Status
	OutputURLs []string
	Error      string
}

// OutputURL returns the first output, or "" while none is available
func (j ProviderJob) OutputURL() string {
	for _, u := range j.OutputURLs {
		if strings.TrimSpace(u) != "" {
			return u
		}
	}
	return ""
}
