package domain

import "errors"

var (
	// ErrInvalidPayload is returned when a reconcile message cannot be decoded
	ErrInvalidPayload = errors.New("invalid reconcile payload")

	// ErrPredictionPending is returned while the provider still reports a non-terminal status
	ErrPredictionPending = errors.New("prediction not finished")

	// ErrMaxPollsExceeded is returned when a prediction stayed non-terminal for too many polls
	ErrMaxPollsExceeded = errors.New("max polls exceeded")

	// ErrRejected is returned when the reconciler refused the message for good
	ErrRejected = errors.New("reconcile rejected")
)

// RetryableError wraps transient errors that should trigger a delayed retry
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
