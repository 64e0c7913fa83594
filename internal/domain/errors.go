package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure surfaced by the generation core
type Kind string

const (
	KindInvalidQuantity     Kind = "invalid_quantity"
	KindPromptMissing       Kind = "prompt_missing"
	KindPaymentRequired     Kind = "payment_required"
	KindModelNotReady       Kind = "model_not_ready"
	KindQuotaExhausted      Kind = "quota_exhausted"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindPersistenceError    Kind = "persistence_error"
	KindOutputNotReady      Kind = "output_not_ready"
	KindEnhancementFailed   Kind = "enhancement_failed"
	KindUnauthenticated     Kind = "unauthenticated"
	KindInvalidRequest      Kind = "invalid_request"
)

var (
	// ErrInvalidQuantity is returned when the requested quantity is not a positive integer
	ErrInvalidQuantity = &Error{Kind: KindInvalidQuantity, Message: "Wrong quantity"}

	// ErrPromptMissing is returned when neither a known theme nor an explicit prompt was given
	ErrPromptMissing = &Error{Kind: KindPromptMissing, Message: "Theme not selected"}

	// ErrPaymentRequired is returned for accounts that have not paid
	ErrPaymentRequired = &Error{Kind: KindPaymentRequired, Message: "Payment required"}

	// ErrModelNotReady is returned while the user's model is training or missing
	ErrModelNotReady = &Error{Kind: KindModelNotReady, Message: "Model not trained"}

	// ErrQuotaExhausted is returned once the lifetime generation cap is reached
	ErrQuotaExhausted = &Error{Kind: KindQuotaExhausted, Message: "You have already generated the maximum number of photos"}

	// ErrProviderUnavailable is returned when the generation provider could not be reached or refused a job
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable, Message: "Generation provider unavailable"}

	// ErrPersistenceError is returned when the record store fails
	ErrPersistenceError = &Error{Kind: KindPersistenceError, Message: "Error on insert prediction"}

	// ErrOutputNotReady is returned when completion was expected but the job has no output yet
	ErrOutputNotReady = &Error{Kind: KindOutputNotReady, Message: "Missing url"}

	// ErrEnhancementFailed is returned when the face restoration stage or the artifact upload fails
	ErrEnhancementFailed = &Error{Kind: KindEnhancementFailed, Message: "Enhancement failed"}

	// ErrUnauthenticated is returned when no verified session is present
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "Session not valid"}

	// ErrInvalidRequest is returned for malformed requests or unknown prediction ids
	ErrInvalidRequest = &Error{Kind: KindInvalidRequest, Message: "Invalid request"}
)

// ErrNotFound is returned by record stores when a row does not exist
var ErrNotFound = errors.New("record not found")

// Error is a tagged failure carrying its underlying cause for logging
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrQuotaExhausted)
// holds regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a tagged error of the given kind
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap attaches a cause to one of the sentinel errors, keeping its kind and message
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Cause: cause}
}

// KindOf extracts the kind of err, or "" when err is not a tagged error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
