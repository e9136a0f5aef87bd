package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package
var (
	// ErrGeneration matches every provider-side failure. All such failures
	// are retryable.
	ErrGeneration = errors.New("draft generation failed")

	// ErrInvalidResponse is returned when the provider response is empty or malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the provider refuses the prompt
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrQuotaExceeded is returned for rate limit, quota or billing rejections
	ErrQuotaExceeded = errors.New("language model quota exceeded")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// ErrorKind distinguishes provider failures for logging only.
type ErrorKind string

// Known failure kinds.
const (
	KindNetwork   ErrorKind = "network"
	KindResponse  ErrorKind = "malformed_response"
	KindQuota     ErrorKind = "quota"
	KindBlocked   ErrorKind = "content_blocked"
	KindAbandoned ErrorKind = "abandoned"
	KindUnknown   ErrorKind = "unknown"
)

// Error is a provider failure. It matches ErrGeneration and unwraps to the
// underlying cause.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

// NewError wraps err as a generation failure of the given kind.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s (%s)", ErrGeneration, e.Kind, e.Provider)
	}
	return fmt.Sprintf("%s: %s (%s): %v", ErrGeneration, e.Kind, e.Provider, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrGeneration.
func (e *Error) Is(target error) bool {
	return target == ErrGeneration
}

// KindOf returns the failure kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindUnknown
}
