package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks a provider skipped because its availability
	// probe failed. It surfaces as the cause of a failed fallback walk
	// when no provider was ever called.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrNoProviderAvailable is returned by the router when the available set
	// is empty.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrTimeout wraps a provider call that exceeded its configured deadline.
	ErrTimeout = errors.New("provider timed out")

	// ErrRateLimited is returned on an upstream 429.
	ErrRateLimited = errors.New("provider rate limited")
)

// Error carries the provider and HTTP status context of a failed call.
type Error struct {
	Provider string
	Status   int
	Cause    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.Status, e.Cause)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps err with provider context.
func NewError(provider string, status int, err error) *Error {
	return &Error{Provider: provider, Status: status, Cause: err}
}

// IsRetryable reports whether a failed call may succeed on another provider
// or a later attempt. Context cancellation is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		isTransientStatus(err)
}

func isTransientStatus(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Status == 429 || perr.Status >= 500
	}
	return false
}
