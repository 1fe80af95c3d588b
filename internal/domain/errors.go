package domain

import (
	"context"
	"errors"
	"fmt"
)

// Adapter error kinds. Every failure coming out of a platform adapter or the
// dispatcher wraps exactly one of these.
var (
	ErrNotFound     = errors.New("profile does not exist on platform")
	ErrTransient    = errors.New("platform temporarily unavailable")
	ErrParseFailure = errors.New("unexpected platform response structure")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUnsupported  = errors.New("unsupported platform")
)

// Domain errors
var (
	ErrProfileNotFound = errors.New("profile record not found")
	ErrScoreNotFound   = errors.New("user score not found")
	ErrInvalidUsername = errors.New("username is required")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// AdapterError is a classified failure of a single platform fetch
type AdapterError struct {
	Kind     error
	Platform Platform
	Username string
	Err      error
}

// NewAdapterError builds an AdapterError of the given kind
func NewAdapterError(kind error, platform Platform, username string, err error) *AdapterError {
	return &AdapterError{
		Kind:     kind,
		Platform: platform,
		Username: username,
		Err:      err,
	}
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %q: %v", e.Platform, e.Username, e.Kind)
	}
	return fmt.Sprintf("%s %q: %v: %v", e.Platform, e.Username, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is/As
func (e *AdapterError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the short name of the error's kind, or "internal" for
// errors outside the adapter taxonomy.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrParseFailure):
		return "parse_failure"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrInvalidUsername):
		return "invalid_username"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "internal"
}

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrScoreNotFound)
}
