package goTrust

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation reports malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrAuthenticationFailed is the single error every credential,
	// token, and session failure collapses into. The concrete reason is
	// logged server-side; callers get no oracle.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrPermissionDenied reports a failed authorization check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRateLimited reports a denied attempt. Wrapped by
	// RateLimitedError, which carries retry-after.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable reports that neither cache nor persistence
	// could serve a request.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrBuilderState reports incomplete builder wiring.
	ErrBuilderState = errors.New("builder misconfigured")

	// ErrStepUpRequired reports a login that may only proceed through
	// step-up verification.
	ErrStepUpRequired = errors.New("step-up verification required")
)

// RateLimitedError wraps ErrRateLimited with timing metadata.
type RateLimitedError struct {
	RetryAfter   time.Duration
	BlockedUntil time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// SecurityAnomaly is a non-fatal signal attached to otherwise
// successful results: the operation went through, but something about
// it deserves attention.
type SecurityAnomaly struct {
	Kind   string
	Detail string
}

func (a SecurityAnomaly) String() string {
	if a.Detail == "" {
		return a.Kind
	}
	return a.Kind + ": " + a.Detail
}
