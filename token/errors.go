package token

import "errors"

var (
	// ErrConfig reports an invalid codec configuration at build time.
	ErrConfig = errors.New("token: invalid config")

	// ErrValidation reports malformed issue input (empty subject,
	// malformed email). Verification failures never surface as errors;
	// Verify returns nil instead.
	ErrValidation = errors.New("token: invalid input")

	// ErrBlacklist reports a blacklist store failure.
	ErrBlacklist = errors.New("token: blacklist unavailable")
)
