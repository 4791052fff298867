package goTrust

import (
	"fmt"
	"time"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/password"
	"github.com/MrEthical07/goTrust/ratelimit"
	"github.com/MrEthical07/goTrust/session"
	"github.com/MrEthical07/goTrust/token"
)

// ---------------------------------------------------------------------
// Engine configuration
// ---------------------------------------------------------------------

// Config aggregates the per-component configurations. Zero sub-configs
// are filled from defaults by the builder; Validate runs before any
// component is constructed.
type Config struct {
	Token    token.Config
	Session  session.Config
	Trust    device.TrustPolicy
	Rate     ratelimit.Config
	Password password.Config

	// ResetTokenTTL bounds password-reset action tokens.
	ResetTokenTTL time.Duration
}

// DefaultConfig returns a runnable configuration, minus the token
// secret which has no safe default.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			SigningMethod: "HS256",
			Issuer:        "goTrust",
			Audience:      "goTrust",
			AccessTTL:     15 * time.Minute,
			MaxAccessTTL:  24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
		},
		Session:       session.DefaultConfig(),
		Trust:         device.DefaultTrustPolicy(),
		Rate:          ratelimit.DefaultConfig(),
		Password:      password.DefaultConfig(),
		ResetTokenTTL: 15 * time.Minute,
	}
}

// Validate checks the aggregate configuration.
func (c Config) Validate() error {
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if c.Session.Ceiling <= 0 {
		return fmt.Errorf("%w: session ceiling must be positive", ErrValidation)
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteTTL <= 0 {
		return fmt.Errorf("%w: session timeouts must be positive", ErrValidation)
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteTTL {
		return fmt.Errorf("%w: idle timeout exceeds absolute session TTL", ErrValidation)
	}
	if len(c.Rate.Rules) == 0 {
		return fmt.Errorf("%w: no rate rules configured", ErrValidation)
	}
	for name, rule := range c.Rate.Rules {
		if rule.MaxAttempts <= 0 || rule.Window <= 0 || rule.BlockFor <= 0 {
			return fmt.Errorf("%w: rate rule %q incomplete", ErrValidation, name)
		}
	}
	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("%w: reset token TTL must be positive", ErrValidation)
	}
	return nil
}
