package goTrust

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigFromEnv builds a Config from GOTRUST_* environment variables on
// top of DefaultConfig. A .env file in the working directory is loaded
// first when present; real environment variables win over it.
//
// Recognized variables:
//
//	GOTRUST_TOKEN_SECRET      signing key (required for a valid config)
//	GOTRUST_TOKEN_ISSUER      token issuer
//	GOTRUST_TOKEN_AUDIENCE    token audience
//	GOTRUST_ACCESS_TTL        access-token lifetime (Go duration)
//	GOTRUST_REFRESH_TTL       refresh-token lifetime
//	GOTRUST_TOKEN_LEEWAY      clock-skew tolerance
//	GOTRUST_SESSION_CEILING   max concurrent sessions per user
//	GOTRUST_SESSION_IDLE      session idle timeout
//	GOTRUST_SESSION_TTL       absolute session lifetime
//	GOTRUST_RESET_TOKEN_TTL   password-reset token lifetime
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv("GOTRUST_TOKEN_SECRET"); v != "" {
		cfg.Token.Secret = []byte(v)
	}
	if v := os.Getenv("GOTRUST_TOKEN_ISSUER"); v != "" {
		cfg.Token.Issuer = v
	}
	if v := os.Getenv("GOTRUST_TOKEN_AUDIENCE"); v != "" {
		cfg.Token.Audience = v
	}

	cfg.Token.AccessTTL = envDuration("GOTRUST_ACCESS_TTL", cfg.Token.AccessTTL)
	cfg.Token.RefreshTTL = envDuration("GOTRUST_REFRESH_TTL", cfg.Token.RefreshTTL)
	cfg.Token.Leeway = envDuration("GOTRUST_TOKEN_LEEWAY", cfg.Token.Leeway)

	cfg.Session.Ceiling = envInt("GOTRUST_SESSION_CEILING", cfg.Session.Ceiling)
	cfg.Session.IdleTimeout = envDuration("GOTRUST_SESSION_IDLE", cfg.Session.IdleTimeout)
	cfg.Session.AbsoluteTTL = envDuration("GOTRUST_SESSION_TTL", cfg.Session.AbsoluteTTL)

	cfg.ResetTokenTTL = envDuration("GOTRUST_RESET_TOKEN_TTL", cfg.ResetTokenTTL)

	return cfg
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
