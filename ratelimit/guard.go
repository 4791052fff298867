// Package ratelimit protects sensitive flows with fixed-window
// counters, dual-ceiling checks, automation heuristics, and single-use
// action tokens.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable reports a counter-store failure. Callers deny
	// when the guard cannot answer.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrUnknownEndpoint reports a validate call for an endpoint with
	// no configured rule.
	ErrUnknownEndpoint = errors.New("ratelimit: unknown endpoint")
)

const (
	counterPrefix = "gotrust:rl:"
	blockPrefix   = "gotrust:rlblock:"
)

// Identifier types for window keys and the persistence mirror.
const (
	IdentifierIP    = "ip"
	IdentifierEmail = "email"
	IdentifierUser  = "user"
)

// Rule is one endpoint's fixed-window policy. Exceeding MaxAttempts
// inside Window blocks the identifier for BlockFor.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
	BlockFor    time.Duration
}

// Config maps endpoint names to rules.
type Config struct {
	Rules map[string]Rule
}

// DefaultConfig covers the engine's sensitive endpoints.
func DefaultConfig() Config {
	return Config{Rules: map[string]Rule{
		"login":                 {MaxAttempts: 10, Window: time.Minute, BlockFor: 5 * time.Minute},
		"refresh":               {MaxAttempts: 30, Window: time.Minute, BlockFor: 5 * time.Minute},
		"password_reset":        {MaxAttempts: 3, Window: time.Hour, BlockFor: time.Hour},
		"password_reset_ip":     {MaxAttempts: 10, Window: time.Hour, BlockFor: time.Hour},
		"password_reset_verify": {MaxAttempts: 5, Window: 15 * time.Minute, BlockFor: 30 * time.Minute},
	}}
}

// Window is the persistence-mirror row for one counter window.
type Window struct {
	Identifier     string
	IdentifierType string
	Endpoint       string
	WindowStart    time.Time
	Attempts       int
	BlockedUntil   time.Time
}

// WindowSink mirrors counter activity into durable storage for audit
// and post-outage fallback.
type WindowSink interface {
	UpsertRateWindow(ctx context.Context, w Window) error
}

// Result is the outcome of one guard check.
type Result struct {
	Allowed      bool
	Remaining    int
	RetryAfter   time.Duration
	BlockedUntil time.Time
}

// Guard enforces the rules over Redis counters. Counting is an atomic
// INCR with the expiry attached on the window's first hit.
type Guard struct {
	cfg    Config
	rdb    redis.UniversalClient
	sink   WindowSink
	logger *zap.Logger
	now    func() time.Time

	onLimited func()
}

// NewGuard builds a guard. sink may be nil.
func NewGuard(cfg Config, rdb redis.UniversalClient, sink WindowSink, logger *zap.Logger) *Guard {
	if cfg.Rules == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		cfg:       cfg,
		rdb:       rdb,
		sink:      sink,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		onLimited: func() {},
	}
}

// WithClock overrides the guard clock. Test hook.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// WithLimitedHook registers a callback fired on every denied check.
func (g *Guard) WithLimitedHook(fn func()) *Guard {
	if fn != nil {
		g.onLimited = fn
	}
	return g
}

// Validate counts one attempt against the endpoint's rule and reports
// whether it may proceed. A store failure denies.
func (g *Guard) Validate(ctx context.Context, identifier, identifierType, endpoint string) (Result, error) {
	rule, ok := g.cfg.Rules[endpoint]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}

	key := counterPrefix + endpoint + ":" + identifierType + ":" + identifier
	blockKey := blockPrefix + endpoint + ":" + identifierType + ":" + identifier

	blockTTL, err := g.rdb.TTL(ctx, blockKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if blockTTL > 0 {
		g.onLimited()
		return Result{RetryAfter: blockTTL, BlockedUntil: g.now().Add(blockTTL)}, nil
	}

	count, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := g.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	res := Result{Allowed: true, Remaining: rule.MaxAttempts - int(count)}
	if res.Remaining < 0 {
		res.Remaining = 0
	}

	if int(count) > rule.MaxAttempts {
		if err := g.rdb.Set(ctx, blockKey, "1", rule.BlockFor).Err(); err != nil {
			g.logger.Warn("rate block write failed", zap.Error(err))
		}
		res = Result{RetryAfter: rule.BlockFor, BlockedUntil: g.now().Add(rule.BlockFor)}
		g.onLimited()
	}

	g.mirror(ctx, identifier, identifierType, endpoint, int(count), res)
	return res, nil
}

// ValidateSensitive applies the dual ceiling used by password-reset
// style flows: a coarse per-IP rule and a finer per-identifier rule.
// Either tripping denies.
func (g *Guard) ValidateSensitive(ctx context.Context, identifier, ip, endpoint string) (Result, error) {
	ipRes, err := g.Validate(ctx, ip, IdentifierIP, endpoint+"_ip")
	if err != nil {
		return Result{}, err
	}
	if !ipRes.Allowed {
		return ipRes, nil
	}

	idRes, err := g.Validate(ctx, identifier, IdentifierEmail, endpoint)
	if err != nil {
		return Result{}, err
	}
	if !idRes.Allowed {
		return idRes, nil
	}

	if ipRes.Remaining < idRes.Remaining {
		return ipRes, nil
	}
	return idRes, nil
}

// Reset clears the counter and block for an identifier, typically after
// a successful authentication.
func (g *Guard) Reset(ctx context.Context, identifier, identifierType, endpoint string) error {
	key := counterPrefix + endpoint + ":" + identifierType + ":" + identifier
	blockKey := blockPrefix + endpoint + ":" + identifierType + ":" + identifier
	if err := g.rdb.Del(ctx, key, blockKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (g *Guard) mirror(ctx context.Context, identifier, identifierType, endpoint string, attempts int, res Result) {
	if g.sink == nil {
		return
	}
	w := Window{
		Identifier:     identifier,
		IdentifierType: identifierType,
		Endpoint:       endpoint,
		WindowStart:    g.now(),
		Attempts:       attempts,
		BlockedUntil:   res.BlockedUntil,
	}
	if err := g.sink.UpsertRateWindow(ctx, w); err != nil {
		g.logger.Warn("rate window mirror failed", zap.Error(err))
	}
}
