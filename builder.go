package goTrust

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/internal/metrics"
	"github.com/MrEthical07/goTrust/permission"
	"github.com/MrEthical07/goTrust/ratelimit"
	"github.com/MrEthical07/goTrust/session"
	"github.com/MrEthical07/goTrust/token"
)

// Builder wires the engine's components. Redis and a CredentialStore
// are required; persistence, logging, audit sinks, and the travel
// checker are optional.
type Builder struct {
	cfg Config

	rdb         redis.UniversalClient
	creds       CredentialStore
	persistence Persistence
	logger      *zap.Logger
	sinks       []AuditSink
	travel      TravelChecker
	clock       Clock
	permissions []permission.Permission
}

// NewBuilder starts a builder from the given config.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithRedis sets the shared cache client. Required.
func (b *Builder) WithRedis(rdb redis.UniversalClient) *Builder {
	b.rdb = rdb
	return b
}

// WithCredentialStore sets the account backend. Required.
func (b *Builder) WithCredentialStore(creds CredentialStore) *Builder {
	b.creds = creds
	return b
}

// WithPersistence sets the authoritative store. Without it the engine
// runs cache-only and logs a warning at build time.
func (b *Builder) WithPersistence(p Persistence) *Builder {
	b.persistence = p
	return b
}

// WithLogger sets the zap logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSinks registers audit sinks.
func (b *Builder) WithAuditSinks(sinks ...AuditSink) *Builder {
	b.sinks = append(b.sinks, sinks...)
	return b
}

// WithTravelChecker injects an impossible-travel detector.
func (b *Builder) WithTravelChecker(tc TravelChecker) *Builder {
	b.travel = tc
	return b
}

// WithClock overrides the engine clock. Test hook.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithPermissions declares the permission set registered and frozen at
// build time.
func (b *Builder) WithPermissions(perms ...permission.Permission) *Builder {
	b.permissions = append(b.permissions, perms...)
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.rdb == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrBuilderState)
	}
	if b.creds == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrBuilderState)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = realClock{}
	}
	if b.persistence == nil {
		logger.Warn("no persistence configured, running cache-only")
	}

	counters := &metrics.Counters{}
	dispatcher := audit.NewDispatcher(b.sinks...)

	codec, err := token.NewCodec(b.cfg.Token, token.NewBlacklist(b.rdb), logger)
	if err != nil {
		return nil, err
	}
	codec.WithClock(clock.Now)

	registry := permission.NewRegistry()
	for _, p := range b.permissions {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	var devicePersistence device.Persistence
	var sessionPersistence session.Persistence
	var windowSink ratelimit.WindowSink
	if b.persistence != nil {
		devicePersistence = b.persistence
		sessionPersistence = b.persistence
		windowSink = b.persistence
	}

	deviceRegistry := device.NewRegistry(b.rdb, devicePersistence, logger)
	deviceEngine := device.NewEngine(b.cfg.Trust, deviceRegistry, b.travel, logger)
	deviceEngine.WithClock(clock.Now)

	sessionStore := session.NewStore(b.rdb, sessionPersistence, logger).
		WithFallbackHook(func() { counters.CacheFallback.Add(1) })
	sessions := session.NewManager(b.cfg.Session, sessionStore, logger).
		WithClock(clock.Now).
		WithHooks(
			func() { counters.SessionCreated.Add(1) },
			func() { counters.SessionEvicted.Add(1) },
			func() { counters.SessionExpired.Add(1) },
		)

	guard := ratelimit.NewGuard(b.cfg.Rate, b.rdb, windowSink, logger).
		WithClock(clock.Now).
		WithLimitedHook(func() { counters.RateLimited.Add(1) })

	actions := ratelimit.NewActionTokens(b.rdb, logger).
		WithReuseHook(func() { counters.ActionTokenReuse.Add(1) })

	return &Engine{
		cfg:         b.cfg,
		codec:       codec,
		resolver:    permission.NewResolver(),
		registry:    registry,
		graph:       registry.Graph(),
		devices:     deviceEngine,
		sessions:    sessions,
		guard:       guard,
		actions:     actions,
		refresh:     newRefreshLedger(b.rdb),
		creds:       b.creds,
		audit:       dispatcher,
		counters:    counters,
		logger:      logger,
		clock:       clock,
		persistence: b.persistence,
	}, nil
}
