package goTrust

import (
	"context"
	"time"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/internal/metrics"
	"github.com/MrEthical07/goTrust/ratelimit"
	"github.com/MrEthical07/goTrust/session"
	"github.com/MrEthical07/goTrust/token"
)

// Principal is the engine's view of an account. The engine never
// creates or edits principals; it only authenticates them.
type Principal struct {
	ID          string
	Email       string
	Roles       []string
	Permissions []string
	Superuser   bool

	// PasswordHash is the stored hash in whatever format the
	// CredentialStore's hasher produces.
	PasswordHash string

	Active bool
}

// CredentialStore is the consumed account backend. Lookup returns
// (nil, nil) for an unknown identifier; the engine keeps responses
// neutral either way.
type CredentialStore interface {
	Lookup(ctx context.Context, identifier string) (*Principal, error)
	VerifyPassword(ctx context.Context, p *Principal, password string) (bool, error)
	HashPassword(ctx context.Context, password string) (string, error)
	UpdatePassword(ctx context.Context, userID, encodedHash string) error
}

// Persistence aggregates the durable stores the engine consumes. The
// pgstore package provides a PostgreSQL implementation.
type Persistence interface {
	session.Persistence
	device.Persistence
	ratelimit.WindowSink
}

// TravelChecker re-exports the device-layer interface for builder
// wiring.
type TravelChecker = device.TravelChecker

// AuditSink re-exports the audit sink interface; see the audit
// constructors on the builder.
type AuditSink = audit.Sink

// AuditEvent is the event type delivered to sinks.
type AuditEvent = audit.Event

// MetricsSnapshot is a point-in-time copy of the engine counters.
type MetricsSnapshot = metrics.Snapshot

// TokenClaims is the verified claim set handed back to callers.
type TokenClaims = token.Claims

// SessionDescriptor describes one active session for device-management
// surfaces.
type SessionDescriptor = session.Descriptor

// PermissionDecision is the outcome of an authorization check.
type PermissionDecision struct {
	Allowed bool

	// MatchedRule is the effective code that granted access, or
	// "superuser" for the bypass. Empty on deny.
	MatchedRule string
}

// LoginInput carries one login attempt.
type LoginInput struct {
	Identifier string
	Password   string

	IP        string
	Country   string
	UserAgent string
	Signals   device.Signals
}

// LoginResult is a successful login. Anomalies are non-fatal signals;
// when StepUpRequired is set the tokens are empty and the caller must
// run its step-up flow before retrying.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	Session   *session.Session
	Principal *Principal

	StepUpRequired bool
	Anomalies      []SecurityAnomaly
}

// AuthContext is a verified request identity: token claims plus the
// validated session.
type AuthContext struct {
	Claims    *TokenClaims
	Session   *session.Session
	Anomalies []SecurityAnomaly
}

// Clock abstracts time for deterministic tests. All engine timestamps
// are UTC.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
