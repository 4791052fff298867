package goTrust

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/internal/metrics"
	"github.com/MrEthical07/goTrust/permission"
	"github.com/MrEthical07/goTrust/ratelimit"
	"github.com/MrEthical07/goTrust/session"
	"github.com/MrEthical07/goTrust/token"
)

// Engine is the composition root: token codec, permission resolver,
// device engine, session manager, and rate guard behind the high-level
// authentication flows.
type Engine struct {
	cfg Config

	codec    *token.Codec
	resolver *permission.Resolver
	registry *permission.Registry
	graph    *permission.Graph
	devices  *device.Engine
	sessions *session.Manager
	guard    *ratelimit.Guard
	actions  *ratelimit.ActionTokens
	refresh  *refreshLedger

	creds       CredentialStore
	persistence Persistence

	audit    *audit.Dispatcher
	counters *metrics.Counters
	logger   *zap.Logger
	clock    Clock
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.counters.Snapshot()
}

// Sessions returns the session manager for direct lifecycle access.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Devices returns the device engine.
func (e *Engine) Devices() *device.Engine {
	return e.devices
}

// PermissionGraph returns the implication graph built from the
// registered permission set.
func (e *Engine) PermissionGraph() *permission.Graph {
	return e.graph
}

// Login authenticates credentials and opens a session. Credential and
// policy failures all surface as ErrAuthenticationFailed; the concrete
// reason is logged and audited server-side only.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Identifier == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password required", ErrValidation)
	}

	if err := e.gate(ctx, in.IP, ratelimit.IdentifierIP, "login"); err != nil {
		return nil, err
	}
	if err := e.gate(ctx, in.Identifier, ratelimit.IdentifierEmail, "login"); err != nil {
		return nil, err
	}

	if level := ratelimit.ThreatLevel(in.Identifier, in.UserAgent); level >= ratelimit.LevelHigh {
		e.audit.Emit(AuditEvent{
			Kind: "automation_suspected", Severity: audit.SeverityWarning,
			IP: in.IP, Detail: map[string]string{"level": level.String()},
		})
	}

	p, err := e.creds.Lookup(ctx, in.Identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p == nil || !p.Active {
		return nil, e.loginFailed(in, "", "unknown_or_inactive_principal")
	}

	ok, err := e.creds.VerifyPassword(ctx, p, in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, e.loginFailed(in, p.ID, "bad_password")
	}

	assessment, err := e.devices.Assess(ctx, p.ID, in.Signals, in.IP)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(assessment.Anomalies) > 0 {
		e.counters.AnomalyDetected.Add(int64(len(assessment.Anomalies)))
	}
	if assessment.Blocked {
		e.audit.Emit(AuditEvent{
			Kind: "login_blocked", Severity: audit.SeverityCritical,
			UserID: p.ID, IP: in.IP,
			Detail: map[string]string{"risk": string(assessment.Risk)},
		})
		return nil, e.loginFailed(in, p.ID, "device_blocked")
	}

	result := &LoginResult{Principal: p, Anomalies: anomalySignals(assessment)}

	if assessment.RequiresMFA && !assessment.Trusted {
		result.StepUpRequired = true
		e.audit.Emit(AuditEvent{
			Kind: "step_up_required", Severity: audit.SeverityWarning,
			UserID: p.ID, IP: in.IP,
			Detail: map[string]string{"risk": string(assessment.Risk)},
		})
		return result, nil
	}

	sess, err := e.sessions.Create(ctx, session.CreateInput{
		UserID:          p.ID,
		FingerprintHash: assessment.FingerprintHash,
		IP:              in.IP,
		Country:         in.Country,
		UserAgent:       in.UserAgent,
		TrustScore:      assessment.TrustScore,
		NewDevice:       assessment.NewDevice,
	})
	if err != nil {
		return nil, err
	}
	result.Session = sess

	if err := e.issueTokens(ctx, p, sess.ID, result); err != nil {
		return nil, err
	}

	if err := e.guard.Reset(ctx, in.Identifier, ratelimit.IdentifierEmail, "login"); err != nil {
		e.logger.Warn("login counter reset failed", zap.Error(err))
	}

	e.counters.LoginSuccess.Add(1)
	e.audit.Emit(AuditEvent{
		Kind: "login_success", Severity: audit.SeverityInfo,
		UserID: p.ID, SessionID: sess.ID, IP: in.IP,
	})
	return result, nil
}

// Authenticate verifies an access token and validates its session.
// Returns the verified identity or ErrAuthenticationFailed.
func (e *Engine) Authenticate(ctx context.Context, accessToken, ip, userAgent string) (*AuthContext, error) {
	claims := e.codec.Verify(ctx, accessToken, token.TypeAccess)
	if claims == nil {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}
	if claims.SessionID == "" {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}

	v, err := e.sessions.Validate(ctx, claims.SessionID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if v == nil || v.Session.UserID != claims.Subject {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}

	ac := &AuthContext{Claims: claims, Session: v.Session}
	if v.Anomaly {
		e.counters.AnomalyDetected.Add(int64(len(v.AnomalyReasons)))
		for _, reason := range v.AnomalyReasons {
			ac.Anomalies = append(ac.Anomalies, SecurityAnomaly{Kind: reason})
		}
		e.audit.Emit(AuditEvent{
			Kind: "session_anomaly", Severity: audit.SeverityWarning,
			UserID: claims.Subject, SessionID: v.Session.ID, IP: ip,
		})
	}
	return ac, nil
}

// CheckContext is the authorization input: the effective permission
// codes plus request attributes for conditional grants.
type CheckContext struct {
	Permissions []string

	// Superuser bypasses matching entirely. The engine applies it here,
	// before the resolver, as a documented exception.
	Superuser bool

	// Scope selects the registry namespace for condition lookups.
	Scope string

	// Conditions carries request attributes evaluated against the
	// matched permission's conditions.
	Conditions map[string]any
}

// Authorize decides whether the check context grants the required
// "resource:action" code.
func (e *Engine) Authorize(check CheckContext, required string) PermissionDecision {
	if check.Superuser {
		return PermissionDecision{Allowed: true, MatchedRule: "superuser"}
	}

	effective := make(map[string]struct{}, len(check.Permissions))
	for _, code := range check.Permissions {
		effective[code] = struct{}{}
	}

	decision := e.resolver.Check(effective, required)
	if !decision.Allowed {
		return PermissionDecision{}
	}

	// Conditions attach to the required code's definition when one is
	// registered; malformed or unmet conditions deny.
	if def, ok := e.registry.Get(check.Scope, required); ok {
		if !permission.ValidateConditions(def, check.Conditions) {
			return PermissionDecision{}
		}
	}

	return PermissionDecision{Allowed: true, MatchedRule: decision.MatchedRule}
}

// AuthorizeContext authorizes a previously authenticated identity.
func (e *Engine) AuthorizeContext(ac *AuthContext, required string, conditions map[string]any) PermissionDecision {
	if ac == nil || ac.Claims == nil {
		return PermissionDecision{}
	}
	return e.Authorize(CheckContext{
		Permissions: ac.Claims.Permissions,
		Superuser:   hasRole(ac.Claims.Roles, "superuser"),
		Conditions:  conditions,
	}, required)
}

// Refresh rotates a refresh token: the presented token is consumed and
// a new access/refresh pair is issued. Presenting an already-consumed
// token revokes the session it belonged to.
func (e *Engine) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	if err := e.gate(ctx, ip, ratelimit.IdentifierIP, "refresh"); err != nil {
		return nil, err
	}

	claims := e.codec.Verify(ctx, refreshToken, token.TypeRefresh)
	if claims == nil {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}

	userID, sessionID, ok, err := e.refresh.consume(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		// A valid signature with no ledger record means this token was
		// already rotated: replay. Kill the session it was bound to.
		e.counters.TokenRejected.Add(1)
		e.audit.Emit(AuditEvent{
			Kind: "token_reuse_detected", Severity: audit.SeverityCritical,
			UserID: claims.Subject, SessionID: claims.SessionID, IP: ip,
		})
		if claims.SessionID != "" {
			if err := e.sessions.Invalidate(ctx, claims.SessionID, "refresh_token_reuse"); err != nil {
				e.logger.Warn("reuse revocation failed", zap.Error(err))
			}
		}
		return nil, ErrAuthenticationFailed
	}
	if userID != claims.Subject || sessionID != claims.SessionID {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}

	v, err := e.sessions.Validate(ctx, sessionID, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if v == nil {
		e.counters.TokenRejected.Add(1)
		return nil, ErrAuthenticationFailed
	}

	p, err := e.creds.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p == nil || !p.Active {
		return nil, ErrAuthenticationFailed
	}

	// The consumed ledger record is what retires the old token; a
	// replay must still reach the ledger so it can be recognized as
	// reuse, so the old jti is deliberately not blacklisted here.
	result := &LoginResult{Principal: p, Session: v.Session}
	if err := e.issueTokens(ctx, p, sessionID, result); err != nil {
		return nil, err
	}

	e.audit.Emit(AuditEvent{
		Kind: "token_refreshed", Severity: audit.SeverityInfo,
		UserID: p.ID, SessionID: sessionID, IP: ip,
	})
	return result, nil
}

// Logout revokes the presented access token and its session.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	claims := e.codec.Verify(ctx, accessToken, token.TypeAccess)
	if claims == nil {
		return ErrAuthenticationFailed
	}

	if claims.ExpiresAt != nil {
		if err := e.codec.Blacklist(ctx, claims.ID, claims.ExpiresAt.Time.Sub(e.clock.Now())); err != nil {
			e.logger.Warn("logout blacklist failed", zap.Error(err))
		}
	}
	if claims.SessionID != "" {
		if err := e.sessions.Invalidate(ctx, claims.SessionID, "logout"); err != nil {
			return err
		}
	}

	e.audit.Emit(AuditEvent{
		Kind: "logout", Severity: audit.SeverityInfo,
		UserID: claims.Subject, SessionID: claims.SessionID,
	})
	return nil
}

// LogoutEverywhere revokes all of the user's sessions and outstanding
// refresh tokens. Returns the number of sessions revoked.
func (e *Engine) LogoutEverywhere(ctx context.Context, userID string) (int, error) {
	n, err := e.sessions.InvalidateAll(ctx, userID, "", "logout_everywhere")
	if err != nil {
		return n, err
	}
	if err := e.refresh.revokeAll(ctx, userID); err != nil {
		e.logger.Warn("refresh ledger purge failed", zap.String("user_id", userID), zap.Error(err))
	}

	e.audit.Emit(AuditEvent{
		Kind: "logout_everywhere", Severity: audit.SeverityInfo,
		UserID: userID, Detail: map[string]string{"sessions": fmt.Sprint(n)},
	})
	return n, nil
}

// SessionDescriptors lists the user's active sessions.
func (e *Engine) SessionDescriptors(ctx context.Context, userID, currentSessionID string) ([]SessionDescriptor, error) {
	return e.sessions.Descriptors(ctx, userID, currentSessionID)
}

// RegenerateSession swaps the session ID after privilege changes.
func (e *Engine) RegenerateSession(ctx context.Context, sessionID, reason string) (*session.Session, error) {
	fresh, err := e.sessions.Regenerate(ctx, sessionID, reason)
	if err != nil {
		return nil, err
	}
	e.counters.SessionRegenerated.Add(1)
	return fresh, nil
}

// CleanupExpiredSessions sweeps persistence rows past absolute expiry.
func (e *Engine) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return e.sessions.CleanupExpired(ctx)
}

func (e *Engine) issueTokens(ctx context.Context, p *Principal, sessionID string, out *LoginResult) error {
	roles := p.Roles
	if p.Superuser && !hasRole(roles, "superuser") {
		roles = append(append([]string(nil), roles...), "superuser")
	}

	access, err := e.codec.CreateAccess(ctx, token.AccessInput{
		UserID:      p.ID,
		Email:       p.Email,
		Roles:       roles,
		Permissions: p.Permissions,
		SessionID:   sessionID,
	})
	if err != nil {
		return err
	}

	refresh, tokenID, err := e.codec.CreateRefresh(ctx, p.ID, sessionID, 0)
	if err != nil {
		return err
	}
	if err := e.refresh.record(ctx, tokenID, p.ID, sessionID, e.codec.RefreshTTL()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out.AccessToken = access
	out.RefreshToken = refresh
	e.counters.TokenIssued.Add(2)
	return nil
}

// gate runs one guard check, translating denials into RateLimitedError.
func (e *Engine) gate(ctx context.Context, identifier, identifierType, endpoint string) error {
	res, err := e.guard.Validate(ctx, identifier, identifierType, endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !res.Allowed {
		return &RateLimitedError{RetryAfter: res.RetryAfter, BlockedUntil: res.BlockedUntil}
	}
	return nil
}

func (e *Engine) loginFailed(in LoginInput, userID, reason string) error {
	e.counters.LoginFailure.Add(1)
	e.logger.Info("login failed",
		zap.String("user_id", userID),
		zap.String("ip", in.IP),
		zap.String("reason", reason),
	)
	e.audit.Emit(AuditEvent{
		Kind: "login_failed", Severity: audit.SeverityWarning,
		UserID: userID, IP: in.IP, Detail: map[string]string{"reason": reason},
	})
	return ErrAuthenticationFailed
}

func anomalySignals(a *device.Assessment) []SecurityAnomaly {
	if len(a.Anomalies) == 0 {
		return nil
	}
	out := make([]SecurityAnomaly, 0, len(a.Anomalies))
	for _, an := range a.Anomalies {
		out = append(out, SecurityAnomaly{Kind: an.Kind, Detail: an.Detail})
	}
	return out
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
