package goTrust

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/ratelimit"
)

const resetPurpose = "password_reset"

// RequestPasswordReset starts a reset flow and returns a single-use
// token to deliver out of band. An unknown or inactive identifier
// returns an empty token and nil error so the caller's response cannot
// reveal whether the account exists.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier, ip, userAgent string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: identifier required", ErrValidation)
	}

	res, err := e.guard.ValidateSensitive(ctx, identifier, ip, resetPurpose)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !res.Allowed {
		return "", &RateLimitedError{RetryAfter: res.RetryAfter, BlockedUntil: res.BlockedUntil}
	}

	if level := ratelimit.ThreatLevel(identifier, userAgent); level >= ratelimit.LevelMedium {
		e.audit.Emit(AuditEvent{
			Kind: "reset_automation_suspected", Severity: audit.SeverityWarning,
			IP: ip, Detail: map[string]string{"level": level.String()},
		})
	}

	p, err := e.creds.Lookup(ctx, identifier)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if p == nil || !p.Active {
		e.logger.Info("reset requested for unknown identifier", zap.String("ip", ip))
		return "", nil
	}

	raw, err := e.actions.Issue(ctx, resetPurpose, p.ID, e.cfg.ResetTokenTTL)
	if err != nil {
		return "", err
	}

	e.audit.Emit(AuditEvent{
		Kind: "password_reset_requested", Severity: audit.SeverityInfo,
		UserID: p.ID, IP: ip,
	})
	return raw, nil
}

// ConfirmPasswordReset redeems a reset token, stores the new password
// hash, and revokes every session and refresh token the user holds.
// Unknown, expired, and replayed tokens all return the same error.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword, ip string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password required", ErrValidation)
	}

	if err := e.gate(ctx, ip, ratelimit.IdentifierIP, "password_reset_verify"); err != nil {
		return err
	}

	userID, err := e.actions.Consume(ctx, resetPurpose, resetToken)
	if err != nil {
		e.audit.Emit(AuditEvent{
			Kind: "password_reset_rejected", Severity: audit.SeverityWarning, IP: ip,
		})
		return ErrAuthenticationFailed
	}

	hash, err := e.creds.HashPassword(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.creds.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.LogoutEverywhere(ctx, userID); err != nil {
		e.logger.Warn("post-reset revocation failed", zap.String("user_id", userID), zap.Error(err))
	}

	e.audit.Emit(AuditEvent{
		Kind: "password_reset_completed", Severity: audit.SeverityInfo,
		UserID: userID, IP: ip,
	})
	return nil
}
