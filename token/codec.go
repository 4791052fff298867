// Package token issues and verifies the engine's signed bearer tokens
// and owns their revocation blacklist.
//
// Verification is deliberately oracle-free: Verify returns *Claims or
// nil, never an error, and the concrete rejection reason is only
// written to the server-side log.
package token

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/internal/ident"
)

const (
	maxLeeway        = 2 * time.Minute
	minSecretBytes   = 32
	defaultMaxAccess = 24 * time.Hour
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Config controls token issuance and verification.
type Config struct {
	// Secret is the HMAC signing key. At least 32 bytes.
	Secret []byte

	// SigningMethod is one of HS256, HS384, HS512.
	SigningMethod string

	Issuer   string
	Audience string

	// AccessTTL is the default access-token lifetime. Callers may ask
	// for a longer one; requests above MaxAccessTTL are clamped, not
	// rejected.
	AccessTTL    time.Duration
	MaxAccessTTL time.Duration

	RefreshTTL time.Duration

	// Leeway tolerates clock skew on exp/nbf/iat checks. Zero by
	// default, capped at two minutes.
	Leeway time.Duration

	// MaxFutureIAT rejects tokens whose issued-at lies further in the
	// future than the allowed skew.
	MaxFutureIAT time.Duration
}

// Validate checks the config for use.
func (c Config) Validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("%w: secret must be at least %d bytes", ErrConfig, minSecretBytes)
	}
	switch c.SigningMethod {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("%w: unsupported signing method %q", ErrConfig, c.SigningMethod)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer required", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", ErrConfig)
	}
	if c.MaxAccessTTL > 0 && c.AccessTTL > c.MaxAccessTTL {
		return fmt.Errorf("%w: access TTL exceeds max", ErrConfig)
	}
	if c.Leeway < 0 || c.Leeway > maxLeeway {
		return fmt.Errorf("%w: leeway must be within [0, %s]", ErrConfig, maxLeeway)
	}
	return nil
}

// AccessInput is the material for one access token.
type AccessInput struct {
	UserID      string
	Email       string
	Roles       []string
	Permissions []string
	SessionID   string

	// TTL overrides the configured default when positive. Values above
	// MaxAccessTTL are clamped.
	TTL time.Duration
}

// Codec signs, verifies, and revokes tokens.
type Codec struct {
	cfg       Config
	method    jwt.SigningMethod
	blacklist *Blacklist
	logger    *zap.Logger
	now       func() time.Time
}

// NewCodec builds a Codec. The blacklist is required; pass a nil logger
// for silent operation.
func NewCodec(cfg Config, blacklist *Blacklist, logger *zap.Logger) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if blacklist == nil {
		return nil, fmt.Errorf("%w: blacklist required", ErrConfig)
	}
	if cfg.MaxAccessTTL <= 0 {
		cfg.MaxAccessTTL = defaultMaxAccess
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Codec{
		cfg:       cfg,
		method:    jwt.GetSigningMethod(cfg.SigningMethod),
		blacklist: blacklist,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the codec clock. Test hook.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// CreateAccess issues an access token for the given principal snapshot.
func (c *Codec) CreateAccess(ctx context.Context, in AccessInput) (string, error) {
	if in.UserID == "" {
		return "", fmt.Errorf("%w: empty subject", ErrValidation)
	}
	if in.Email != "" && !emailPattern.MatchString(in.Email) {
		return "", fmt.Errorf("%w: malformed email", ErrValidation)
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = c.cfg.AccessTTL
	}
	if ttl > c.cfg.MaxAccessTTL {
		ttl = c.cfg.MaxAccessTTL
	}

	jti, err := ident.NewJTI()
	if err != nil {
		return "", err
	}

	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   in.UserID,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Email:       in.Email,
		Roles:       in.Roles,
		Permissions: in.Permissions,
		Type:        TypeAccess,
		SessionID:   in.SessionID,
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.cfg.Secret)
}

// CreateRefresh issues a refresh token bound to a session. The returned
// tokenID (also the jti) is what the rotation ledger tracks for
// single-use enforcement.
func (c *Codec) CreateRefresh(ctx context.Context, userID, sessionID string, ttl time.Duration) (string, string, error) {
	if userID == "" {
		return "", "", fmt.Errorf("%w: empty subject", ErrValidation)
	}
	if ttl <= 0 {
		ttl = c.cfg.RefreshTTL
	}

	tokenID := uuid.NewString()
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        tokenID,
		},
		Type:      TypeRefresh,
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.cfg.Secret)
	if err != nil {
		return "", "", err
	}
	return signed, tokenID, nil
}

// Verify validates a raw token of the expected type. It returns the
// claims on success and nil on any failure; the rejection reason is
// logged server-side only.
func (c *Codec) Verify(ctx context.Context, raw, expectedType string) *Claims {
	if raw == "" {
		c.reject("empty token", "")
		return nil
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return c.cfg.Secret, nil },
		jwt.WithValidMethods([]string{c.cfg.SigningMethod}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithLeeway(c.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		c.reject(fmt.Sprintf("parse: %v", err), "")
		return nil
	}

	if claims.Type != expectedType {
		c.reject("type mismatch", claims.ID)
		return nil
	}
	if claims.Subject == "" || claims.ID == "" {
		c.reject("missing required claims", claims.ID)
		return nil
	}
	if c.cfg.MaxFutureIAT > 0 && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.After(c.now().Add(c.cfg.MaxFutureIAT)) {
			c.reject("issued-at too far in future", claims.ID)
			return nil
		}
	}

	revoked, err := c.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		c.logger.Warn("token blacklist check failed, denying", zap.Error(err))
		return nil
	}
	if revoked {
		c.reject("revoked", claims.ID)
		return nil
	}

	return claims
}

// Blacklist revokes a token ID for ttl.
func (c *Codec) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	return c.blacklist.Add(ctx, jti, ttl)
}

// RefreshTTL exposes the configured refresh lifetime for ledger TTLs.
func (c *Codec) RefreshTTL() time.Duration {
	return c.cfg.RefreshTTL
}

func (c *Codec) reject(reason, jti string) {
	c.logger.Debug("token rejected",
		zap.String("reason", reason),
		zap.String("jti", jti),
	)
}
