package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/internal/ident"
)

// ErrInvalidActionToken is the only error consumers of action tokens
// ever see. Expired, unknown, and replayed tokens all collapse into it
// so responses cannot distinguish the cases; the internal reason goes
// to the log and the reuse hook.
var ErrInvalidActionToken = errors.New("ratelimit: invalid or expired token")

// ReasonTokenReuse is the internal label for a second consume of the
// same token.
const ReasonTokenReuse = "token_reuse_detected"

const (
	actionPrefix = "gotrust:atk:"
	usedPrefix   = "gotrust:atkused:"
)

// consumeScript atomically consumes a token and leaves a reuse marker
// behind. Returns {1, subject} on first use, {2, ""} on reuse, {0, ""}
// when unknown.
var consumeScript = redis.NewScript(`
local subject = redis.call("GET", KEYS[1])
if subject then
	redis.call("DEL", KEYS[1])
	redis.call("SET", KEYS[2], "1", "EX", ARGV[1])
	return {1, subject}
end
if redis.call("EXISTS", KEYS[2]) == 1 then
	return {2, ""}
end
return {0, ""}
`)

// ActionTokens issues and consumes single-use tokens for flows like
// password reset. Tokens are stored hashed with a TTL; the raw value
// exists only in the caller's hands.
type ActionTokens struct {
	rdb    redis.UniversalClient
	logger *zap.Logger

	// reuseMarkerTTL bounds how long a consumed token is remembered for
	// replay detection.
	reuseMarkerTTL time.Duration

	onReuse func()
}

// NewActionTokens builds the token store.
func NewActionTokens(rdb redis.UniversalClient, logger *zap.Logger) *ActionTokens {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionTokens{
		rdb:            rdb,
		logger:         logger,
		reuseMarkerTTL: time.Hour,
		onReuse:        func() {},
	}
}

// WithReuseHook registers a callback fired when a replay is detected.
func (a *ActionTokens) WithReuseHook(fn func()) *ActionTokens {
	if fn != nil {
		a.onReuse = fn
	}
	return a
}

// Issue creates a token bound to (purpose, subject) with the given
// lifetime and returns the raw token.
func (a *ActionTokens) Issue(ctx context.Context, purpose, subject string, ttl time.Duration) (string, error) {
	if purpose == "" || subject == "" {
		return "", fmt.Errorf("%w: purpose and subject required", ErrInvalidActionToken)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	token, err := ident.NewActionToken()
	if err != nil {
		return "", err
	}

	key := actionPrefix + purpose + ":" + ident.HashToken(token)
	if err := a.rdb.Set(ctx, key, subject, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

// Consume redeems a token exactly once and returns its subject. Every
// failure mode returns ErrInvalidActionToken; a detected replay
// additionally fires the reuse hook and logs the internal reason.
func (a *ActionTokens) Consume(ctx context.Context, purpose, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidActionToken
	}

	hash := ident.HashToken(token)
	keys := []string{
		actionPrefix + purpose + ":" + hash,
		usedPrefix + purpose + ":" + hash,
	}

	raw, err := consumeScript.Run(ctx, a.rdb, keys, int(a.reuseMarkerTTL.Seconds())).Result()
	if err != nil {
		a.logger.Warn("action token store failed, denying", zap.Error(err))
		return "", ErrInvalidActionToken
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 2 {
		return "", ErrInvalidActionToken
	}

	status, _ := reply[0].(int64)
	switch status {
	case 1:
		subject, _ := reply[1].(string)
		return subject, nil
	case 2:
		a.onReuse()
		a.logger.Warn("action token rejected",
			zap.String("purpose", purpose),
			zap.String("reason", ReasonTokenReuse),
		)
		return "", ErrInvalidActionToken
	default:
		a.logger.Debug("action token rejected",
			zap.String("purpose", purpose),
			zap.String("reason", "unknown_or_expired"),
		)
		return "", ErrInvalidActionToken
	}
}
