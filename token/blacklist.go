package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "gotrust:blk:"

// Blacklist is the Redis-backed revocation set. Entries carry the
// remaining lifetime of the revoked token, so the set never outgrows
// the live token population.
type Blacklist struct {
	rdb redis.UniversalClient
}

// NewBlacklist wraps a Redis client.
func NewBlacklist(rdb redis.UniversalClient) *Blacklist {
	return &Blacklist{rdb: rdb}
}

// Add revokes a token ID for ttl. A non-positive ttl is a no-op: the
// token is already past its expiry and will fail verification anyway.
func (b *Blacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("%w: empty jti", ErrBlacklist)
	}
	if ttl <= 0 {
		return nil
	}

	if err := b.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBlacklist, err)
	}
	return nil
}

// Contains reports whether the token ID is revoked. On a Redis error it
// returns true together with the error: an unreachable blacklist must
// read as revoked, never as clean.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrBlacklist, err)
	}
	return n > 0, nil
}
