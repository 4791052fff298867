package goTrust

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshPrefix    = "gotrust:refresh:"
	refreshIdxPrefix = "gotrust:refreshidx:"
)

// consumeRefreshScript removes a rotation record atomically: only the
// first presenter of a refresh token gets its value back, so a replayed
// token is detectable as a missing record.
var consumeRefreshScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v then
	redis.call("DEL", KEYS[1])
	return v
end
return false
`)

// refreshLedger tracks outstanding refresh-token IDs for single-use
// rotation. One record per issued refresh token, value "userID|sessionID",
// TTL equal to the token lifetime.
type refreshLedger struct {
	rdb redis.UniversalClient
}

func newRefreshLedger(rdb redis.UniversalClient) *refreshLedger {
	return &refreshLedger{rdb: rdb}
}

func (l *refreshLedger) record(ctx context.Context, tokenID, userID, sessionID string, ttl time.Duration) error {
	pipe := l.rdb.TxPipeline()
	pipe.Set(ctx, refreshPrefix+tokenID, userID+"|"+sessionID, ttl)
	pipe.SAdd(ctx, refreshIdxPrefix+userID, tokenID)
	pipe.Expire(ctx, refreshIdxPrefix+userID, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// consume redeems a rotation record. ok is false when the record is
// gone, which for a cryptographically valid token means reuse.
func (l *refreshLedger) consume(ctx context.Context, tokenID string) (userID, sessionID string, ok bool, err error) {
	raw, err := consumeRefreshScript.Run(ctx, l.rdb, []string{refreshPrefix + tokenID}).Text()
	if err != nil {
		if err == redis.Nil {
			return "", "", false, nil
		}
		return "", "", false, err
	}

	userID, sessionID, found := strings.Cut(raw, "|")
	if !found {
		return "", "", false, nil
	}
	l.rdb.SRem(ctx, refreshIdxPrefix+userID, tokenID)
	return userID, sessionID, true, nil
}

// revokeAll drops every outstanding refresh record for the user.
func (l *refreshLedger) revokeAll(ctx context.Context, userID string) error {
	ids, err := l.rdb.SMembers(ctx, refreshIdxPrefix+userID).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, refreshPrefix+id)
	}
	keys = append(keys, refreshIdxPrefix+userID)
	return l.rdb.Del(ctx, keys...).Err()
}
