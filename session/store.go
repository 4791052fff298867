package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessPrefix  = "gotrust:sess:"
	indexPrefix = "gotrust:sessions:"
	lockPrefix  = "gotrust:sesslock:"
)

// deleteScript removes a session key and its index entry in one
// round-trip, so a crash cannot leave the index pointing at a deleted
// session.
var deleteScript = redis.NewScript(`
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return 1
`)

// unlockScript releases a creation lock only for its holder.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Persistence is the authoritative session store behind the cache.
// Implementations return (nil, nil) for a missing session.
type Persistence interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, userID string) ([]*Session, error)
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// Store keeps sessions in Redis with a per-user index set, mirroring
// every write to the optional persistence layer. Cache entries expire
// at the session's absolute expiry.
type Store struct {
	rdb         redis.UniversalClient
	persistence Persistence
	logger      *zap.Logger
	now         func() time.Time

	// onFallback is invoked when a cache miss or outage was served from
	// persistence. Wired to a metrics counter by the engine.
	onFallback func()
}

// NewStore builds a session store. persistence may be nil.
func NewStore(rdb redis.UniversalClient, persistence Persistence, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		rdb:         rdb,
		persistence: persistence,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		onFallback:  func() {},
	}
}

// WithFallbackHook registers a callback fired on persistence fallback.
func (st *Store) WithFallbackHook(fn func()) *Store {
	if fn != nil {
		st.onFallback = fn
	}
	return st
}

// Save writes the session to cache and persistence.
func (st *Store) Save(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(st.now())
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := st.rdb.TxPipeline()
	pipe.Set(ctx, sessPrefix+s.ID, Encode(s), ttl)
	pipe.SAdd(ctx, indexPrefix+s.UserID, s.ID)
	pipe.Expire(ctx, indexPrefix+s.UserID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if st.persistence == nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		st.logger.Warn("session cache write failed", zap.String("session_id", s.ID), zap.Error(err))
	}

	if st.persistence != nil {
		if err := st.persistence.SaveSession(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Get fetches a session, falling back to persistence on miss or cache
// outage. Returns ErrNotFound when neither layer has it.
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := st.rdb.Get(ctx, sessPrefix+id).Bytes()
	if err == nil {
		s, decErr := Decode(raw)
		if decErr == nil {
			return s, nil
		}
		st.logger.Warn("session cache entry corrupt", zap.String("session_id", id), zap.Error(decErr))
	} else if !errors.Is(err, redis.Nil) {
		st.logger.Warn("session cache read failed", zap.Error(err))
	}

	if st.persistence == nil {
		return nil, ErrNotFound
	}

	st.onFallback()
	s, perr := st.persistence.GetSession(ctx, id)
	if perr != nil {
		return nil, perr
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// ListByUser returns the user's sessions known to the cache, falling
// back to persistence when the cache cannot answer.
func (st *Store) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := st.rdb.SMembers(ctx, indexPrefix+userID).Result()
	if err != nil {
		st.logger.Warn("session index read failed", zap.Error(err))
		return st.listFromPersistence(ctx, userID, err)
	}

	sessions := make([]*Session, 0, len(ids))
	for _, id := range ids {
		raw, getErr := st.rdb.Get(ctx, sessPrefix+id).Bytes()
		if errors.Is(getErr, redis.Nil) {
			// Expired entry still in the index: clean it up.
			st.rdb.SRem(ctx, indexPrefix+userID, id)
			continue
		}
		if getErr != nil {
			return st.listFromPersistence(ctx, userID, getErr)
		}
		s, decErr := Decode(raw)
		if decErr != nil {
			st.logger.Warn("session cache entry corrupt", zap.String("session_id", id), zap.Error(decErr))
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (st *Store) listFromPersistence(ctx context.Context, userID string, cause error) ([]*Session, error) {
	if st.persistence == nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
	}
	st.onFallback()
	return st.persistence.ListSessions(ctx, userID)
}

// Delete removes the session from the cache. Persistence keeps the
// terminal row for audit.
func (st *Store) Delete(ctx context.Context, id, userID string) error {
	err := deleteScript.Run(ctx, st.rdb,
		[]string{sessPrefix + id, indexPrefix + userID}, id).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if st.persistence == nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		st.logger.Warn("session cache delete failed", zap.String("session_id", id), zap.Error(err))
	}
	return nil
}

// Terminate moves the session to a terminal state, records it in
// persistence, and drops the cache entry.
func (st *Store) Terminate(ctx context.Context, s *Session, to State, reason string) error {
	if err := s.transition(to, reason); err != nil {
		return err
	}

	if st.persistence != nil {
		if err := st.persistence.SaveSession(ctx, s); err != nil {
			return err
		}
	}
	return st.Delete(ctx, s.ID, s.UserID)
}

// Lock acquires the per-user creation lock, returning a release
// function. Creation is serialized per user so the ceiling check and
// the insert cannot race.
func (st *Store) Lock(ctx context.Context, userID, token string, ttl time.Duration) (func(), error) {
	key := lockPrefix + userID
	deadline := st.now().Add(ttl)

	for {
		ok, err := st.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if ok {
			break
		}
		if st.now().After(deadline) {
			return nil, ErrLockContention
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	release := func() {
		if err := unlockScript.Run(context.Background(), st.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			st.logger.Warn("session lock release failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return release, nil
}
