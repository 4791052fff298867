package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrStoreUnavailable reports that neither the cache nor the
	// persistence layer could serve a device lookup.
	ErrStoreUnavailable = errors.New("device: store unavailable")

	// ErrNotFound reports a missing device record.
	ErrNotFound = errors.New("device: record not found")
)

const (
	recordPrefix = "gotrust:device:"
	indexPrefix  = "gotrust:devices:"

	// Inactive device records age out of the cache after 90 days.
	defaultRecordTTL = 90 * 24 * time.Hour
)

// Record is one observed (user, device) pairing.
type Record struct {
	UserID          string     `json:"user_id"`
	FingerprintHash string     `json:"fingerprint_hash"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
	SeenCount       int        `json:"seen_count"`
	Trusted         bool       `json:"trusted"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	TrustScore      int        `json:"trust_score"`
}

// Persistence is the authoritative device store behind the cache.
type Persistence interface {
	SaveDevice(ctx context.Context, rec *Record) error
	GetDevice(ctx context.Context, userID, fingerprintHash string) (*Record, error)
	CountDevices(ctx context.Context, userID string) (int, error)
}

// Registry tracks device records. Redis is the shared fast path with a
// 90-day inactivity TTL; an optional Persistence implementation is the
// authoritative fallback. Both stores are written on every observation.
type Registry struct {
	rdb         redis.UniversalClient
	persistence Persistence
	logger      *zap.Logger
	ttl         time.Duration
	now         func() time.Time
}

// NewRegistry builds a registry. persistence may be nil for cache-only
// deployments.
func NewRegistry(rdb redis.UniversalClient, persistence Persistence, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rdb:         rdb,
		persistence: persistence,
		logger:      logger,
		ttl:         defaultRecordTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the registry clock. Test hook.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Observe records one sighting of a device and returns the updated
// record. isNew reports whether this is the first sighting for the
// user/device pair.
func (r *Registry) Observe(ctx context.Context, userID, fingerprintHash string, trustScore int) (rec *Record, isNew bool, err error) {
	now := r.now()

	rec, err = r.Get(ctx, userID, fingerprintHash)
	switch {
	case err == nil:
		rec.LastSeen = now
		rec.SeenCount++
		rec.TrustScore = trustScore
	case errors.Is(err, ErrNotFound):
		isNew = true
		rec = &Record{
			UserID:          userID,
			FingerprintHash: fingerprintHash,
			FirstSeen:       now,
			LastSeen:        now,
			SeenCount:       1,
			TrustScore:      trustScore,
		}
	default:
		return nil, false, err
	}

	if err := r.save(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec, isNew, nil
}

// Get fetches a record, preferring the cache and falling back to
// persistence on a miss or cache outage.
func (r *Registry) Get(ctx context.Context, userID, fingerprintHash string) (*Record, error) {
	raw, err := r.rdb.Get(ctx, recordPrefix+userID+":"+fingerprintHash).Bytes()
	if err == nil {
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
		// Corrupt cache entry: fall through to persistence.
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("device cache read failed", zap.Error(err))
	}

	if r.persistence == nil {
		return nil, ErrNotFound
	}

	rec, err := r.persistence.GetDevice(ctx, userID, fingerprintHash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Count returns how many distinct devices the user has been seen on.
func (r *Registry) Count(ctx context.Context, userID string) (int, error) {
	n, err := r.rdb.SCard(ctx, indexPrefix+userID).Result()
	if err == nil && n > 0 {
		return int(n), nil
	}
	if err != nil {
		r.logger.Warn("device index read failed", zap.Error(err))
	}

	if r.persistence == nil {
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return int(n), nil
	}
	return r.persistence.CountDevices(ctx, userID)
}

// MarkVerified promotes a device to explicitly trusted, typically after
// a completed step-up challenge.
func (r *Registry) MarkVerified(ctx context.Context, userID, fingerprintHash string) error {
	rec, err := r.Get(ctx, userID, fingerprintHash)
	if err != nil {
		return err
	}

	now := r.now()
	rec.Trusted = true
	rec.VerifiedAt = &now
	return r.save(ctx, rec)
}

func (r *Registry) save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := recordPrefix + rec.UserID + ":" + rec.FingerprintHash
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, r.ttl)
	pipe.SAdd(ctx, indexPrefix+rec.UserID, rec.FingerprintHash)
	pipe.Expire(ctx, indexPrefix+rec.UserID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if r.persistence == nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		r.logger.Warn("device cache write failed", zap.Error(err))
	}

	if r.persistence != nil {
		if err := r.persistence.SaveDevice(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
