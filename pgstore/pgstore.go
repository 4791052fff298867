// Package pgstore is the PostgreSQL reference implementation of the
// engine's persistence interfaces: sessions, device records, and rate
// windows. Schema management is the host application's concern; the
// expected tables are:
//
//	trust_sessions (id text primary key, user_id text, fingerprint_hash
//	  text, ip text, country text, device_type text, os_family text,
//	  created_at timestamptz, last_activity timestamptz, expires_at
//	  timestamptz, state smallint, trust_score int, suspicious bool,
//	  suspicion_reasons text[], end_reason text)
//
//	trust_devices (user_id text, fingerprint_hash text, first_seen
//	  timestamptz, last_seen timestamptz, seen_count int, trusted bool,
//	  verified_at timestamptz null, trust_score int,
//	  primary key (user_id, fingerprint_hash))
//
//	trust_rate_windows (identifier text, identifier_type text, endpoint
//	  text, window_start timestamptz, attempts int, blocked_until
//	  timestamptz null, primary key (identifier, identifier_type,
//	  endpoint))
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/ratelimit"
	"github.com/MrEthical07/goTrust/session"
)

// Store implements session.Persistence, device.Persistence, and
// ratelimit.WindowSink over one connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool from a DSN and wraps it.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const saveSessionSQL = `
INSERT INTO trust_sessions (
	id, user_id, fingerprint_hash, ip, country, device_type, os_family,
	created_at, last_activity, expires_at, state, trust_score,
	suspicious, suspicion_reasons, end_reason
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	last_activity = EXCLUDED.last_activity,
	state = EXCLUDED.state,
	trust_score = EXCLUDED.trust_score,
	suspicious = EXCLUDED.suspicious,
	suspicion_reasons = EXCLUDED.suspicion_reasons,
	end_reason = EXCLUDED.end_reason`

// SaveSession upserts a session row.
func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	_, err := s.pool.Exec(ctx, saveSessionSQL,
		sess.ID, sess.UserID, sess.FingerprintHash, sess.IP, sess.Country,
		sess.DeviceType, sess.OSFamily, sess.CreatedAt, sess.LastActivity,
		sess.ExpiresAt, int16(sess.State), sess.TrustScore,
		sess.Suspicious, sess.SuspicionReasons, sess.EndReason,
	)
	return err
}

const sessionColumns = `
	id, user_id, fingerprint_hash, ip, country, device_type, os_family,
	created_at, last_activity, expires_at, state, trust_score,
	suspicious, suspicion_reasons, end_reason`

// GetSession returns (nil, nil) when the row is missing.
func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+sessionColumns+` FROM trust_sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

// ListSessions returns every stored session for the user, newest last.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+sessionColumns+` FROM trust_sessions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteExpiredSessions removes rows past their absolute expiry,
// whatever state they ended in.
func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trust_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess  session.Session
		state int16
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.FingerprintHash, &sess.IP, &sess.Country,
		&sess.DeviceType, &sess.OSFamily, &sess.CreatedAt, &sess.LastActivity,
		&sess.ExpiresAt, &state, &sess.TrustScore,
		&sess.Suspicious, &sess.SuspicionReasons, &sess.EndReason,
	)
	if err != nil {
		return nil, err
	}
	sess.State = session.State(state)
	return &sess, nil
}

const saveDeviceSQL = `
INSERT INTO trust_devices (
	user_id, fingerprint_hash, first_seen, last_seen, seen_count,
	trusted, verified_at, trust_score
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, fingerprint_hash) DO UPDATE SET
	last_seen = EXCLUDED.last_seen,
	seen_count = EXCLUDED.seen_count,
	trusted = EXCLUDED.trusted,
	verified_at = EXCLUDED.verified_at,
	trust_score = EXCLUDED.trust_score`

// SaveDevice upserts a device record.
func (s *Store) SaveDevice(ctx context.Context, rec *device.Record) error {
	_, err := s.pool.Exec(ctx, saveDeviceSQL,
		rec.UserID, rec.FingerprintHash, rec.FirstSeen, rec.LastSeen,
		rec.SeenCount, rec.Trusted, rec.VerifiedAt, rec.TrustScore,
	)
	return err
}

// GetDevice returns (nil, nil) when the row is missing.
func (s *Store) GetDevice(ctx context.Context, userID, fingerprintHash string) (*device.Record, error) {
	var rec device.Record
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, fingerprint_hash, first_seen, last_seen,
			seen_count, trusted, verified_at, trust_score
		FROM trust_devices
		WHERE user_id = $1 AND fingerprint_hash = $2`,
		userID, fingerprintHash,
	).Scan(
		&rec.UserID, &rec.FingerprintHash, &rec.FirstSeen, &rec.LastSeen,
		&rec.SeenCount, &rec.Trusted, &rec.VerifiedAt, &rec.TrustScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CountDevices returns the user's distinct device count.
func (s *Store) CountDevices(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trust_devices WHERE user_id = $1`, userID,
	).Scan(&n)
	return n, err
}

const upsertWindowSQL = `
INSERT INTO trust_rate_windows (
	identifier, identifier_type, endpoint, window_start, attempts, blocked_until
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (identifier, identifier_type, endpoint) DO UPDATE SET
	window_start = EXCLUDED.window_start,
	attempts = GREATEST(trust_rate_windows.attempts, EXCLUDED.attempts),
	blocked_until = EXCLUDED.blocked_until`

// UpsertRateWindow mirrors one counter observation. Attempts only move
// forward within a window, so delayed mirrors cannot undercount.
func (s *Store) UpsertRateWindow(ctx context.Context, w ratelimit.Window) error {
	var blocked *time.Time
	if !w.BlockedUntil.IsZero() {
		blocked = &w.BlockedUntil
	}

	_, err := s.pool.Exec(ctx, upsertWindowSQL,
		w.Identifier, w.IdentifierType, w.Endpoint,
		w.WindowStart, w.Attempts, blocked,
	)
	return err
}
