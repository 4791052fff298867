// Package metrics holds the engine's hot-path counters. Counters are
// plain atomics so recording costs one uncontended add; exporters read
// a point-in-time snapshot.
package metrics

import "sync/atomic"

// Counters accumulates engine activity. The zero value is ready to use.
type Counters struct {
	LoginSuccess       atomic.Int64
	LoginFailure       atomic.Int64
	TokenIssued        atomic.Int64
	TokenRejected      atomic.Int64
	SessionCreated     atomic.Int64
	SessionEvicted     atomic.Int64
	SessionRegenerated atomic.Int64
	SessionExpired     atomic.Int64
	RateLimited        atomic.Int64
	AnomalyDetected    atomic.Int64
	ActionTokenReuse   atomic.Int64
	CacheFallback      atomic.Int64
}

// Snapshot is a consistent-enough copy of the counters. Individual
// loads are atomic; the snapshot as a whole is not a transaction.
type Snapshot struct {
	LoginSuccess       int64
	LoginFailure       int64
	TokenIssued        int64
	TokenRejected      int64
	SessionCreated     int64
	SessionEvicted     int64
	SessionRegenerated int64
	SessionExpired     int64
	RateLimited        int64
	AnomalyDetected    int64
	ActionTokenReuse   int64
	CacheFallback      int64
}

// Snapshot reads all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		LoginSuccess:       c.LoginSuccess.Load(),
		LoginFailure:       c.LoginFailure.Load(),
		TokenIssued:        c.TokenIssued.Load(),
		TokenRejected:      c.TokenRejected.Load(),
		SessionCreated:     c.SessionCreated.Load(),
		SessionEvicted:     c.SessionEvicted.Load(),
		SessionRegenerated: c.SessionRegenerated.Load(),
		SessionExpired:     c.SessionExpired.Load(),
		RateLimited:        c.RateLimited.Load(),
		AnomalyDetected:    c.AnomalyDetected.Load(),
		ActionTokenReuse:   c.ActionTokenReuse.Load(),
		CacheFallback:      c.CacheFallback.Load(),
	}
}
