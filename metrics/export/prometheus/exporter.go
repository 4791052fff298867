// Package prometheus exposes the engine's counters as a Prometheus
// collector. Register it on any prometheus.Registerer; scrapes read a
// fresh snapshot each time.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/goTrust/internal/metrics"
)

// Collector adapts a snapshot source to prometheus.Collector.
type Collector struct {
	source func() metrics.Snapshot
	descs  map[string]*prometheus.Desc
}

// NewCollector wraps a snapshot source, typically Engine.Metrics.
func NewCollector(source func() metrics.Snapshot) *Collector {
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("gotrust_"+name, help, nil, nil)
	}

	return &Collector{
		source: source,
		descs: map[string]*prometheus.Desc{
			"login_success":       mk("login_success_total", "Successful logins."),
			"login_failure":       mk("login_failure_total", "Failed logins."),
			"token_issued":        mk("tokens_issued_total", "Tokens issued."),
			"token_rejected":      mk("tokens_rejected_total", "Tokens rejected at verification."),
			"session_created":     mk("sessions_created_total", "Sessions created."),
			"session_evicted":     mk("sessions_evicted_total", "Sessions evicted at the concurrency ceiling."),
			"session_regenerated": mk("sessions_regenerated_total", "Session ID regenerations."),
			"session_expired":     mk("sessions_expired_total", "Sessions expired (idle or absolute)."),
			"rate_limited":        mk("rate_limited_total", "Requests denied by the rate guard."),
			"anomaly_detected":    mk("anomalies_detected_total", "Device or session anomalies flagged."),
			"action_token_reuse":  mk("action_token_reuse_total", "Single-use token replays detected."),
			"cache_fallback":      mk("cache_fallbacks_total", "Reads served from persistence after a cache miss or outage."),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source()
	counter := func(key string, v int64) {
		ch <- prometheus.MustNewConstMetric(c.descs[key], prometheus.CounterValue, float64(v))
	}

	counter("login_success", snap.LoginSuccess)
	counter("login_failure", snap.LoginFailure)
	counter("token_issued", snap.TokenIssued)
	counter("token_rejected", snap.TokenRejected)
	counter("session_created", snap.SessionCreated)
	counter("session_evicted", snap.SessionEvicted)
	counter("session_regenerated", snap.SessionRegenerated)
	counter("session_expired", snap.SessionExpired)
	counter("rate_limited", snap.RateLimited)
	counter("anomaly_detected", snap.AnomalyDetected)
	counter("action_token_reuse", snap.ActionTokenReuse)
	counter("cache_fallback", snap.CacheFallback)
}
