package goTrust

import (
	"fmt"
	"time"
)

// Finding is one configuration-posture observation.
type Finding struct {
	Area     string
	Severity string
	Message  string
}

// Report is a point-in-time review of the engine's security posture:
// configuration weaknesses ranked by severity, for operator dashboards
// and startup logs.
type Report struct {
	GeneratedAt time.Time
	Findings    []Finding
}

const (
	findingInfo     = "info"
	findingWarning  = "warning"
	findingCritical = "critical"
)

// SecurityReport audits the running configuration. It never fails; an
// empty findings list means nothing stood out.
func (e *Engine) SecurityReport() Report {
	r := Report{GeneratedAt: e.clock.Now()}

	add := func(area, severity, format string, args ...any) {
		r.Findings = append(r.Findings, Finding{
			Area: area, Severity: severity, Message: fmt.Sprintf(format, args...),
		})
	}

	t := e.cfg.Token
	if t.AccessTTL > time.Hour {
		add("token", findingWarning, "access TTL %s exceeds 1h, shrinking the revocation window matters more at this length", t.AccessTTL)
	}
	if t.RefreshTTL > 30*24*time.Hour {
		add("token", findingWarning, "refresh TTL %s exceeds 30d", t.RefreshTTL)
	}
	if t.Leeway > time.Minute {
		add("token", findingInfo, "clock-skew leeway %s is generous", t.Leeway)
	}
	if len(t.Secret) < 48 {
		add("token", findingInfo, "signing key is %d bytes, 48+ recommended for HS256 family", len(t.Secret))
	}

	s := e.cfg.Session
	if s.IdleTimeout > 2*time.Hour {
		add("session", findingWarning, "idle timeout %s exceeds 2h", s.IdleTimeout)
	}
	if s.AbsoluteTTL > 7*24*time.Hour {
		add("session", findingWarning, "absolute session TTL %s exceeds 7d", s.AbsoluteTTL)
	}
	if s.Ceiling > 10 {
		add("session", findingInfo, "session ceiling %d is high for a per-user concurrency cap", s.Ceiling)
	}

	for _, endpoint := range []string{"login", "password_reset", "password_reset_verify"} {
		rule, ok := e.cfg.Rate.Rules[endpoint]
		if !ok {
			add("ratelimit", findingCritical, "no rule for endpoint %q", endpoint)
			continue
		}
		if rule.MaxAttempts > 20 {
			add("ratelimit", findingWarning, "%q allows %d attempts per %s", endpoint, rule.MaxAttempts, rule.Window)
		}
	}

	p := e.cfg.Password
	if p.Memory < 19*1024 {
		add("password", findingWarning, "argon2 memory %d KiB is below the 19 MiB floor", p.Memory)
	}
	if p.Time < 2 {
		add("password", findingWarning, "argon2 time cost %d is below 2", p.Time)
	}

	if e.cfg.ResetTokenTTL > time.Hour {
		add("reset", findingWarning, "reset token TTL %s exceeds 1h", e.cfg.ResetTokenTTL)
	}

	if e.persistence == nil {
		add("storage", findingInfo, "running cache-only, sessions and devices do not survive a cache flush")
	}

	return r
}
