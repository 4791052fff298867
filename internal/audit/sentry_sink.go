package audit

import (
	"github.com/getsentry/sentry-go"
)

// SentrySink forwards warning and critical events to Sentry. Info
// events are dropped so the project quota tracks incidents, not
// traffic.
type SentrySink struct {
	hub *sentry.Hub
}

// NewSentrySink wraps a Sentry hub. Pass nil to use the current hub;
// sentry.Init must have been called by the host application.
func NewSentrySink(hub *sentry.Hub) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Emit(e Event) {
	if e.Severity == SeverityInfo {
		return
	}

	level := sentry.LevelWarning
	if e.Severity == SeverityCritical {
		level = sentry.LevelError
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("audit_kind", e.Kind)
		if e.UserID != "" {
			scope.SetUser(sentry.User{ID: e.UserID, IPAddress: e.IP})
		}
		for k, v := range e.Detail {
			scope.SetExtra(k, v)
		}
		s.hub.CaptureMessage(e.Kind)
	})
}
