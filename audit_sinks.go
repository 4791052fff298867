package goTrust

import (
	"io"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/internal/audit"
)

// Severity labels for audit events, in escalating order.
const (
	AuditInfo     = audit.SeverityInfo
	AuditWarning  = audit.SeverityWarning
	AuditCritical = audit.SeverityCritical
)

// NewZapAuditSink writes audit events through a zap logger, one entry
// per event at a level matching the severity.
func NewZapAuditSink(logger *zap.Logger) AuditSink {
	return audit.NewZapSink(logger)
}

// NewSentryAuditSink forwards warning and critical events to Sentry.
// Info events are dropped. hub may be nil for the current hub.
func NewSentryAuditSink(hub *sentry.Hub) AuditSink {
	return audit.NewSentrySink(hub)
}

// NewJSONAuditSink appends events to w as JSON lines.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewChannelAuditSink buffers events on a channel for consumers that
// want to drain them. Events are dropped when the buffer is full; read
// them from Events.
func NewChannelAuditSink(buffer int) (AuditSink, <-chan AuditEvent) {
	s := audit.NewChannelSink(buffer)
	return s, s.Events()
}
