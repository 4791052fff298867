package audit

import "go.uber.org/zap"

// ZapSink logs audit events through a zap logger. Severity maps to the
// matching zap level.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("kind", e.Kind),
		zap.String("user_id", e.UserID),
		zap.String("session_id", e.SessionID),
		zap.String("ip", e.IP),
	}
	if len(e.Detail) > 0 {
		fields = append(fields, zap.Any("detail", e.Detail))
	}

	switch e.Severity {
	case SeverityCritical:
		s.logger.Error("audit", fields...)
	case SeverityWarning:
		s.logger.Warn("audit", fields...)
	default:
		s.logger.Info("audit", fields...)
	}
}
