// Package audit carries security-relevant events from the engine to
// pluggable sinks. Emission is best-effort: a slow or failing sink must
// never block an authentication flow.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Severity classifies an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a single audit record. Detail values are short strings; the
// engine never places credentials or raw tokens in an event.
type Event struct {
	Time      time.Time         `json:"time"`
	Kind      string            `json:"kind"`
	Severity  Severity          `json:"severity"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Sink receives audit events. Implementations must be safe for
// concurrent use and must not block.
type Sink interface {
	Emit(Event)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(Event) {}

// ChannelSink forwards events to a channel, dropping when full.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(e Event) {
	buf, err := json.Marshal(e)
	if err != nil {
		return
	}
	buf = append(buf, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(buf)
}

// Dispatcher fans events out to every registered sink.
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher wraps the given sinks. A nil or empty sink list yields
// a dispatcher that drops everything.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Dispatcher{sinks: out}
}

// Emit stamps the event time when unset and forwards to all sinks.
func (d *Dispatcher) Emit(e Event) {
	if d == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	for _, s := range d.sinks {
		s.Emit(e)
	}
}
