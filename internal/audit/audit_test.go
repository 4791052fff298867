package audit

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestChannelSinkDropsWhenFull(t *testing.T) {
	s := NewChannelSink(1)

	s.Emit(Event{Kind: "first"})
	s.Emit(Event{Kind: "dropped"})

	select {
	case e := <-s.Events():
		if e.Kind != "first" {
			t.Fatalf("got %q, want first", e.Kind)
		}
	default:
		t.Fatal("expected buffered event")
	}

	select {
	case e := <-s.Events():
		t.Fatalf("expected overflow drop, got %q", e.Kind)
	default:
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)

	s.Emit(Event{Kind: "login_failed", Severity: SeverityWarning, UserID: "u1"})

	var got Event
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != "login_failed" || got.UserID != "u1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if buf.Bytes()[buf.Len()-1] != '\n' {
		t.Fatal("missing trailing newline")
	}
}

func TestDispatcherStampsTimeAndFansOut(t *testing.T) {
	a := NewChannelSink(4)
	b := NewChannelSink(4)
	d := NewDispatcher(a, nil, b)

	d.Emit(Event{Kind: "session_evicted"})

	for _, s := range []*ChannelSink{a, b} {
		select {
		case e := <-s.Events():
			if e.Time.IsZero() {
				t.Fatal("dispatcher did not stamp time")
			}
		default:
			t.Fatal("sink did not receive event")
		}
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(Event{Kind: "noop"})
}
