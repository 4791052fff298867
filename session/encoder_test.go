package session

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func sampleSession() *Session {
	return &Session{
		ID:               "01J4QDZJ5M3N9W0000000000AB",
		UserID:           "u1",
		FingerprintHash:  "a1b2c3",
		IP:               "203.0.113.9",
		Country:          "DE",
		DeviceType:       "desktop",
		OSFamily:         "linux",
		CreatedAt:        time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		LastActivity:     time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC),
		ExpiresAt:        time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC),
		State:            StateActive,
		TrustScore:       85,
		Suspicious:       true,
		SuspicionReasons: []string{SuspicionCountryChange},
		EndReason:        "",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSession()

	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	raw := Encode(sampleSession())
	raw[0] = 99

	if _, err := Decode(raw); !errors.Is(err, ErrCodecVersion) {
		t.Fatalf("got %v, want ErrCodecVersion", err)
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	raw := Encode(sampleSession())

	for _, n := range []int{0, 1, 5, len(raw) / 2, len(raw) - 1} {
		if _, err := Decode(raw[:n]); err == nil {
			t.Fatalf("truncation at %d bytes accepted", n)
		}
	}
}

func TestStateMachine(t *testing.T) {
	if !CanTransition(StatePending, StateActive) {
		t.Fatal("pending -> active refused")
	}
	for _, terminal := range []State{StateIdleExpired, StateHardExpired, StateRevoked, StateEvicted, StateRegenerated} {
		if !CanTransition(StateActive, terminal) {
			t.Fatalf("active -> %s refused", terminal)
		}
		if CanTransition(terminal, StateActive) {
			t.Fatalf("terminal %s allowed to reactivate", terminal)
		}
		if !terminal.Terminal() {
			t.Fatalf("%s not terminal", terminal)
		}
	}
	if CanTransition(StatePending, StateIdleExpired) {
		t.Fatal("pending -> idle_expired allowed")
	}

	s := &Session{State: StateActive}
	if err := s.transition(StateRevoked, "logout"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if s.EndReason != "logout" {
		t.Fatalf("EndReason = %q", s.EndReason)
	}
	if err := s.transition(StateActive, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("got %v, want ErrInvalidState", err)
	}
}
