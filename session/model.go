// Package session owns the session lifecycle: creation under a
// per-user concurrency ceiling, validation with idle and absolute
// expiry, suspicion flags, regeneration, and revocation.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound reports a missing session.
	ErrNotFound = errors.New("session: not found")

	// ErrStoreUnavailable reports that neither cache nor persistence
	// could serve a request.
	ErrStoreUnavailable = errors.New("session: store unavailable")

	// ErrInvalidState reports a transition the state machine forbids.
	ErrInvalidState = errors.New("session: invalid state transition")

	// ErrLockContention reports that the per-user creation lock could
	// not be acquired in time.
	ErrLockContention = errors.New("session: creation lock contention")
)

// State is a session lifecycle state. A session starts Pending, is
// promoted to Active, and ends in exactly one terminal state.
type State uint8

const (
	StatePending State = iota
	StateActive
	StateIdleExpired
	StateHardExpired
	StateRevoked
	StateEvicted
	StateRegenerated
)

var stateNames = map[State]string{
	StatePending:     "pending",
	StateActive:      "active",
	StateIdleExpired: "idle_expired",
	StateHardExpired: "hard_expired",
	StateRevoked:     "revoked",
	StateEvicted:     "evicted",
	StateRegenerated: "regenerated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateIdleExpired, StateHardExpired, StateRevoked, StateEvicted, StateRegenerated:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateActive || to == StateRevoked
	case StateActive:
		return to.Terminal()
	default:
		return false
	}
}

// Session is one authenticated session. IDs are ULIDs, so sorting by ID
// sorts by creation time.
type Session struct {
	ID     string
	UserID string

	FingerprintHash string
	IP              string
	Country         string
	DeviceType      string
	OSFamily        string

	CreatedAt    time.Time
	LastActivity time.Time

	// ExpiresAt is the absolute expiry. It never slides; only the idle
	// clock resets on activity.
	ExpiresAt time.Time

	State      State
	TrustScore int

	Suspicious       bool
	SuspicionReasons []string

	// EndReason records why a terminal state was entered.
	EndReason string
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.State == StateActive && now.Before(s.ExpiresAt)
}

// transition moves the session to a new state, enforcing the machine.
func (s *Session) transition(to State, reason string) error {
	if !CanTransition(s.State, to) {
		return ErrInvalidState
	}
	s.State = to
	if to.Terminal() {
		s.EndReason = reason
	}
	return nil
}
