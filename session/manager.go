package session

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goTrust/device"
	"github.com/MrEthical07/goTrust/internal/ident"
)

// Suspicion and anomaly reason labels.
const (
	SuspicionRapidCreation = "rapid_session_creation"
	SuspicionUnknownDevice = "unknown_device"
	SuspicionCountryChange = "country_change"

	AnomalyIPChange          = "ip_change"
	AnomalyDeviceClassChange = "device_class_change"
)

// Config tunes the session lifecycle.
type Config struct {
	// Ceiling is the maximum concurrent active sessions per user.
	// Creating one more evicts the oldest.
	Ceiling int

	// IdleTimeout expires sessions with no activity.
	IdleTimeout time.Duration

	// AbsoluteTTL caps total session lifetime. It never slides.
	AbsoluteTTL time.Duration

	// SuspicionBurst sessions created within SuspicionWindow flag the
	// newest one as suspicious.
	SuspicionBurst  int
	SuspicionWindow time.Duration

	// LockWait bounds how long creation waits on the per-user lock.
	LockWait time.Duration
}

// DefaultConfig returns the stock session policy.
func DefaultConfig() Config {
	return Config{
		Ceiling:         5,
		IdleTimeout:     60 * time.Minute,
		AbsoluteTTL:     24 * time.Hour,
		SuspicionBurst:  3,
		SuspicionWindow: 10 * time.Minute,
		LockWait:        2 * time.Second,
	}
}

// CreateInput is the material for a new session. Device fields come
// from the device engine's assessment of the login.
type CreateInput struct {
	UserID          string
	FingerprintHash string
	IP              string
	Country         string
	UserAgent       string
	TrustScore      int

	// NewDevice marks a fingerprint never seen for this user before.
	NewDevice bool
}

// Validation is the outcome of validating a presented session.
type Validation struct {
	Session *Session

	// Anomaly marks soft signals (IP change, device-class change) that
	// do not invalidate the session.
	Anomaly        bool
	AnomalyReasons []string
}

// Descriptor is the caller-facing view of one session, for "my
// devices" style listings.
type Descriptor struct {
	ID           string
	DeviceType   string
	OSFamily     string
	IP           string
	Country      string
	CreatedAt    time.Time
	LastActivity time.Time
	IsCurrent    bool
}

// Manager drives the session state machine over a Store.
type Manager struct {
	cfg    Config
	store  *Store
	logger *zap.Logger
	now    func() time.Time

	onEvict   func()
	onExpire  func()
	onCreated func()
}

// NewManager builds a manager.
func NewManager(cfg Config, store *Store, logger *zap.Logger) *Manager {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultConfig().Ceiling
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.AbsoluteTTL <= 0 {
		cfg.AbsoluteTTL = DefaultConfig().AbsoluteTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = DefaultConfig().LockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		onEvict:   func() {},
		onExpire:  func() {},
		onCreated: func() {},
	}
}

// WithClock overrides the manager clock. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.store.now = now
	return m
}

// WithHooks registers metric callbacks for create, evict, and expire.
func (m *Manager) WithHooks(onCreated, onEvict, onExpire func()) *Manager {
	if onCreated != nil {
		m.onCreated = onCreated
	}
	if onEvict != nil {
		m.onEvict = onEvict
	}
	if onExpire != nil {
		m.onExpire = onExpire
	}
	return m
}

// Store exposes the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}

// Create opens a session for the user, evicting the oldest active
// session when the ceiling is reached. Creation is serialized per user.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Session, error) {
	release, err := m.store.Lock(ctx, in.UserID, ident.NewSessionID(), m.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := m.now()

	active, err := m.activeSessions(ctx, in.UserID, now)
	if err != nil {
		return nil, err
	}

	reasons := m.suspicionReasons(in, active, now)

	// FIFO eviction: ULIDs sort by creation time, so the smallest ID is
	// the oldest session.
	for len(active) >= m.cfg.Ceiling {
		oldest := active[0]
		if err := m.store.Terminate(ctx, oldest, StateEvicted, "concurrency_ceiling"); err != nil {
			return nil, err
		}
		m.onEvict()
		active = active[1:]
	}

	deviceType, osFamily := device.Classify(in.UserAgent)
	s := &Session{
		ID:              ident.NewSessionID(),
		UserID:          in.UserID,
		FingerprintHash: in.FingerprintHash,
		IP:              in.IP,
		Country:         in.Country,
		DeviceType:      deviceType,
		OSFamily:        osFamily,
		CreatedAt:       now,
		LastActivity:    now,
		ExpiresAt:       now.Add(m.cfg.AbsoluteTTL),
		State:           StatePending,
		TrustScore:      in.TrustScore,
	}
	if len(reasons) > 0 {
		s.Suspicious = true
		s.SuspicionReasons = reasons
	}

	if err := s.transition(StateActive, ""); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}

	m.onCreated()
	return s, nil
}

// Validate checks a presented session ID. It returns (nil, nil) when
// the session is missing, not active, or expired; expiry is applied
// exactly once on detection. Soft anomalies flag but do not invalidate.
func (m *Manager) Validate(ctx context.Context, id, ip, userAgent string) (*Validation, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	now := m.now()

	if s.State != StateActive {
		return nil, nil
	}
	if !now.Before(s.ExpiresAt) {
		if err := m.store.Terminate(ctx, s, StateHardExpired, "absolute_expiry"); err != nil {
			m.logger.Warn("hard-expiry transition failed", zap.String("session_id", id), zap.Error(err))
		}
		m.onExpire()
		return nil, nil
	}
	if now.Sub(s.LastActivity) > m.cfg.IdleTimeout {
		if err := m.store.Terminate(ctx, s, StateIdleExpired, "idle_timeout"); err != nil {
			m.logger.Warn("idle-expiry transition failed", zap.String("session_id", id), zap.Error(err))
		}
		m.onExpire()
		return nil, nil
	}

	v := &Validation{Session: s}

	if ip != "" && s.IP != "" && ip != s.IP {
		v.Anomaly = true
		v.AnomalyReasons = append(v.AnomalyReasons, AnomalyIPChange)
	}
	if userAgent != "" {
		deviceType, osFamily := device.Classify(userAgent)
		if deviceType != s.DeviceType || osFamily != s.OSFamily {
			v.Anomaly = true
			v.AnomalyReasons = append(v.AnomalyReasons, AnomalyDeviceClassChange)
		}
	}

	// Only the idle clock resets; ExpiresAt stays put.
	s.LastActivity = now
	if err := m.store.Save(ctx, s); err != nil {
		m.logger.Warn("activity refresh failed", zap.String("session_id", id), zap.Error(err))
	}

	return v, nil
}

// Invalidate revokes one session. Revoking an already-terminal session
// is a no-op.
func (m *Manager) Invalidate(ctx context.Context, id, reason string) error {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if s.State.Terminal() {
		return nil
	}
	return m.store.Terminate(ctx, s, StateRevoked, reason)
}

// InvalidateAll revokes every session of the user except exceptID.
// Returns the number of sessions revoked.
func (m *Manager) InvalidateAll(ctx context.Context, userID, exceptID, reason string) (int, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, s := range sessions {
		if s.ID == exceptID || s.State.Terminal() {
			continue
		}
		if err := m.store.Terminate(ctx, s, StateRevoked, reason); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// Regenerate replaces the session ID, typically after privilege
// elevation. The old ID stops validating immediately; the replacement
// keeps the original absolute expiry.
func (m *Manager) Regenerate(ctx context.Context, oldID, reason string) (*Session, error) {
	old, err := m.store.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	if old.State != StateActive {
		return nil, ErrInvalidState
	}

	now := m.now()
	fresh := *old
	fresh.ID = ident.NewSessionID()
	fresh.CreatedAt = now
	fresh.LastActivity = now
	fresh.SuspicionReasons = append([]string(nil), old.SuspicionReasons...)

	if err := m.store.Terminate(ctx, old, StateRegenerated, reason); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, &fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// CleanupExpired sweeps persistence rows past their absolute expiry,
// whatever state they ended in.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	if m.store.persistence == nil {
		return 0, nil
	}
	return m.store.persistence.DeleteExpiredSessions(ctx, m.now())
}

// Descriptors lists the user's active sessions for device-management
// surfaces.
func (m *Manager) Descriptors(ctx context.Context, userID, currentID string) ([]Descriptor, error) {
	now := m.now()
	active, err := m.activeSessions(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	out := make([]Descriptor, 0, len(active))
	for _, s := range active {
		out = append(out, Descriptor{
			ID:           s.ID,
			DeviceType:   s.DeviceType,
			OSFamily:     s.OSFamily,
			IP:           s.IP,
			Country:      s.Country,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			IsCurrent:    s.ID == currentID,
		})
	}
	return out, nil
}

// activeSessions returns the user's active sessions sorted oldest
// first.
func (m *Manager) activeSessions(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	all, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := all[:0]
	for _, s := range all {
		if s.Active(now) {
			active = append(active, s)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active, nil
}

func (m *Manager) suspicionReasons(in CreateInput, active []*Session, now time.Time) []string {
	var reasons []string

	recent := 0
	for _, s := range active {
		if now.Sub(s.CreatedAt) <= m.cfg.SuspicionWindow {
			recent++
		}
	}
	// The new session itself counts toward the burst.
	if recent+1 >= m.cfg.SuspicionBurst {
		reasons = append(reasons, SuspicionRapidCreation)
	}

	if in.NewDevice && len(active) > 0 {
		reasons = append(reasons, SuspicionUnknownDevice)
	}

	if in.Country != "" && len(active) > 0 {
		latest := active[len(active)-1]
		if latest.Country != "" && latest.Country != in.Country {
			reasons = append(reasons, SuspicionCountryChange)
		}
	}

	return reasons
}
