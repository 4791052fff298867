package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64) Chrome/120.0"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"
)

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(DefaultConfig(), NewStore(client, nil, nil), nil)
	m.WithClock(func() time.Time { return now })

	return m, mr, &now
}

func create(t *testing.T, m *Manager, in CreateInput) *Session {
	t.Helper()
	if in.UserAgent == "" {
		in.UserAgent = desktopUA
	}
	s, err := m.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestCreateAndValidate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s := create(t, m, CreateInput{UserID: "u1", IP: "203.0.113.9", Country: "DE", TrustScore: 80})
	if s.State != StateActive {
		t.Fatalf("state = %s, want active", s.State)
	}
	if s.DeviceType != "desktop" || s.OSFamily != "windows" {
		t.Fatalf("device class = %s/%s", s.DeviceType, s.OSFamily)
	}
	if s.Suspicious {
		t.Fatalf("first session flagged: %v", s.SuspicionReasons)
	}

	v, err := m.Validate(ctx, s.ID, "203.0.113.9", desktopUA)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v == nil || v.Session.ID != s.ID {
		t.Fatal("valid session rejected")
	}
	if v.Anomaly {
		t.Fatalf("unchanged context flagged: %v", v.AnomalyReasons)
	}
}

func TestValidateUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	v, err := m.Validate(context.Background(), "01J4QDZJ5M3N9W0000000000AB", "", "")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v != nil {
		t.Fatal("unknown session validated")
	}
}

func TestCeilingEvictsOldestFIFO(t *testing.T) {
	m, _, nowp := newTestManager(t)
	ctx := context.Background()

	// IDs come from the wall clock, not the injected one: ulid.Make's
	// monotonic entropy keeps same-millisecond ULIDs ordered. Spacing
	// creations a minute apart only keeps the idle clocks fresh.
	var ids []string
	for i := 0; i < 6; i++ {
		*nowp = nowp.Add(time.Minute)
		s := create(t, m, CreateInput{UserID: "u1"})
		ids = append(ids, s.ID)
	}

	if v, _ := m.Validate(ctx, ids[0], "", ""); v != nil {
		t.Fatal("oldest session survived eviction")
	}
	for _, id := range ids[1:] {
		if v, _ := m.Validate(ctx, id, "", ""); v == nil {
			t.Fatalf("session %s evicted, want only the oldest", id)
		}
	}
}

func TestIdleExpiryAppliedOnce(t *testing.T) {
	m, _, nowp := newTestManager(t)
	ctx := context.Background()

	s := create(t, m, CreateInput{UserID: "u1"})

	*nowp = nowp.Add(61 * time.Minute)
	if v, err := m.Validate(ctx, s.ID, "", ""); err != nil || v != nil {
		t.Fatalf("idle session validated: v=%v err=%v", v, err)
	}
	// Second check: already terminated, still invalid.
	if v, _ := m.Validate(ctx, s.ID, "", ""); v != nil {
		t.Fatal("idle-expired session came back")
	}
}

func TestActivityResetsIdleButNotAbsolute(t *testing.T) {
	m, _, nowp := newTestManager(t)
	ctx := context.Background()

	s := create(t, m, CreateInput{UserID: "u1"})

	// Touch every 50 minutes: idle clock keeps resetting.
	for i := 0; i < 29; i++ {
		*nowp = nowp.Add(50 * time.Minute)
		v, err := m.Validate(ctx, s.ID, "", "")
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if i < 28 {
			if v == nil {
				t.Fatalf("session expired at touch %d despite activity", i)
			}
			continue
		}
		// 29 * 50min > 24h: absolute expiry wins regardless of activity.
		if v != nil {
			t.Fatal("absolute expiry slid with activity")
		}
	}
}

func TestSoftAnomaliesKeepSessionValid(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s := create(t, m, CreateInput{UserID: "u1", IP: "203.0.113.9"})

	v, err := m.Validate(ctx, s.ID, "198.51.100.7", mobileUA)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v == nil {
		t.Fatal("soft anomaly invalidated the session")
	}
	if !v.Anomaly {
		t.Fatal("anomaly not flagged")
	}
	if len(v.AnomalyReasons) != 2 {
		t.Fatalf("reasons = %v, want ip_change and device_class_change", v.AnomalyReasons)
	}
}

func TestSuspicionRapidCreation(t *testing.T) {
	m, _, nowp := newTestManager(t)

	create(t, m, CreateInput{UserID: "u1"})
	*nowp = nowp.Add(time.Minute)
	create(t, m, CreateInput{UserID: "u1"})
	*nowp = nowp.Add(time.Minute)
	s := create(t, m, CreateInput{UserID: "u1"})

	if !s.Suspicious {
		t.Fatal("third session in ten minutes not flagged")
	}
	if !containsReason(s.SuspicionReasons, SuspicionRapidCreation) {
		t.Fatalf("reasons = %v", s.SuspicionReasons)
	}
}

func TestSuspicionCountryChange(t *testing.T) {
	m, _, nowp := newTestManager(t)

	create(t, m, CreateInput{UserID: "u1", Country: "DE"})
	*nowp = nowp.Add(time.Hour)
	s := create(t, m, CreateInput{UserID: "u1", Country: "BR"})

	if !containsReason(s.SuspicionReasons, SuspicionCountryChange) {
		t.Fatalf("reasons = %v, want country_change", s.SuspicionReasons)
	}
}

func TestSuspicionUnknownDevice(t *testing.T) {
	m, _, nowp := newTestManager(t)

	create(t, m, CreateInput{UserID: "u1"})
	*nowp = nowp.Add(time.Hour)
	s := create(t, m, CreateInput{UserID: "u1", NewDevice: true})

	if !containsReason(s.SuspicionReasons, SuspicionUnknownDevice) {
		t.Fatalf("reasons = %v, want unknown_device", s.SuspicionReasons)
	}

	// A brand-new user's first device is not suspicious.
	first := create(t, m, CreateInput{UserID: "u2", NewDevice: true})
	if first.Suspicious {
		t.Fatalf("first device of new user flagged: %v", first.SuspicionReasons)
	}
}

func TestInvalidateAndInvalidateAll(t *testing.T) {
	m, _, nowp := newTestManager(t)
	ctx := context.Background()

	a := create(t, m, CreateInput{UserID: "u1"})
	*nowp = nowp.Add(time.Hour)
	b := create(t, m, CreateInput{UserID: "u1"})
	*nowp = nowp.Add(time.Hour)
	c := create(t, m, CreateInput{UserID: "u1"})

	if err := m.Invalidate(ctx, a.ID, "logout"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if v, _ := m.Validate(ctx, a.ID, "", ""); v != nil {
		t.Fatal("revoked session validated")
	}
	// Idempotent on missing/terminal sessions.
	if err := m.Invalidate(ctx, a.ID, "logout"); err != nil {
		t.Fatalf("repeat Invalidate: %v", err)
	}

	n, err := m.InvalidateAll(ctx, "u1", c.ID, "logout_everywhere")
	if err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoked %d, want 1", n)
	}
	if v, _ := m.Validate(ctx, b.ID, "", ""); v != nil {
		t.Fatal("sibling session survived logout-everywhere")
	}
	if v, _ := m.Validate(ctx, c.ID, "", ""); v == nil {
		t.Fatal("current session revoked despite exception")
	}
}

func TestRegenerate(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	old := create(t, m, CreateInput{UserID: "u1", IP: "203.0.113.9"})

	fresh, err := m.Regenerate(ctx, old.ID, "privilege_elevation")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if fresh.ID == old.ID {
		t.Fatal("regeneration reused the session ID")
	}
	if fresh.UserID != old.UserID || fresh.IP != old.IP {
		t.Fatal("regeneration dropped session attributes")
	}
	if !fresh.ExpiresAt.Equal(old.ExpiresAt) {
		t.Fatal("regeneration extended the absolute expiry")
	}

	if v, _ := m.Validate(ctx, old.ID, "", ""); v != nil {
		t.Fatal("old session ID still validates after regeneration")
	}
	if v, _ := m.Validate(ctx, fresh.ID, "", ""); v == nil {
		t.Fatal("regenerated session does not validate")
	}

	// Regenerating a terminal session is refused.
	if _, err := m.Regenerate(ctx, old.ID, "again"); err == nil {
		t.Fatal("regenerated a non-active session")
	}
}

func TestDescriptors(t *testing.T) {
	m, _, nowp := newTestManager(t)
	ctx := context.Background()

	a := create(t, m, CreateInput{UserID: "u1", IP: "203.0.113.9", Country: "DE"})
	*nowp = nowp.Add(time.Hour)
	b := create(t, m, CreateInput{UserID: "u1", IP: "198.51.100.7", Country: "DE", UserAgent: mobileUA})

	list, err := m.Descriptors(ctx, "u1", b.ID)
	if err != nil {
		t.Fatalf("Descriptors: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(list))
	}
	for _, d := range list {
		switch d.ID {
		case a.ID:
			if d.IsCurrent || d.DeviceType != "desktop" {
				t.Fatalf("descriptor a wrong: %+v", d)
			}
		case b.ID:
			if !d.IsCurrent || d.DeviceType != "mobile" {
				t.Fatalf("descriptor b wrong: %+v", d)
			}
		default:
			t.Fatalf("unexpected descriptor %+v", d)
		}
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}
