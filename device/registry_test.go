package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func TestObserveCountsSightings(t *testing.T) {
	_, client := newTestRedis(t)
	reg := NewRegistry(client, nil, nil)
	ctx := context.Background()

	rec, isNew, err := reg.Observe(ctx, "u1", "fp-a", 60)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if !isNew || rec.SeenCount != 1 {
		t.Fatalf("first sighting: isNew=%v count=%d", isNew, rec.SeenCount)
	}

	rec, isNew, err = reg.Observe(ctx, "u1", "fp-a", 70)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if isNew || rec.SeenCount != 2 {
		t.Fatalf("second sighting: isNew=%v count=%d", isNew, rec.SeenCount)
	}
	if rec.TrustScore != 70 {
		t.Fatalf("score not refreshed: %d", rec.TrustScore)
	}
	if !rec.FirstSeen.Before(rec.LastSeen) && !rec.FirstSeen.Equal(rec.LastSeen) {
		t.Fatal("FirstSeen after LastSeen")
	}
}

func TestCountDistinctDevices(t *testing.T) {
	_, client := newTestRedis(t)
	reg := NewRegistry(client, nil, nil)
	ctx := context.Background()

	for _, fp := range []string{"fp-a", "fp-b", "fp-a"} {
		if _, _, err := reg.Observe(ctx, "u1", fp, 50); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}

	n, err := reg.Count(ctx, "u1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}
}

func TestMarkVerified(t *testing.T) {
	_, client := newTestRedis(t)
	reg := NewRegistry(client, nil, nil)
	ctx := context.Background()

	if _, _, err := reg.Observe(ctx, "u1", "fp-a", 50); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if err := reg.MarkVerified(ctx, "u1", "fp-a"); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}

	rec, err := reg.Get(ctx, "u1", "fp-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Trusted || rec.VerifiedAt == nil {
		t.Fatalf("record not promoted: %+v", rec)
	}
}

func TestRecordExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	reg := NewRegistry(client, nil, nil)
	ctx := context.Background()

	if _, _, err := reg.Observe(ctx, "u1", "fp-a", 50); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	mr.FastForward(91 * 24 * time.Hour)

	if _, err := reg.Get(ctx, "u1", "fp-a"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound after TTL", err)
	}
}

type staticTravel struct{ jumped bool }

func (s staticTravel) ImpossibleTravel(context.Context, string, string) (bool, error) {
	return s.jumped, nil
}

func TestAssessCleanDevice(t *testing.T) {
	_, client := newTestRedis(t)
	eng := NewEngine(DefaultTrustPolicy(), NewRegistry(client, nil, nil), nil, nil)
	ctx := context.Background()

	a, err := eng.Assess(ctx, "u1", baseSignals(), "203.0.113.1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Risk != RiskLow || a.Blocked || a.RequiresMFA {
		t.Fatalf("clean device flagged: %+v", a)
	}
	if !a.NewDevice {
		t.Fatal("first sighting not marked new")
	}
}

func TestAssessBotRequiresStepUp(t *testing.T) {
	_, client := newTestRedis(t)
	eng := NewEngine(DefaultTrustPolicy(), NewRegistry(client, nil, nil), nil, nil)
	ctx := context.Background()

	sig := baseSignals()
	sig.UserAgent = "python-requests/2.31"

	a, err := eng.Assess(ctx, "u1", sig, "203.0.113.1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if a.Risk != RiskHigh {
		t.Fatalf("bot UA risk = %s, want high", a.Risk)
	}
	if !a.RequiresMFA {
		t.Fatal("bot UA did not require step-up")
	}
	if a.Blocked {
		t.Fatal("single high-risk flag must not block outright")
	}
}

type countFailPersistence struct{ devices map[string]*Record }

func (p *countFailPersistence) SaveDevice(_ context.Context, rec *Record) error {
	p.devices[rec.UserID+":"+rec.FingerprintHash] = rec
	return nil
}

func (p *countFailPersistence) GetDevice(_ context.Context, userID, fp string) (*Record, error) {
	return p.devices[userID+":"+fp], nil
}

func (p *countFailPersistence) CountDevices(context.Context, string) (int, error) {
	return 0, errors.New("backend down")
}

func TestAssessLogsCountFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	core, logs := observer.New(zap.WarnLevel)
	p := &countFailPersistence{devices: map[string]*Record{}}
	eng := NewEngine(DefaultTrustPolicy(), NewRegistry(client, p, nil), nil, zap.New(core))
	ctx := context.Background()

	// A wrong-typed index key breaks the cached device count; the stub
	// persistence refuses to count either.
	if err := mr.Set(indexPrefix+"u1", "junk"); err != nil {
		t.Fatalf("seed index key: %v", err)
	}

	a, err := eng.Assess(ctx, "u1", baseSignals(), "203.0.113.1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	for _, an := range a.Anomalies {
		if an.Kind == AnomalyDeviceProliferation {
			t.Fatal("proliferation flagged on a failed count")
		}
	}
	if logs.FilterMessage("device count failed").Len() == 0 {
		t.Fatal("count failure not logged")
	}
}

func TestAssessBlocksOnStackedHighRisk(t *testing.T) {
	_, client := newTestRedis(t)
	eng := NewEngine(DefaultTrustPolicy(), NewRegistry(client, nil, nil), staticTravel{jumped: true}, nil)
	ctx := context.Background()

	// Bot UA + impossible travel + low trust score: three flags, high risk.
	sig := Signals{UserAgent: "curl/8.0.1", AdBlocker: true, DoNotTrack: true}

	a, err := eng.Assess(ctx, "u1", sig, "203.0.113.1")
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if len(a.Anomalies) <= 2 {
		t.Fatalf("expected >2 anomalies, got %d", len(a.Anomalies))
	}
	if !a.Blocked {
		t.Fatal("high risk with >2 flags did not block")
	}
}
