package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

func testConfig() Config {
	return Config{
		Secret:        []byte("0123456789abcdef0123456789abcdef"),
		SigningMethod: "HS256",
		Issuer:        "gotrust-test",
		Audience:      "gotrust-api",
		AccessTTL:     15 * time.Minute,
		MaxAccessTTL:  24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		MaxFutureIAT:  time.Minute,
	}
}

func newTestCodec(t *testing.T) (*Codec, *miniredis.Miniredis) {
	t.Helper()

	mr, client := newTestRedis(t)
	codec, err := NewCodec(testConfig(), NewBlacklist(client), nil)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return codec, mr
}

func TestAccessRoundTrip(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{
		UserID:      "u1",
		Email:       "u1@example.com",
		Roles:       []string{"user"},
		Permissions: []string{"profile:read"},
		SessionID:   "01HZXC0000000000000000000A",
	})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims := codec.Verify(ctx, raw, TypeAccess)
	if claims == nil {
		t.Fatal("Verify returned nil for valid token")
	}
	if claims.Subject != "u1" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.SessionID != "01HZXC0000000000000000000A" {
		t.Fatalf("session id not carried: %q", claims.SessionID)
	}
	if claims.ID == "" {
		t.Fatal("missing jti")
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	refresh, _, err := codec.CreateRefresh(ctx, "u1", "sess", 0)
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}

	if codec.Verify(ctx, refresh, TypeAccess) != nil {
		t.Fatal("refresh token accepted as access token")
	}
	if codec.Verify(ctx, refresh, TypeRefresh) == nil {
		t.Fatal("refresh token rejected as refresh token")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if codec.Verify(ctx, tampered, TypeAccess) != nil {
		t.Fatal("tampered signature accepted")
	}
	if codec.Verify(ctx, "", TypeAccess) != nil {
		t.Fatal("empty token accepted")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1", TTL: time.Minute})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	codec.WithClock(func() time.Time { return time.Now().UTC().Add(2 * time.Minute) })
	if codec.Verify(ctx, raw, TypeAccess) != nil {
		t.Fatal("expired token accepted")
	}
}

func TestOversizedTTLClamped(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1", TTL: 90 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims := codec.Verify(ctx, raw, TypeAccess)
	if claims == nil {
		t.Fatal("clamped token rejected")
	}

	lifetime := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if lifetime > 24*time.Hour {
		t.Fatalf("lifetime %s exceeds max", lifetime)
	}
}

func TestCreateAccessValidation(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	if _, err := codec.CreateAccess(ctx, AccessInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty subject: got %v, want ErrValidation", err)
	}
	if _, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1", Email: "not-an-email"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed email: got %v, want ErrValidation", err)
	}
}

func TestBlacklistRevokes(t *testing.T) {
	codec, _ := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	claims := codec.Verify(ctx, raw, TypeAccess)
	if claims == nil {
		t.Fatal("valid token rejected")
	}

	if err := codec.Blacklist(ctx, claims.ID, time.Hour); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	if codec.Verify(ctx, raw, TypeAccess) != nil {
		t.Fatal("revoked token accepted")
	}
}

func TestBlacklistOutageDenies(t *testing.T) {
	codec, mr := newTestCodec(t)
	ctx := context.Background()

	raw, err := codec.CreateAccess(ctx, AccessInput{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	mr.Close()
	if codec.Verify(ctx, raw, TypeAccess) != nil {
		t.Fatal("token accepted while blacklist unreachable")
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short secret", func(c *Config) { c.Secret = []byte("short") }},
		{"bad method", func(c *Config) { c.SigningMethod = "none" }},
		{"no issuer", func(c *Config) { c.Issuer = "" }},
		{"zero ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"excess leeway", func(c *Config) { c.Leeway = 5 * time.Minute }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
				t.Fatalf("got %v, want ErrConfig", err)
			}
		})
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
