package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestActionTokens(t *testing.T) (*ActionTokens, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewActionTokens(client, nil), mr
}

func TestIssueAndConsumeOnce(t *testing.T) {
	at, _ := newTestActionTokens(t)
	ctx := context.Background()

	token, err := at.Issue(ctx, "pwreset", "u1", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	subject, err := at.Consume(ctx, "pwreset", token)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("subject = %q, want u1", subject)
	}
}

func TestConsumeTwiceDetectsReuse(t *testing.T) {
	at, _ := newTestActionTokens(t)
	ctx := context.Background()

	reuses := 0
	at.WithReuseHook(func() { reuses++ })

	token, err := at.Issue(ctx, "pwreset", "u1", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := at.Consume(ctx, "pwreset", token); err != nil {
		t.Fatalf("first Consume: %v", err)
	}

	_, err = at.Consume(ctx, "pwreset", token)
	if !errors.Is(err, ErrInvalidActionToken) {
		t.Fatalf("got %v, want ErrInvalidActionToken", err)
	}
	if reuses != 1 {
		t.Fatalf("reuse hook fired %d times, want 1", reuses)
	}
}

func TestReuseMessageMatchesUnknownToken(t *testing.T) {
	at, _ := newTestActionTokens(t)
	ctx := context.Background()

	token, err := at.Issue(ctx, "pwreset", "u1", 15*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := at.Consume(ctx, "pwreset", token); err != nil {
		t.Fatalf("first Consume: %v", err)
	}

	_, reuseErr := at.Consume(ctx, "pwreset", token)
	_, unknownErr := at.Consume(ctx, "pwreset", "does-not-exist")

	// The user-facing message must not reveal whether the token was
	// replayed or simply never existed.
	if reuseErr == nil || unknownErr == nil || reuseErr.Error() != unknownErr.Error() {
		t.Fatalf("distinguishable errors: %v vs %v", reuseErr, unknownErr)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	at, mr := newTestActionTokens(t)
	ctx := context.Background()

	token, err := at.Issue(ctx, "pwreset", "u1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := at.Consume(ctx, "pwreset", token); !errors.Is(err, ErrInvalidActionToken) {
		t.Fatalf("got %v, want ErrInvalidActionToken", err)
	}
}

func TestConsumeWrongPurpose(t *testing.T) {
	at, _ := newTestActionTokens(t)
	ctx := context.Background()

	token, err := at.Issue(ctx, "pwreset", "u1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := at.Consume(ctx, "email_change", token); !errors.Is(err, ErrInvalidActionToken) {
		t.Fatalf("cross-purpose consume: got %v, want ErrInvalidActionToken", err)
	}

	// The original purpose still works exactly once.
	if _, err := at.Consume(ctx, "pwreset", token); err != nil {
		t.Fatalf("Consume after cross-purpose probe: %v", err)
	}
}
