package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := memclock.NewManualClock(time.Unix(1_700_000_000, 0))
	bucket := NewTokenBucket(client, clk, 2, 1, time.Minute)

	for i := 0; i < 2; i++ {
		allowed, err := bucket.Allow(ctx, "cart_1")
		if err != nil || !allowed {
			t.Fatalf("token %d: expected allowed, got allowed=%v err=%v", i, allowed, err)
		}
	}
	if allowed, _ := bucket.Allow(ctx, "cart_1"); allowed {
		t.Fatalf("expected third token to be rejected")
	}
	if allowed, _ := bucket.Allow(ctx, "cart_2"); !allowed {
		t.Fatalf("expected separate key to have its own bucket")
	}

	// The script takes time from the injected clock, so refill is deterministic.
	clk.Advance(1500 * time.Millisecond)
	allowed, tokens, err := bucket.Take(ctx, "cart_1")
	if err != nil || !allowed {
		t.Fatalf("expected refilled token, got allowed=%v err=%v", allowed, err)
	}
	if tokens != 0 {
		t.Fatalf("expected 0 whole tokens left, got %v", tokens)
	}
}
