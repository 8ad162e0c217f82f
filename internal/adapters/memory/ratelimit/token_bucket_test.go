package ratelimit

import (
	"context"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
)

func TestTokenBucket(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := memclock.NewManualClock(time.Unix(0, 0))
	b := NewTokenBucket(clk, 1, 0.5, time.Hour)

	if ok, _ := b.Allow(ctx, "k"); !ok {
		t.Fatalf("expected first request allowed")
	}
	if ok, _ := b.Allow(ctx, "k"); ok {
		t.Fatalf("expected bucket empty")
	}
	clk.Advance(time.Second)
	if ok, _ := b.Allow(ctx, "k"); ok {
		t.Fatalf("expected half a token to be insufficient")
	}
	clk.Advance(time.Second)
	if ok, _ := b.Allow(ctx, "k"); !ok {
		t.Fatalf("expected refill after two seconds")
	}
}

func TestTokenBucket_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := memclock.NewManualClock(time.Unix(0, 0))
	b := NewTokenBucket(clk, 1, 0, 10*time.Minute)

	for _, k := range []string{"complete:a", "complete:b", "complete:c"} {
		if ok, _ := b.Allow(ctx, k); !ok {
			t.Fatalf("expected %s allowed", k)
		}
	}
	if b.Len() != 3 {
		t.Fatalf("Len()=%d want 3", b.Len())
	}

	clk.Advance(5 * time.Minute)
	if ok, _ := b.Allow(ctx, "complete:a"); ok {
		t.Fatalf("expected complete:a to stay empty without refill")
	}
	clk.Advance(6 * time.Minute)
	if ok, _ := b.Allow(ctx, "complete:d"); !ok {
		t.Fatalf("expected complete:d allowed")
	}
	if b.Len() != 2 {
		t.Fatalf("Len()=%d want 2 after idle buckets are dropped", b.Len())
	}
	if ok, _ := b.Allow(ctx, "complete:a"); ok {
		t.Fatalf("expected recently used complete:a to be kept")
	}
}
