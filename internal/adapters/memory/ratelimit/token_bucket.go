// Package ratelimit is a process-local token bucket for single-instance deployments.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// TokenBucket implements ratelimit.Limiter. It is safe for concurrent use.
//
// Buckets untouched for ttl are dropped, like the expiring keys of the Redis limiter.
type TokenBucket struct {
	mu        sync.Mutex
	clock     clockport.Clock
	capacity  float64
	refill    float64
	ttl       time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewTokenBucket(clock clockport.Clock, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		clock:     clock,
		capacity:  float64(capacity),
		refill:    refillPerSecond,
		ttl:       ttl,
		buckets:   make(map[string]*bucket),
		lastSweep: clock.Now(),
	}
}

func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	_ = ctx
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep(now)
	bk, ok := b.buckets[key]
	if !ok {
		bk = &bucket{tokens: b.capacity, last: now}
		b.buckets[key] = bk
	}
	if elapsed := now.Sub(bk.last); elapsed > 0 {
		bk.tokens = math.Min(b.capacity, bk.tokens+elapsed.Seconds()*b.refill)
	}
	bk.last = now
	if bk.tokens < 1 {
		return false, nil
	}
	bk.tokens--
	return true, nil
}

// Len reports how many buckets are held.
func (b *TokenBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}

// sweep runs at most once per ttl. b.mu must be held.
func (b *TokenBucket) sweep(now time.Time) {
	if b.ttl <= 0 || now.Sub(b.lastSweep) < b.ttl {
		return
	}
	for k, bk := range b.buckets {
		if now.Sub(bk.last) >= b.ttl {
			delete(b.buckets, k)
		}
	}
	b.lastSweep = now
}
