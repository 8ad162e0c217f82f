// Package ratelimit is a distributed token bucket backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
)

// TokenBucket implements ratelimit.Limiter with a Lua script so refill and consume are
// atomic across API instances.
type TokenBucket struct {
	client   *redis.Client
	clock    clockport.Clock
	prefix   string
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

func NewTokenBucket(client *redis.Client, clock clockport.Clock, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:   client,
		clock:    clock,
		prefix:   "ratelimit:",
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

func (b *TokenBucket) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := b.Take(ctx, key)
	return allowed, err
}

// Take consumes one token for key if available and reports the tokens left.
func (b *TokenBucket) Take(ctx context.Context, key string) (bool, float64, error) {
	now := b.clock.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{b.prefix + key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("unexpected token bucket reply: %v", res)
	}
	flag, _ := arr[0].(int64)
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return flag == 1, tokens, nil
}

// Lua numbers are truncated to integers in replies, so tokens is returned floored.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
tokens = math.min(capacity, tokens + delta / 1000 * refill)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, math.floor(tokens)}
`)
