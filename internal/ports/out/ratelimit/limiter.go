package ratelimit

import "context"

// Limiter admits or rejects one unit of work for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
