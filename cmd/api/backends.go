package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	memidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/idempotency"
	memratelimit "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/ratelimit"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/payment/manual"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	pgidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/idempotency"
	pguow "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/uow"
	redisidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/redis/idempotency"
	redisratelimit "github.com/Overland-East-Bay/storefront-api/internal/adapters/redis/ratelimit"
	sqliteidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/sqlite/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/payment"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/ratelimit"
	uowport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// rateLimitKeyTTL bounds how long an idle per-cart bucket survives in Redis.
const rateLimitKeyTTL = 10 * time.Minute

type backends struct {
	runner  uowport.Runner
	idem    idempotencyport.Store
	limiter ratelimit.Limiter

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, clk clockport.Clock, log *slog.Logger) (*backends, error) {
	b := &backends{}
	opts := idempotencyport.Options{LockTTL: cfg.IdempotencyLockTTL, Clock: clk}

	var pool *pgxpool.Pool
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		p, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("invalid postgres config: %w", err)
		}
		pool = p
		b.closers = append(b.closers, pool.Close)
		b.runner = pguow.NewRunner(pool)
	default:
		b.runner = memuow.New()
	}

	var rdb *redis.Client
	switch cfg.IdempotencyBackend {
	case config.BackendPostgres:
		b.idem = pgidempotency.NewStore(pool, opts)
	case config.BackendSQLite:
		s, err := sqliteidempotency.Open(cfg.SQLitePath, b.runner, opts)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = s.Close() })
		b.idem = s
	case config.BackendRedis:
		c, err := openRedis(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		rdb = c
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.idem = redisidempotency.NewStore(rdb, b.runner, opts)
	default:
		b.idem = memidempotency.NewStore(b.runner, opts)
	}

	if cfg.CompleteRateLimitCapacity > 0 {
		if rdb != nil {
			b.limiter = redisratelimit.NewTokenBucket(rdb, clk, cfg.CompleteRateLimitCapacity, cfg.CompleteRateLimitRefill, rateLimitKeyTTL)
		} else {
			b.limiter = memratelimit.NewTokenBucket(clk, cfg.CompleteRateLimitCapacity, cfg.CompleteRateLimitRefill, rateLimitKeyTTL)
		}
	}

	log.Debug("backends ready",
		"storage_backend", cfg.StorageBackend,
		"idempotency_backend", cfg.IdempotencyBackend,
		"lock_ttl", opts.WithDefaults().LockTTL,
		"rate_limited", b.limiter != nil,
	)
	return b, nil
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	return c, nil
}

// newPaymentRegistry enables the listed providers. Only offline providers, which authorize
// immediately, ship with the server.
func newPaymentRegistry(ids []string) (*payment.Registry, error) {
	providers := make([]payment.Provider, 0, len(ids))
	for _, id := range ids {
		switch id {
		case manual.DefaultID, "system", "invoice":
			providers = append(providers, manual.New(id))
		default:
			return nil, fmt.Errorf("PAYMENT_PROVIDERS: unsupported provider %q", id)
		}
	}
	return payment.NewRegistry(providers...)
}
