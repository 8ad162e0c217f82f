package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	pgidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/idempotency"
	redisidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/redis/idempotency"
	sqliteidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/sqlite/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations and the SQLite schema for the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			applied := false
			if cfg.StorageBackend == config.BackendPostgres {
				pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 2})
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := postgres.Migrate(ctx, pool); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "postgres: migrations applied")
				applied = true
			}
			if cfg.IdempotencyBackend == config.BackendSQLite {
				// Open applies the schema.
				s, err := sqliteidempotency.Open(cfg.SQLitePath, memuow.New(), idempotency.Options{})
				if err != nil {
					return err
				}
				if err := s.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sqlite: schema applied to %s\n", cfg.SQLitePath)
				applied = true
			}
			if !applied {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to migrate for the configured backends")
			}
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print an idempotency record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store idempotency.Store) error {
				rec, err := store.Get(ctx, idempotency.Key(args[0]))
				if err != nil {
					return describe(args[0], err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recordJSON(rec))
			})
		},
	}
}

func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <key>",
		Short: "Clear a stale lock, leaving the recovery point untouched",
		Long: `Clear locked_at on an idempotency record so the next request with the key resumes
at its recovery point. Only unlock keys whose holder is known to be gone: a live holder
keeps running and will fail to persist its stage.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store idempotency.Store) error {
				key := idempotency.Key(args[0])
				if err := store.Unlock(ctx, key); err != nil {
					return describe(args[0], err)
				}
				rec, err := store.Get(ctx, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s at recovery point %s\n", key, rec.RecoveryPoint)
				return nil
			})
		},
	}
}

// withStore opens the configured persistent idempotency store. Stages never run here, so
// stores that need a runner get an in-memory one.
func withStore(ctx context.Context, fn func(ctx context.Context, store idempotency.Store) error) error {
	cfg, err := config.LoadStorage()
	if err != nil {
		return err
	}
	opts := idempotency.Options{LockTTL: cfg.IdempotencyLockTTL}

	switch cfg.IdempotencyBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, pgidempotency.NewStore(pool, opts))
	case config.BackendSQLite:
		s, err := sqliteidempotency.Open(cfg.SQLitePath, memuow.New(), opts)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(ctx, s)
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
		}
		return fn(ctx, redisidempotency.NewStore(rdb, memuow.New(), opts))
	default:
		return fmt.Errorf("idempotency backend %q keeps records in process memory; nothing to inspect", cfg.IdempotencyBackend)
	}
}

func describe(key string, err error) error {
	if errors.Is(err, idempotency.ErrNotFound) {
		return fmt.Errorf("no idempotency record for key %q", key)
	}
	return err
}

type recordOut struct {
	Key           string          `json:"idempotency_key"`
	CreatedAt     time.Time       `json:"created_at"`
	LockedAt      *time.Time      `json:"locked_at"`
	RequestMethod string          `json:"request_method"`
	RequestParams json.RawMessage `json:"request_params,omitempty"`
	RequestBody   json.RawMessage `json:"request_body,omitempty"`
	RequestPath   string          `json:"request_path"`
	ResponseCode  int             `json:"response_code,omitempty"`
	ResponseBody  json.RawMessage `json:"response_body,omitempty"`
	RecoveryPoint string          `json:"recovery_point"`
}

func recordJSON(rec idempotency.Record) recordOut {
	return recordOut{
		Key:           string(rec.Key),
		CreatedAt:     rec.CreatedAt,
		LockedAt:      rec.LockedAt,
		RequestMethod: rec.RequestMethod,
		RequestParams: rec.RequestParams,
		RequestBody:   rec.RequestBody,
		RequestPath:   rec.RequestPath,
		ResponseCode:  rec.ResponseCode,
		ResponseBody:  rec.ResponseBody,
		RecoveryPoint: string(rec.RecoveryPoint),
	}
}
