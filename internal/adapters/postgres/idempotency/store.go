package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	pguow "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

// Store is a Postgres implementation of idempotency.Store.
//
// Each stage runs in the same transaction as the record update, with the record row held
// by SELECT ... FOR UPDATE NOWAIT. A competing request that hits the row lock gets
// ErrConflict instead of waiting.
type Store struct {
	pool *pgxpool.Pool
	opts idempotency.Options
}

func NewStore(pool *pgxpool.Pool, opts idempotency.Options) *Store {
	return &Store{pool: pool, opts: opts.WithDefaults()}
}

const selectRecord = `
	SELECT idempotency_key, created_at, locked_at, request_method, request_params,
	       request_body, request_path, response_code, response_body, recovery_point
	FROM idempotency_keys
	WHERE idempotency_key = $1
`

func (s *Store) InitializeRequest(ctx context.Context, req idempotency.Request) (idempotency.Record, error) {
	if s.pool == nil {
		return idempotency.Record{}, errors.New("nil postgres pool")
	}
	req, err := req.Normalize()
	if err != nil {
		return idempotency.Record{}, err
	}
	now := s.opts.LockTime()

	var rec idempotency.Record
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (
				idempotency_key, created_at, locked_at, request_method, request_params,
				request_body, request_path, recovery_point
			) VALUES ($1,$2,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (idempotency_key) DO NOTHING
		`,
			string(req.Key),
			now,
			req.Method,
			[]byte(req.Params),
			nullableJSON(req.Body),
			req.Path,
			string(req.Initial),
		)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 1 {
			rec = idempotency.NewRecord(req, now)
			return nil
		}

		existing, err := scanRecord(tx.QueryRow(ctx, selectRecord+` FOR UPDATE NOWAIT`, string(req.Key)))
		if err != nil {
			return err
		}
		lock, err := s.opts.CheckReplay(existing, req, now)
		if err != nil {
			return err
		}
		if lock {
			lockedAt := s.opts.NextLock(existing.LockedAt, now)
			if _, err := tx.Exec(ctx, `
				UPDATE idempotency_keys SET locked_at = $2 WHERE idempotency_key = $1
			`, string(req.Key), lockedAt); err != nil {
				return err
			}
			existing.LockedAt = &lockedAt
		}
		rec = existing
		return nil
	})
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) WorkStage(ctx context.Context, rec idempotency.Record, fn idempotency.StageFunc) (idempotency.Record, error) {
	if s.pool == nil {
		return idempotency.Record{}, errors.New("nil postgres pool")
	}
	now := s.opts.LockTime()

	var (
		result   idempotency.Record
		prevLock *time.Time
		stageErr error
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cur, err := scanRecord(tx.QueryRow(ctx, selectRecord+` FOR UPDATE NOWAIT`, string(rec.Key)))
		if err != nil {
			return err
		}
		run, err := s.opts.CheckStage(cur, rec, now)
		if err != nil {
			return err
		}
		if !run {
			result = cur
			return nil
		}
		prevLock = cur.LockedAt

		out, err := fn(ctx, pguow.Bind(tx))
		if err != nil {
			stageErr = err
			return err
		}

		next := out.Apply(cur)
		if _, err := tx.Exec(ctx, `
			UPDATE idempotency_keys
			SET locked_at = NULL,
			    recovery_point = $2,
			    response_code = $3,
			    response_body = $4
			WHERE idempotency_key = $1
		`,
			string(rec.Key),
			string(next.RecoveryPoint),
			nullableCode(next.ResponseCode),
			nullableJSON(next.ResponseBody),
		); err != nil {
			return err
		}
		result = next
		return nil
	})
	if stageErr != nil {
		s.release(context.WithoutCancel(ctx), rec.Key, prevLock)
		return idempotency.Record{}, stageErr
	}
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	return result, nil
}

// release clears a lock left behind by a rolled-back stage, unless someone else has
// locked the record since.
func (s *Store) release(ctx context.Context, key idempotency.Key, lockedAt *time.Time) {
	if lockedAt == nil {
		return
	}
	_, _ = s.pool.Exec(ctx, `
		UPDATE idempotency_keys SET locked_at = NULL
		WHERE idempotency_key = $1 AND locked_at = $2
	`, string(key), *lockedAt)
}

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, error) {
	if s.pool == nil {
		return idempotency.Record{}, errors.New("nil postgres pool")
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, selectRecord, string(key)))
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) Unlock(ctx context.Context, key idempotency.Key) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE idempotency_keys SET locked_at = NULL WHERE idempotency_key = $1
	`, string(key))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return idempotency.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (idempotency.Record, error) {
	var (
		rec                    idempotency.Record
		key, point             string
		lockedAt               *time.Time
		responseCode           *int32
		params, body, response []byte
	)
	err := row.Scan(
		&key,
		&rec.CreatedAt,
		&lockedAt,
		&rec.RequestMethod,
		&params,
		&body,
		&rec.RequestPath,
		&responseCode,
		&response,
		&point,
	)
	if err != nil {
		return idempotency.Record{}, err
	}
	rec.Key = idempotency.Key(key)
	rec.RequestParams = params
	rec.RequestBody = body
	rec.ResponseBody = response
	rec.RecoveryPoint = idempotency.RecoveryPoint(point)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if lockedAt != nil {
		v := lockedAt.UTC()
		rec.LockedAt = &v
	}
	if responseCode != nil {
		rec.ResponseCode = int(*responseCode)
	}
	return rec, nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return idempotency.ErrNotFound
	case postgres.IsCode(err, postgres.LockNotAvailableCode):
		return idempotency.ErrConflict
	default:
		return err
	}
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableCode(code int) any {
	if code == 0 {
		return nil
	}
	return int32(code)
}
