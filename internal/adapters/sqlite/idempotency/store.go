// Package idempotency is a SQLite-backed idempotency.Store for single-node deployments.
//
// Only records live in SQLite; stages run through an injected uow.Runner. Timestamps are
// stored as Unix microseconds.
package idempotency

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db     *sql.DB
	runner uow.Runner
	opts   idempotency.Options
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, runner uow.Runner, opts idempotency.Options) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, runner: runner, opts: opts.WithDefaults()}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectRecord = `
	SELECT idempotency_key, created_at, locked_at, request_method, request_params,
	       request_body, request_path, response_code, response_body, recovery_point
	FROM idempotency_keys
	WHERE idempotency_key = ?
`

func (s *Store) InitializeRequest(ctx context.Context, req idempotency.Request) (idempotency.Record, error) {
	req, err := req.Normalize()
	if err != nil {
		return idempotency.Record{}, err
	}
	now := s.opts.LockTime()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("initialize request: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key, created_at, locked_at, request_method, request_params,
			request_body, request_path, recovery_point
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`,
		string(req.Key),
		now.UnixMicro(),
		now.UnixMicro(),
		req.Method,
		string(req.Params),
		nullableText(req.Body),
		req.Path,
		string(req.Initial),
	)
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("initialize request: insert: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("initialize request: rows affected: %w", err)
	}

	var rec idempotency.Record
	if inserted > 0 {
		rec = idempotency.NewRecord(req, now)
	} else {
		existing, err := scanRecord(tx.QueryRowContext(ctx, selectRecord, string(req.Key)))
		if err != nil {
			return idempotency.Record{}, err
		}
		lock, err := s.opts.CheckReplay(existing, req, now)
		if err != nil {
			return idempotency.Record{}, err
		}
		if lock {
			lockedAt := s.opts.NextLock(existing.LockedAt, now)
			if _, err := tx.ExecContext(ctx, `
				UPDATE idempotency_keys SET locked_at = ? WHERE idempotency_key = ?
			`, lockedAt.UnixMicro(), string(req.Key)); err != nil {
				return idempotency.Record{}, fmt.Errorf("initialize request: lock: %w", err)
			}
			existing.LockedAt = &lockedAt
		}
		rec = existing
	}
	if err := tx.Commit(); err != nil {
		return idempotency.Record{}, fmt.Errorf("initialize request: commit: %w", err)
	}
	return rec, nil
}

func (s *Store) WorkStage(ctx context.Context, rec idempotency.Record, fn idempotency.StageFunc) (idempotency.Record, error) {
	now := s.opts.LockTime()

	cur, run, err := s.acquire(ctx, rec, now)
	if err != nil || !run {
		return cur, err
	}
	lockedAt := *cur.LockedAt

	out, err := idempotency.RunDetached(ctx, s.runner, fn, func(ctx context.Context) error {
		return s.holding(ctx, rec.Key, lockedAt)
	})
	if err != nil {
		s.release(context.WithoutCancel(ctx), rec.Key, lockedAt)
		return idempotency.Record{}, err
	}

	next := out.Apply(cur)
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET locked_at = NULL, recovery_point = ?, response_code = ?, response_body = ?
		WHERE idempotency_key = ? AND locked_at = ?
	`,
		string(next.RecoveryPoint),
		nullableCode(next.ResponseCode),
		nullableText(next.ResponseBody),
		string(rec.Key),
		lockedAt.UnixMicro(),
	)
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("work stage: save outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return idempotency.Record{}, fmt.Errorf("work stage: rows affected: %w", err)
	} else if n == 0 {
		return idempotency.Record{}, idempotency.ErrConflict
	}
	return next, nil
}

// acquire locks the record if the caller's snapshot still owns it.
func (s *Store) acquire(ctx context.Context, rec idempotency.Record, now time.Time) (idempotency.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("work stage: begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := scanRecord(tx.QueryRowContext(ctx, selectRecord, string(rec.Key)))
	if err != nil {
		return idempotency.Record{}, false, err
	}
	run, err := s.opts.CheckStage(cur, rec, now)
	if err != nil {
		return idempotency.Record{}, false, err
	}
	if !run {
		return cur, false, nil
	}
	lockedAt := s.opts.NextLock(cur.LockedAt, now)
	if _, err := tx.ExecContext(ctx, `
		UPDATE idempotency_keys SET locked_at = ? WHERE idempotency_key = ?
	`, lockedAt.UnixMicro(), string(rec.Key)); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("work stage: lock: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("work stage: commit lock: %w", err)
	}
	cur.LockedAt = &lockedAt
	return cur, true, nil
}

func (s *Store) holding(ctx context.Context, key idempotency.Key, lockedAt time.Time) error {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM idempotency_keys WHERE idempotency_key = ? AND locked_at = ?
	`, string(key), lockedAt.UnixMicro()).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return idempotency.ErrConflict
	}
	return nil
}

func (s *Store) release(ctx context.Context, key idempotency.Key, lockedAt time.Time) {
	_, _ = s.db.ExecContext(ctx, `
		UPDATE idempotency_keys SET locked_at = NULL WHERE idempotency_key = ? AND locked_at = ?
	`, string(key), lockedAt.UnixMicro())
}

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, selectRecord, string(key)))
}

func (s *Store) Unlock(ctx context.Context, key idempotency.Key) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_keys SET locked_at = NULL WHERE idempotency_key = ?
	`, string(key))
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unlock: rows affected: %w", err)
	}
	if n == 0 {
		return idempotency.ErrNotFound
	}
	return nil
}

func scanRecord(row *sql.Row) (idempotency.Record, error) {
	var (
		rec                idempotency.Record
		key, point, params string
		createdAt          int64
		lockedAt, code     sql.NullInt64
		body, responseBody sql.NullString
	)
	err := row.Scan(
		&key,
		&createdAt,
		&lockedAt,
		&rec.RequestMethod,
		&params,
		&body,
		&rec.RequestPath,
		&code,
		&responseBody,
		&point,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idempotency.Record{}, idempotency.ErrNotFound
		}
		return idempotency.Record{}, fmt.Errorf("scan idempotency record: %w", err)
	}
	rec.Key = idempotency.Key(key)
	rec.RecoveryPoint = idempotency.RecoveryPoint(point)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	if lockedAt.Valid {
		t := time.UnixMicro(lockedAt.Int64).UTC()
		rec.LockedAt = &t
	}
	rec.RequestParams = []byte(params)
	if body.Valid {
		rec.RequestBody = []byte(body.String)
	}
	if code.Valid {
		rec.ResponseCode = int(code.Int64)
	}
	if responseBody.Valid {
		rec.ResponseBody = []byte(responseBody.String)
	}
	return rec, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableCode(code int) any {
	if code == 0 {
		return nil
	}
	return code
}
