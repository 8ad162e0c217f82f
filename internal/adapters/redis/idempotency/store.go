// Package idempotency is a Redis-backed idempotency.Store.
//
// Each record is a JSON string under "idem:<key>". Read-modify-write cycles use
// WATCH/MULTI; a concurrent write aborts the transaction and surfaces as ErrConflict.
// Stages run through an injected uow.Runner.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

type Store struct {
	client *redis.Client
	prefix string
	runner uow.Runner
	opts   idempotency.Options
}

func NewStore(client *redis.Client, runner uow.Runner, opts idempotency.Options) *Store {
	return &Store{client: client, prefix: "idem:", runner: runner, opts: opts.WithDefaults()}
}

type redisRecord struct {
	Key           string          `json:"key"`
	CreatedAt     int64           `json:"created_at"`
	LockedAt      *int64          `json:"locked_at,omitempty"`
	RequestMethod string          `json:"request_method"`
	RequestParams json.RawMessage `json:"request_params"`
	RequestBody   json.RawMessage `json:"request_body,omitempty"`
	RequestPath   string          `json:"request_path"`
	ResponseCode  int             `json:"response_code,omitempty"`
	ResponseBody  json.RawMessage `json:"response_body,omitempty"`
	RecoveryPoint string          `json:"recovery_point"`
}

func toRedis(r idempotency.Record) redisRecord {
	out := redisRecord{
		Key:           string(r.Key),
		CreatedAt:     r.CreatedAt.UnixMicro(),
		RequestMethod: r.RequestMethod,
		RequestParams: r.RequestParams,
		RequestBody:   r.RequestBody,
		RequestPath:   r.RequestPath,
		ResponseCode:  r.ResponseCode,
		ResponseBody:  r.ResponseBody,
		RecoveryPoint: string(r.RecoveryPoint),
	}
	if r.LockedAt != nil {
		v := r.LockedAt.UnixMicro()
		out.LockedAt = &v
	}
	return out
}

func (r redisRecord) record() idempotency.Record {
	out := idempotency.Record{
		Key:           idempotency.Key(r.Key),
		CreatedAt:     time.UnixMicro(r.CreatedAt).UTC(),
		RequestMethod: r.RequestMethod,
		RequestParams: r.RequestParams,
		RequestBody:   r.RequestBody,
		RequestPath:   r.RequestPath,
		ResponseCode:  r.ResponseCode,
		ResponseBody:  r.ResponseBody,
		RecoveryPoint: idempotency.RecoveryPoint(r.RecoveryPoint),
	}
	if r.LockedAt != nil {
		t := time.UnixMicro(*r.LockedAt).UTC()
		out.LockedAt = &t
	}
	return out
}

func (s *Store) redisKey(key idempotency.Key) string {
	return s.prefix + string(key)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, rkey string) (idempotency.Record, error) {
	raw, err := c.Get(ctx, rkey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return idempotency.Record{}, idempotency.ErrNotFound
		}
		return idempotency.Record{}, err
	}
	var rr redisRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return idempotency.Record{}, fmt.Errorf("decode idempotency record: %w", err)
	}
	return rr.record(), nil
}

func save(ctx context.Context, tx *redis.Tx, rkey string, rec idempotency.Record) error {
	b, err := json.Marshal(toRedis(rec))
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rkey, b, 0)
		return nil
	})
	return err
}

func mapErr(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return idempotency.ErrConflict
	}
	return err
}

func (s *Store) InitializeRequest(ctx context.Context, req idempotency.Request) (idempotency.Record, error) {
	req, err := req.Normalize()
	if err != nil {
		return idempotency.Record{}, err
	}
	now := s.opts.LockTime()
	rkey := s.redisKey(req.Key)

	var rec idempotency.Record
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := load(ctx, tx, rkey)
		if errors.Is(err, idempotency.ErrNotFound) {
			rec = idempotency.NewRecord(req, now)
			return save(ctx, tx, rkey, rec)
		}
		if err != nil {
			return err
		}
		lock, err := s.opts.CheckReplay(existing, req, now)
		if err != nil {
			return err
		}
		if lock {
			lockedAt := s.opts.NextLock(existing.LockedAt, now)
			existing.LockedAt = &lockedAt
			if err := save(ctx, tx, rkey, existing); err != nil {
				return err
			}
		}
		rec = existing
		return nil
	}, rkey)
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	return rec, nil
}

func (s *Store) WorkStage(ctx context.Context, rec idempotency.Record, fn idempotency.StageFunc) (idempotency.Record, error) {
	now := s.opts.LockTime()
	rkey := s.redisKey(rec.Key)

	var (
		cur      idempotency.Record
		run      bool
		lockedAt time.Time
	)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		var err error
		cur, err = load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		run, err = s.opts.CheckStage(cur, rec, now)
		if err != nil || !run {
			return err
		}
		lockedAt = s.opts.NextLock(cur.LockedAt, now)
		cur.LockedAt = &lockedAt
		return save(ctx, tx, rkey, cur)
	}, rkey)
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	if !run {
		return cur, nil
	}

	out, err := idempotency.RunDetached(ctx, s.runner, fn, func(ctx context.Context) error {
		return s.holding(ctx, rkey, lockedAt)
	})
	if err != nil {
		s.release(context.WithoutCancel(ctx), rkey, lockedAt)
		return idempotency.Record{}, err
	}

	var next idempotency.Record
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		latest, err := load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		if latest.LockedAt == nil || !latest.LockedAt.Equal(lockedAt) {
			return idempotency.ErrConflict
		}
		next = out.Apply(latest)
		return save(ctx, tx, rkey, next)
	}, rkey)
	if err != nil {
		return idempotency.Record{}, mapErr(err)
	}
	return next, nil
}

func (s *Store) holding(ctx context.Context, rkey string, lockedAt time.Time) error {
	cur, err := load(ctx, s.client, rkey)
	if err != nil {
		return err
	}
	if cur.LockedAt == nil || !cur.LockedAt.Equal(lockedAt) {
		return idempotency.ErrConflict
	}
	return nil
}

// release clears our lock after a failed stage. A lost WATCH race means someone else
// has written the record, so there is nothing to release.
func (s *Store) release(ctx context.Context, rkey string, lockedAt time.Time) {
	_ = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		if cur.LockedAt == nil || !cur.LockedAt.Equal(lockedAt) {
			return nil
		}
		cur.LockedAt = nil
		return save(ctx, tx, rkey, cur)
	}, rkey)
}

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, error) {
	return load(ctx, s.client, s.redisKey(key))
}

func (s *Store) Unlock(ctx context.Context, key idempotency.Key) error {
	rkey := s.redisKey(key)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := load(ctx, tx, rkey)
		if err != nil {
			return err
		}
		cur.LockedAt = nil
		return save(ctx, tx, rkey, cur)
	}, rkey)
	return mapErr(err)
}
