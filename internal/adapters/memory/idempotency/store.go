package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// Store is an in-memory implementation of idempotency.Store.
// It is safe for concurrent use. Stages run through the injected runner.
type Store struct {
	mu     sync.Mutex
	m      map[idempotency.Key]idempotency.Record
	runner uow.Runner
	opts   idempotency.Options
}

func NewStore(runner uow.Runner, opts idempotency.Options) *Store {
	return &Store{
		m:      make(map[idempotency.Key]idempotency.Record),
		runner: runner,
		opts:   opts.WithDefaults(),
	}
}

func (s *Store) InitializeRequest(ctx context.Context, req idempotency.Request) (idempotency.Record, error) {
	_ = ctx
	req, err := req.Normalize()
	if err != nil {
		return idempotency.Record{}, err
	}
	now := s.opts.LockTime()

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.m[req.Key]
	if !ok {
		rec := idempotency.NewRecord(req, now)
		s.m[req.Key] = rec
		return idempotency.CloneRecord(rec), nil
	}
	lock, err := s.opts.CheckReplay(existing, req, now)
	if err != nil {
		return idempotency.Record{}, err
	}
	if lock {
		lockedAt := s.opts.NextLock(existing.LockedAt, now)
		existing.LockedAt = &lockedAt
		s.m[req.Key] = existing
	}
	return idempotency.CloneRecord(existing), nil
}

func (s *Store) WorkStage(ctx context.Context, rec idempotency.Record, fn idempotency.StageFunc) (idempotency.Record, error) {
	now := s.opts.LockTime()

	s.mu.Lock()
	cur, ok := s.m[rec.Key]
	if !ok {
		s.mu.Unlock()
		return idempotency.Record{}, idempotency.ErrNotFound
	}
	run, err := s.opts.CheckStage(cur, rec, now)
	if err != nil || !run {
		s.mu.Unlock()
		if err != nil {
			return idempotency.Record{}, err
		}
		return idempotency.CloneRecord(cur), nil
	}
	lockedAt := s.opts.NextLock(cur.LockedAt, now)
	cur.LockedAt = &lockedAt
	s.m[rec.Key] = cur
	s.mu.Unlock()

	out, err := idempotency.RunDetached(ctx, s.runner, fn, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.holding(rec.Key, lockedAt)
	})
	if err != nil {
		s.release(rec.Key, lockedAt)
		return idempotency.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.holding(rec.Key, lockedAt); err != nil {
		return idempotency.Record{}, err
	}
	next := out.Apply(s.m[rec.Key])
	s.m[rec.Key] = next
	return idempotency.CloneRecord(next), nil
}

// holding must be called with s.mu held.
func (s *Store) holding(key idempotency.Key, lockedAt time.Time) error {
	cur, ok := s.m[key]
	if !ok || cur.LockedAt == nil || !cur.LockedAt.Equal(lockedAt) {
		return idempotency.ErrConflict
	}
	return nil
}

func (s *Store) release(key idempotency.Key, lockedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holding(key, lockedAt) != nil {
		return
	}
	cur := s.m[key]
	cur.LockedAt = nil
	s.m[key] = cur
}

func (s *Store) Get(ctx context.Context, key idempotency.Key) (idempotency.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok {
		return idempotency.Record{}, idempotency.ErrNotFound
	}
	return idempotency.CloneRecord(rec), nil
}

func (s *Store) Unlock(ctx context.Context, key idempotency.Key) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.m[key]
	if !ok {
		return idempotency.ErrNotFound
	}
	rec.LockedAt = nil
	s.m[key] = rec
	return nil
}
