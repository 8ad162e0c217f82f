package idempotency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
)

// DefaultLockTTL is how long a lock is honored before another execution may take it over.
const DefaultLockTTL = 60 * time.Second

// Options configures the lock behavior shared by all store implementations.
type Options struct {
	// LockTTL is the staleness threshold for locked_at. Zero means DefaultLockTTL;
	// a negative value disables takeover of abandoned locks.
	LockTTL time.Duration
	Clock   clockport.Clock
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func (o Options) WithDefaults() Options {
	if o.LockTTL == 0 {
		o.LockTTL = DefaultLockTTL
	}
	if o.Clock == nil {
		o.Clock = utcClock{}
	}
	return o
}

// LockTime returns the current instant at the precision every backend can round-trip
// (microseconds), so a lock read back from storage compares equal to the one written.
func (o Options) LockTime() time.Time {
	return o.Clock.Now().UTC().Truncate(time.Microsecond)
}

// LockFree reports whether a lock taken at lockedAt may be acquired at now.
func (o Options) LockFree(lockedAt *time.Time, now time.Time) bool {
	if lockedAt == nil {
		return true
	}
	if o.LockTTL < 0 {
		return false
	}
	return !now.Before(lockedAt.Add(o.LockTTL))
}

// NextLock is the locked_at value for a new acquisition at now. It is strictly later than
// current, so a holder fenced on the previous value can tell it lost the lock even when
// both acquisitions fall in the same microsecond.
func (o Options) NextLock(current *time.Time, now time.Time) time.Time {
	if current != nil && !now.After(*current) {
		return current.Add(time.Microsecond)
	}
	return now
}

// NewKey mints a server-side key for requests that arrive without one.
func NewKey() Key {
	return Key(uuid.NewString())
}

// Normalize mints a key when absent and canonicalizes the JSON fields so that requests
// can be compared byte-for-byte.
func (r Request) Normalize() (Request, error) {
	out := r
	if strings.TrimSpace(string(out.Key)) == "" {
		out.Key = NewKey()
	}
	out.Method = strings.ToUpper(strings.TrimSpace(out.Method))
	params, err := canonicalJSON(out.Params, "{}")
	if err != nil {
		return Request{}, fmt.Errorf("request params: %w", err)
	}
	out.Params = params
	if len(bytes.TrimSpace(out.Body)) > 0 {
		body, err := canonicalJSON(out.Body, "null")
		if err != nil {
			return Request{}, fmt.Errorf("request body: %w", err)
		}
		out.Body = body
	} else {
		out.Body = nil
	}
	if out.Initial == "" {
		out.Initial = Started
	}
	return out, nil
}

// NewRecord is the record created for the first request carrying req.Key.
func NewRecord(req Request, now time.Time) Record {
	locked := now
	return Record{
		Key:           req.Key,
		CreatedAt:     now,
		LockedAt:      &locked,
		RequestMethod: req.Method,
		RequestParams: cloneRaw(req.Params),
		RequestBody:   cloneRaw(req.Body),
		RequestPath:   req.Path,
		RecoveryPoint: req.Initial,
	}
}

// Matches reports whether rec was created by a request identical to req.
// req must be normalized.
func (r Record) Matches(req Request) bool {
	if r.RequestMethod != req.Method || r.RequestPath != req.Path {
		return false
	}
	stored, err := canonicalJSON(r.RequestParams, "{}")
	if err != nil {
		return false
	}
	return bytes.Equal(stored, req.Params)
}

// CheckReplay decides what to do with an existing record for a replayed request.
// It reports whether the record must be locked before it is returned.
func (o Options) CheckReplay(existing Record, req Request, now time.Time) (bool, error) {
	if !existing.Matches(req) {
		return false, ErrKeyReuseMismatch
	}
	if existing.Finished() {
		return false, nil
	}
	if !o.LockFree(existing.LockedAt, now) {
		return false, ErrConflict
	}
	return true, nil
}

// CheckStage decides whether a stage may run for current, given the caller's snapshot.
// It reports false with a nil error when current is terminal.
func (o Options) CheckStage(current, snapshot Record, now time.Time) (bool, error) {
	if current.Finished() {
		return false, nil
	}
	if current.RecoveryPoint != snapshot.RecoveryPoint {
		return false, ErrConflict
	}
	if sameLock(current.LockedAt, snapshot.LockedAt) {
		return true, nil
	}
	if !o.LockFree(current.LockedAt, now) {
		return false, ErrConflict
	}
	return true, nil
}

func sameLock(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func canonicalJSON(raw json.RawMessage, empty string) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(empty), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if v == nil {
		return json.RawMessage(empty), nil
	}
	// encoding/json writes object keys in sorted order.
	return json.Marshal(v)
}
