package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// RecoveryPoint names the next stage a record will execute.
type RecoveryPoint string

const (
	// Started is the recovery point of a freshly created record.
	Started RecoveryPoint = "started"
	// Finished is terminal: the record carries its final response and runs no more stages.
	Finished RecoveryPoint = "finished"
)

// Request describes the originating request of a logical operation.
//
// Method, Params and Path identify the request: a key may only be replayed by a request
// with the same three values. Body is stored for inspection but not compared.
type Request struct {
	Key    Key
	Method string
	Params json.RawMessage
	Body   json.RawMessage
	Path   string

	// Initial is the recovery point a new record starts at. Empty means Started.
	Initial RecoveryPoint
}

// Record is the persisted progress of one logical operation.
//
// Records are values: stores return fresh copies and callers never mutate a record in
// place. The LockedAt of the snapshot passed to WorkStage fences the lock.
type Record struct {
	Key           Key
	CreatedAt     time.Time
	LockedAt      *time.Time
	RequestMethod string
	RequestParams json.RawMessage
	RequestBody   json.RawMessage
	RequestPath   string
	ResponseCode  int
	ResponseBody  json.RawMessage
	RecoveryPoint RecoveryPoint
}

func (r Record) Finished() bool { return r.RecoveryPoint == Finished }

// StageFunc is one unit of work executed inside the transaction opened by WorkStage.
type StageFunc func(ctx context.Context, tx uow.Tx) (Outcome, error)

// Store persists idempotency records and runs stages against them.
type Store interface {
	// InitializeRequest finds or creates the record for req.Key, minting a key when empty.
	// Non-terminal records are returned locked. It fails with ErrKeyReuseMismatch when the
	// key belongs to a different request and with ErrConflict when another execution holds
	// the lock.
	InitializeRequest(ctx context.Context, req Request) (Record, error)

	// WorkStage runs fn for the record's current recovery point and persists its outcome.
	// rec is the caller's latest snapshot. Terminal records are returned unchanged without
	// running fn. When fn fails, its transaction is rolled back, the lock is released, the
	// recovery point is left unchanged, and fn's error is returned.
	WorkStage(ctx context.Context, rec Record, fn StageFunc) (Record, error)

	Get(ctx context.Context, key Key) (Record, error)

	// Unlock clears locked_at without touching any other field.
	Unlock(ctx context.Context, key Key) error
}
