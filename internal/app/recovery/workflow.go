// Package recovery drives an idempotent request through an ordered set of stages.
//
// Progress is persisted in an idempotency record after every stage, so a retried request
// with the same key resumes at the last committed recovery point instead of repeating
// side effects. Each stage runs in its own transaction; the store's lock keeps stage
// execution for one key strictly sequential across processes.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// ErrInvalidTransition is returned when a stage advances to a recovery point that is not
// registered after it.
var ErrInvalidTransition = errors.New("recovery point must advance to a later registered stage")

// ErrInvalidResponseCode is returned when a stage finishes with a code outside 100-599.
var ErrInvalidResponseCode = errors.New("stage response code out of range")

// UnknownPointBody is the response persisted for a record whose recovery point has no
// registered stage.
var UnknownPointBody = json.RawMessage(`{"message":"Unknown recovery point"}`)

// Stage binds a stage function to the recovery point it handles.
type Stage struct {
	Point idempotency.RecoveryPoint
	Run   idempotency.StageFunc
}

// Recorder receives workflow metrics. Results are "ok", "error" or "conflict".
type Recorder interface {
	WorkflowRun(result string)
	StageRun(point idempotency.RecoveryPoint, result string, elapsed time.Duration)
	Conflict()
}

type nopRecorder struct{}

func (nopRecorder) WorkflowRun(string)                                        {}
func (nopRecorder) StageRun(idempotency.RecoveryPoint, string, time.Duration) {}
func (nopRecorder) Conflict()                                                 {}

type Options struct {
	Logger  *slog.Logger
	Metrics Recorder
}

// StageError reports the recovery point whose stage failed. The record stays at Point,
// unlocked, so a retry with the same key runs that stage again.
type StageError struct {
	Point idempotency.RecoveryPoint
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Point, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Result is the terminal response of a workflow run.
type Result struct {
	Key          idempotency.Key
	ResponseCode int
	ResponseBody json.RawMessage
}

// Workflow is safe for concurrent use; all state lives in the store.
type Workflow struct {
	store   idempotency.Store
	stages  []Stage
	index   map[idempotency.RecoveryPoint]int
	log     *slog.Logger
	metrics Recorder
}

// New validates the stage list. Stages are declared in execution order; the first one is
// the initial recovery point of new records.
func New(store idempotency.Store, stages []Stage, opts Options) (*Workflow, error) {
	if store == nil {
		return nil, errors.New("recovery: nil store")
	}
	if len(stages) == 0 {
		return nil, errors.New("recovery: no stages registered")
	}
	index := make(map[idempotency.RecoveryPoint]int, len(stages))
	for i, s := range stages {
		switch {
		case s.Point == "":
			return nil, fmt.Errorf("recovery: stage %d has no recovery point", i)
		case s.Point == idempotency.Finished:
			return nil, fmt.Errorf("recovery: %q is terminal and cannot have a stage", s.Point)
		case s.Run == nil:
			return nil, fmt.Errorf("recovery: stage %q has no function", s.Point)
		}
		if _, dup := index[s.Point]; dup {
			return nil, fmt.Errorf("recovery: duplicate stage %q", s.Point)
		}
		index[s.Point] = i
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Workflow{
		store:   store,
		stages:  append([]Stage(nil), stages...),
		index:   index,
		log:     log,
		metrics: metrics,
	}, nil
}

// Initial is the recovery point new records start at.
func (w *Workflow) Initial() idempotency.RecoveryPoint { return w.stages[0].Point }

// Run resolves the record for req and executes stages until it is finished.
//
// Errors are returned without retrying: idempotency.ErrConflict when another execution
// holds the key, idempotency.ErrKeyReuseMismatch when the key belongs to a different
// request, and *StageError when a stage fails. The Result carries the key whenever it is
// known, including on error.
func (w *Workflow) Run(ctx context.Context, req idempotency.Request) (Result, error) {
	req.Initial = w.Initial()
	rec, err := w.store.InitializeRequest(ctx, req)
	if err != nil {
		w.finish(req.Key, err)
		return Result{Key: req.Key}, err
	}

	for !rec.Finished() {
		point := rec.RecoveryPoint
		start := time.Now()
		next, err := w.store.WorkStage(ctx, rec, w.stageFor(rec))
		elapsed := time.Since(start)
		if err != nil {
			w.metrics.StageRun(point, resultOf(err), elapsed)
			w.log.Warn("workflow stage failed",
				"key", rec.Key,
				"recovery_point", point,
				"error", err,
			)
			err = &StageError{Point: point, Err: err}
			w.finish(rec.Key, err)
			return Result{Key: rec.Key}, err
		}
		w.metrics.StageRun(point, "ok", elapsed)
		w.log.Debug("workflow stage committed",
			"key", rec.Key,
			"from", point,
			"to", next.RecoveryPoint,
		)
		rec = next
	}

	w.finish(rec.Key, nil)
	return Result{Key: rec.Key, ResponseCode: rec.ResponseCode, ResponseBody: rec.ResponseBody}, nil
}

// stageFor is total over recovery points: unregistered points finish the record with a
// fixed 500 response.
func (w *Workflow) stageFor(rec idempotency.Record) idempotency.StageFunc {
	i, ok := w.index[rec.RecoveryPoint]
	if !ok {
		w.log.Error("unknown recovery point",
			"key", rec.Key,
			"recovery_point", rec.RecoveryPoint,
		)
		return func(context.Context, uow.Tx) (idempotency.Outcome, error) {
			return idempotency.Done(500, UnknownPointBody), nil
		}
	}
	stage := w.stages[i]
	return func(ctx context.Context, tx uow.Tx) (idempotency.Outcome, error) {
		out, err := stage.Run(ctx, tx)
		if err != nil {
			return idempotency.Outcome{}, err
		}
		if out.IsDone() {
			if c := out.ResponseCode(); c < 100 || c > 599 {
				return idempotency.Outcome{}, fmt.Errorf("%w: %s finished with %d", ErrInvalidResponseCode, stage.Point, c)
			}
			return out, nil
		}
		if j, ok := w.index[out.Next()]; !ok || j <= i {
			return idempotency.Outcome{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, stage.Point, out.Next())
		}
		return out, nil
	}
}

func (w *Workflow) finish(key idempotency.Key, err error) {
	result := resultOf(err)
	w.metrics.WorkflowRun(result)
	if result == "conflict" {
		w.metrics.Conflict()
		w.log.Info("idempotency key in use", "key", key)
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, idempotency.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
