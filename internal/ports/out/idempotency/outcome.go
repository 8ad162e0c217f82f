package idempotency

import (
	"encoding/json"
	"fmt"
)

// Outcome is the result of a stage: either advance to a later recovery point, or finish
// with a response.
type Outcome struct {
	next RecoveryPoint
	done bool
	code int
	body json.RawMessage
}

// Advance moves the record to next without finishing it.
func Advance(next RecoveryPoint) Outcome {
	return Outcome{next: next}
}

// Done finishes the record with the given response.
func Done(code int, body json.RawMessage) Outcome {
	return Outcome{next: Finished, done: true, code: code, body: cloneRaw(body)}
}

// DoneJSON is Done with a body marshaled from v.
func DoneJSON(code int, v any) (Outcome, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal response body: %w", err)
	}
	return Done(code, b), nil
}

func (o Outcome) IsDone() bool                  { return o.done }
func (o Outcome) Next() RecoveryPoint           { return o.next }
func (o Outcome) ResponseCode() int             { return o.code }
func (o Outcome) ResponseBody() json.RawMessage { return cloneRaw(o.body) }

// Apply returns the record produced by committing o on top of rec. The lock is released.
func (o Outcome) Apply(rec Record) Record {
	out := CloneRecord(rec)
	out.LockedAt = nil
	if o.done {
		out.RecoveryPoint = Finished
		out.ResponseCode = o.code
		out.ResponseBody = cloneRaw(o.body)
		return out
	}
	out.RecoveryPoint = o.next
	return out
}

func CloneRecord(r Record) Record {
	out := r
	if r.LockedAt != nil {
		t := *r.LockedAt
		out.LockedAt = &t
	}
	out.RequestParams = cloneRaw(r.RequestParams)
	out.RequestBody = cloneRaw(r.RequestBody)
	out.ResponseBody = cloneRaw(r.ResponseBody)
	return out
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
