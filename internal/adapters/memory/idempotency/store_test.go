package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

func TestStore_LockLostDuringStageRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	runner := memuow.New()
	s := NewStore(runner, idempotencyport.Options{LockTTL: time.Minute, Clock: clk})

	req := idempotencyport.Request{Key: "k-1", Method: "POST", Path: "/store/carts/c1/complete"}
	rec, err := s.InitializeRequest(ctx, req)
	if err != nil {
		t.Fatalf("InitializeRequest() err=%v", err)
	}

	_, err = s.WorkStage(ctx, rec, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
		if err := tx.Carts.Create(ctx, domain.Cart{ID: "c1", Type: domain.CartTypeDefault}); err != nil {
			return idempotencyport.Outcome{}, err
		}
		// A slow stage outlives its lock and a retry takes over.
		clk.Advance(2 * time.Minute)
		if _, err := s.InitializeRequest(ctx, req); err != nil {
			t.Errorf("takeover InitializeRequest() err=%v", err)
		}
		return idempotencyport.Advance("payment_authorized"), nil
	})
	if !errors.Is(err, idempotencyport.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	err = runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		_, err := tx.Carts.GetByID(ctx, "c1")
		return err
	})
	if err == nil {
		t.Fatalf("expected cart write to be rolled back")
	}

	got, err := s.Get(ctx, "k-1")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if got.RecoveryPoint != idempotencyport.Started || got.LockedAt == nil || !got.LockedAt.Equal(clk.Now()) {
		t.Fatalf("expected record held by the new owner, got %+v", got)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore(memuow.New(), idempotencyport.Options{})
	rec, err := s.InitializeRequest(ctx, idempotencyport.Request{
		Key:    "k-2",
		Method: "POST",
		Params: json.RawMessage(`{"id":"c1"}`),
	})
	if err != nil {
		t.Fatalf("InitializeRequest() err=%v", err)
	}
	rec.RequestParams[2] = 'X'
	*rec.LockedAt = time.Time{}

	got, err := s.Get(ctx, "k-2")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if string(got.RequestParams) != `{"id":"c1"}` || got.LockedAt.IsZero() {
		t.Fatalf("stored record was aliased: %+v", got)
	}
}
