package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

func TestRunner_RollsBackAllReposOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := New()
	if err := r.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		return tx.Carts.Create(ctx, domain.Cart{ID: "keep"})
	}); err != nil {
		t.Fatalf("Do() err=%v", err)
	}

	boom := errors.New("boom")
	err := r.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		if err := tx.Carts.Create(ctx, domain.Cart{ID: "drop"}); err != nil {
			return err
		}
		if err := tx.Orders.Create(ctx, domain.Order{ID: "o1", CartID: "drop"}); err != nil {
			return err
		}
		if err := tx.Swaps.Create(ctx, domain.Swap{ID: "s1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = r.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		if _, err := tx.Carts.GetByID(ctx, "keep"); err != nil {
			t.Fatalf("committed cart lost: %v", err)
		}
		if _, err := tx.Carts.GetByID(ctx, "drop"); err == nil {
			t.Fatalf("expected cart rollback")
		}
		if _, err := tx.Orders.GetByCartID(ctx, "drop"); err == nil {
			t.Fatalf("expected order rollback")
		}
		if _, err := tx.Swaps.GetByID(ctx, "s1"); err == nil {
			t.Fatalf("expected swap rollback")
		}
		return nil
	})
}

func TestRunner_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().Do(ctx, func(context.Context, uow.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled without running fn, got err=%v called=%v", err, called)
	}
}
