package contracttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	cartrepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	orderrepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
	swaprepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

type CleanupFunc = func()

// IdemHarness is a store under test plus a runner over the same domain data, used to
// observe what stages committed.
type IdemHarness struct {
	Store  idempotencyport.Store
	Runner uow.Runner
}

type IdemStoreFactory func(t *testing.T, opts idempotencyport.Options) (IdemHarness, CleanupFunc)
type CartRepoFactory func(t *testing.T) (cartrepoport.Repository, CleanupFunc)
type OrderRepoFactory func(t *testing.T) (orderrepoport.Repository, CleanupFunc)
type SwapRepoFactory func(t *testing.T) (swaprepoport.Repository, CleanupFunc)

const testLockTTL = 30 * time.Second

func newIdem(t *testing.T, newStore IdemStoreFactory) (IdemHarness, *memclock.ManualClock) {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	h, cleanup := newStore(t, idempotencyport.Options{LockTTL: testLockTTL, Clock: clk})
	if cleanup != nil {
		t.Cleanup(cleanup)
	}
	return h, clk
}

func completeRequest(cartID string) idempotencyport.Request {
	return idempotencyport.Request{
		Key:    idempotencyport.Key("key-" + uuid.NewString()),
		Method: "POST",
		Path:   "/store/carts/" + cartID + "/complete",
		Params: json.RawMessage(`{"id":"` + cartID + `"}`),
	}
}

func testCart(id domain.CartID, now time.Time) domain.Cart {
	return domain.Cart{
		ID:           id,
		Type:         domain.CartTypeDefault,
		RegionID:     "reg_eu",
		CurrencyCode: "eur",
		Items: []domain.LineItem{
			{ID: "li_1", Title: "Tent", UnitPrice: 15000, Quantity: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func cartExists(t *testing.T, r uow.Runner, id domain.CartID) bool {
	t.Helper()
	var found bool
	err := r.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		_, err := tx.Carts.GetByID(ctx, id)
		if errors.Is(err, cartrepoport.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		t.Fatalf("read cart: %v", err)
	}
	return found
}

// RunIdempotencyStore exercises the locking and progress guarantees every store must give.
func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()

	t.Run("initialize creates locked record", func(t *testing.T) {
		h, clk := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")

		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		if rec.Key != req.Key || rec.RecoveryPoint != idempotencyport.Started {
			t.Fatalf("unexpected record: %+v", rec)
		}
		if rec.LockedAt == nil || !rec.LockedAt.Equal(clk.Now()) {
			t.Fatalf("expected locked at %v, got %v", clk.Now(), rec.LockedAt)
		}
		if rec.RequestMethod != "POST" || rec.RequestPath != req.Path {
			t.Fatalf("unexpected request fields: %+v", rec)
		}

		got, err := h.Store.Get(ctx, req.Key)
		if err != nil {
			t.Fatalf("Get() err=%v", err)
		}
		if got.LockedAt == nil || got.RecoveryPoint != idempotencyport.Started {
			t.Fatalf("unexpected stored record: %+v", got)
		}
	})

	t.Run("initialize mints key when absent", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		req := completeRequest("cart_1")
		req.Key = ""
		rec, err := h.Store.InitializeRequest(context.Background(), req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		if rec.Key == "" {
			t.Fatalf("expected minted key")
		}
	})

	t.Run("initialize honors custom initial point", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		req := completeRequest("cart_1")
		req.Initial = "payment_authorized"
		rec, err := h.Store.InitializeRequest(context.Background(), req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		if rec.RecoveryPoint != "payment_authorized" {
			t.Fatalf("expected custom initial point, got %q", rec.RecoveryPoint)
		}
	})

	t.Run("replay while locked conflicts", func(t *testing.T) {
		h, clk := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		if _, err := h.Store.InitializeRequest(ctx, req); err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		clk.Advance(testLockTTL / 2)
		if _, err := h.Store.InitializeRequest(ctx, req); !errors.Is(err, idempotencyport.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("replay takes over stale lock", func(t *testing.T) {
		h, clk := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		if _, err := h.Store.InitializeRequest(ctx, req); err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		clk.Advance(testLockTTL + time.Second)
		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() after ttl err=%v", err)
		}
		if rec.LockedAt == nil || !rec.LockedAt.Equal(clk.Now()) {
			t.Fatalf("expected relocked at %v, got %v", clk.Now(), rec.LockedAt)
		}
	})

	t.Run("key reuse with different request", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		if _, err := h.Store.InitializeRequest(ctx, req); err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}

		otherParams := req
		otherParams.Params = json.RawMessage(`{"id":"cart_2"}`)
		otherPath := req
		otherPath.Path = "/store/carts/cart_2/complete"
		otherMethod := req
		otherMethod.Method = "PUT"

		for name, r := range map[string]idempotencyport.Request{
			"params": otherParams,
			"path":   otherPath,
			"method": otherMethod,
		} {
			if _, err := h.Store.InitializeRequest(ctx, r); !errors.Is(err, idempotencyport.ErrKeyReuseMismatch) {
				t.Fatalf("%s: expected ErrKeyReuseMismatch, got %v", name, err)
			}
		}
	})

	t.Run("params compared canonically", func(t *testing.T) {
		h, clk := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		req.Params = json.RawMessage(`{"id":"cart_1","n":1}`)
		if _, err := h.Store.InitializeRequest(ctx, req); err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		clk.Advance(testLockTTL)
		replay := req
		replay.Method = "post"
		replay.Params = json.RawMessage(` { "n": 1, "id": "cart_1" } `)
		if _, err := h.Store.InitializeRequest(ctx, replay); err != nil {
			t.Fatalf("expected canonical match, got %v", err)
		}
	})

	t.Run("stages advance and finish", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}

		cartID := domain.CartID("cart_" + uuid.NewString())
		rec, err = h.Store.WorkStage(ctx, rec, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			if err := tx.Carts.Create(ctx, testCart(cartID, time.Unix(100, 0).UTC())); err != nil {
				return idempotencyport.Outcome{}, err
			}
			return idempotencyport.Advance("payment_authorized"), nil
		})
		if err != nil {
			t.Fatalf("WorkStage(started) err=%v", err)
		}
		if rec.RecoveryPoint != "payment_authorized" || rec.LockedAt != nil {
			t.Fatalf("unexpected record after advance: %+v", rec)
		}
		if !cartExists(t, h.Runner, cartID) {
			t.Fatalf("expected stage write to be committed")
		}

		rec, err = h.Store.WorkStage(ctx, rec, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			return idempotencyport.Done(200, json.RawMessage(`{"data":{"id":"order_1"}}`)), nil
		})
		if err != nil {
			t.Fatalf("WorkStage(payment_authorized) err=%v", err)
		}
		if !rec.Finished() || rec.ResponseCode != 200 || rec.LockedAt != nil {
			t.Fatalf("unexpected finished record: %+v", rec)
		}
		assertJSONEqual(t, rec.ResponseBody, `{"data":{"id":"order_1"}}`)

		stored, err := h.Store.Get(ctx, req.Key)
		if err != nil {
			t.Fatalf("Get() err=%v", err)
		}
		if !stored.Finished() || stored.ResponseCode != 200 {
			t.Fatalf("unexpected stored record: %+v", stored)
		}
	})

	t.Run("finished record is replayed without lock", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		rec, err = h.Store.WorkStage(ctx, rec, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			return idempotencyport.Done(201, json.RawMessage(`{"ok":true}`)), nil
		})
		if err != nil {
			t.Fatalf("WorkStage() err=%v", err)
		}

		replayed, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() replay err=%v", err)
		}
		if !replayed.Finished() || replayed.LockedAt != nil || replayed.ResponseCode != 201 {
			t.Fatalf("unexpected replay: %+v", replayed)
		}

		called := false
		again, err := h.Store.WorkStage(ctx, replayed, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			called = true
			return idempotencyport.Done(500, nil), nil
		})
		if err != nil {
			t.Fatalf("WorkStage() on finished err=%v", err)
		}
		if called {
			t.Fatalf("stage must not run on a finished record")
		}
		if again.ResponseCode != 201 {
			t.Fatalf("finished record changed: %+v", again)
		}
	})

	t.Run("stage failure rolls back and releases lock", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}

		boom := errors.New("payment provider unavailable")
		cartID := domain.CartID("cart_" + uuid.NewString())
		_, err = h.Store.WorkStage(ctx, rec, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			if err := tx.Carts.Create(ctx, testCart(cartID, time.Unix(100, 0).UTC())); err != nil {
				return idempotencyport.Outcome{}, err
			}
			return idempotencyport.Outcome{}, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected stage error, got %v", err)
		}
		if cartExists(t, h.Runner, cartID) {
			t.Fatalf("expected stage write to be rolled back")
		}

		stored, err := h.Store.Get(ctx, req.Key)
		if err != nil {
			t.Fatalf("Get() err=%v", err)
		}
		if stored.LockedAt != nil || stored.RecoveryPoint != idempotencyport.Started {
			t.Fatalf("expected unlocked record at started, got %+v", stored)
		}

		// A retry resumes at the same point.
		retry, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() retry err=%v", err)
		}
		if retry.RecoveryPoint != idempotencyport.Started || retry.LockedAt == nil {
			t.Fatalf("unexpected retry record: %+v", retry)
		}
	})

	t.Run("stale snapshot conflicts", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		first, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		if _, err := h.Store.WorkStage(ctx, first, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			return idempotencyport.Advance("payment_authorized"), nil
		}); err != nil {
			t.Fatalf("WorkStage() err=%v", err)
		}

		called := false
		_, err = h.Store.WorkStage(ctx, first, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			called = true
			return idempotencyport.Advance("payment_authorized"), nil
		})
		if !errors.Is(err, idempotencyport.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if called {
			t.Fatalf("stage must not run against a stale snapshot")
		}
	})

	t.Run("taken over lock fences old holder", func(t *testing.T) {
		h, clk := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		first, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		clk.Advance(testLockTTL + time.Second)
		second, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() takeover err=%v", err)
		}

		if _, err := h.Store.WorkStage(ctx, first, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			return idempotencyport.Advance("payment_authorized"), nil
		}); !errors.Is(err, idempotencyport.ErrConflict) {
			t.Fatalf("expected old holder to conflict, got %v", err)
		}
		rec, err := h.Store.WorkStage(ctx, second, func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			return idempotencyport.Advance("payment_authorized"), nil
		})
		if err != nil {
			t.Fatalf("WorkStage() new holder err=%v", err)
		}
		if rec.RecoveryPoint != "payment_authorized" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("concurrent initialize admits one", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")

		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Store.InitializeRequest(ctx, req)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, idempotencyport.ErrConflict):
					conflicts++
				default:
					t.Errorf("InitializeRequest() unexpected err=%v", err)
				}
			}()
		}
		wg.Wait()
		if ok != 1 || conflicts != n-1 {
			t.Fatalf("expected 1 winner and %d conflicts, got ok=%d conflicts=%d", n-1, ok, conflicts)
		}
	})

	t.Run("concurrent work stage admits one", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		snap, err := h.Store.InitializeRequest(ctx, completeRequest("cart_1"))
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			runs      int
			ok        int
			conflicts int
		)
		stage := func(ctx context.Context, tx uow.Tx) (idempotencyport.Outcome, error) {
			mu.Lock()
			runs++
			mu.Unlock()
			time.Sleep(50 * time.Millisecond)
			return idempotencyport.Advance("payment_authorized"), nil
		}
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Store.WorkStage(ctx, snap, stage)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, idempotencyport.ErrConflict):
					conflicts++
				default:
					t.Errorf("WorkStage() unexpected err=%v", err)
				}
			}()
		}
		wg.Wait()
		if runs != 1 || ok != 1 || conflicts != 1 {
			t.Fatalf("expected one run, one success and one conflict, got runs=%d ok=%d conflicts=%d", runs, ok, conflicts)
		}
		got, err := h.Store.Get(ctx, snap.Key)
		if err != nil {
			t.Fatalf("Get() err=%v", err)
		}
		if got.RecoveryPoint != "payment_authorized" || got.LockedAt != nil {
			t.Fatalf("unexpected record: %+v", got)
		}
	})

	t.Run("unlock clears lock only", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		req := completeRequest("cart_1")
		rec, err := h.Store.InitializeRequest(ctx, req)
		if err != nil {
			t.Fatalf("InitializeRequest() err=%v", err)
		}
		if err := h.Store.Unlock(ctx, req.Key); err != nil {
			t.Fatalf("Unlock() err=%v", err)
		}
		got, err := h.Store.Get(ctx, req.Key)
		if err != nil {
			t.Fatalf("Get() err=%v", err)
		}
		if got.LockedAt != nil || got.RecoveryPoint != rec.RecoveryPoint || got.RequestPath != rec.RequestPath {
			t.Fatalf("unexpected record after unlock: %+v", got)
		}
		if _, err := h.Store.InitializeRequest(ctx, req); err != nil {
			t.Fatalf("InitializeRequest() after unlock err=%v", err)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		h, _ := newIdem(t, newStore)
		ctx := context.Background()
		if _, err := h.Store.Get(ctx, "missing-"+idempotencyport.Key(uuid.NewString())); !errors.Is(err, idempotencyport.ErrNotFound) {
			t.Fatalf("Get() expected ErrNotFound, got %v", err)
		}
		if err := h.Store.Unlock(ctx, "missing-"+idempotencyport.Key(uuid.NewString())); !errors.Is(err, idempotencyport.ErrNotFound) {
			t.Fatalf("Unlock() expected ErrNotFound, got %v", err)
		}
	})
}

func assertJSONEqual(t *testing.T, got json.RawMessage, want string) {
	t.Helper()
	var g, w any
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("unmarshal got %q: %v", string(got), err)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("unmarshal want: %v", err)
	}
	gb, _ := json.Marshal(g)
	wb, _ := json.Marshal(w)
	if string(gb) != string(wb) {
		t.Fatalf("json mismatch: got %s want %s", gb, wb)
	}
}

func RunCartRepo(t *testing.T, newRepo CartRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	id := domain.CartID("cart_" + uuid.NewString())
	c := testCart(id, now)
	c.Email = "buyer@example.com"
	c.PaymentSessions = []domain.PaymentSession{
		{ProviderID: "manual", Status: domain.PaymentSessionPending, IsSelected: true, Data: map[string]any{"ref": "abc"}},
	}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, c); !errors.Is(err, cartrepoport.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Email != c.Email || got.Total() != 15000 || len(got.PaymentSessions) != 1 {
		t.Fatalf("unexpected cart: %#v", got)
	}
	if ps, ok := got.PaymentSession(); !ok || ps.ProviderID != "manual" || ps.Data["ref"] != "abc" {
		t.Fatalf("unexpected payment session: %#v", got.PaymentSessions)
	}

	authorizedAt := now.Add(time.Minute)
	got.PaymentAuthorizedAt = &authorizedAt
	got.Payment = &domain.Payment{
		ID:           domain.PaymentID("pay_" + uuid.NewString()),
		CartID:       id,
		ProviderID:   "manual",
		Amount:       15000,
		CurrencyCode: "eur",
		CreatedAt:    authorizedAt,
	}
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if updated.Payment == nil || updated.Payment.Amount != 15000 || updated.PaymentAuthorizedAt == nil {
		t.Fatalf("expected payment to persist: %#v", updated)
	}

	missing := testCart(domain.CartID("cart_"+uuid.NewString()), now)
	if err := repo.Update(ctx, missing); !errors.Is(err, cartrepoport.ErrNotFound) {
		t.Fatalf("Update missing: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, missing.ID); !errors.Is(err, cartrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing: expected ErrNotFound, got %v", err)
	}
}

func RunOrderRepo(t *testing.T, newRepo OrderRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(2000, 0).UTC()
	cartID := domain.CartID("cart_" + uuid.NewString())
	o := domain.Order{
		ID:            domain.OrderID("order_" + uuid.NewString()),
		CartID:        cartID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusAwaiting,
		RegionID:      "reg_eu",
		CurrencyCode:  "eur",
		Items:         []domain.LineItem{{ID: "li_1", Title: "Tent", UnitPrice: 15000, Quantity: 1}},
		Subtotal:      15000,
		Total:         15000,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(ctx, o); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := o
	dup.ID = domain.OrderID("order_" + uuid.NewString())
	if err := repo.Create(ctx, dup); !errors.Is(err, orderrepoport.ErrCartAlreadyOrdered) {
		t.Fatalf("expected ErrCartAlreadyOrdered, got %v", err)
	}

	got, err := repo.GetByCartID(ctx, cartID)
	if err != nil {
		t.Fatalf("GetByCartID: %v", err)
	}
	if got.ID != o.ID || got.Total != 15000 || len(got.Items) != 1 {
		t.Fatalf("unexpected order: %#v", got)
	}

	got.Status = domain.OrderStatusCompleted
	got.UpdatedAt = now.Add(time.Hour)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	byID, err := repo.GetByID(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %q", byID.Status)
	}

	if _, err := repo.GetByID(ctx, domain.OrderID("order_"+uuid.NewString())); !errors.Is(err, orderrepoport.ErrNotFound) {
		t.Fatalf("GetByID missing: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByCartID(ctx, domain.CartID("cart_"+uuid.NewString())); !errors.Is(err, orderrepoport.ErrNotFound) {
		t.Fatalf("GetByCartID missing: expected ErrNotFound, got %v", err)
	}
}

func RunSwapRepo(t *testing.T, newRepo SwapRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(3000, 0).UTC()
	s := domain.Swap{
		ID:        domain.SwapID("swap_" + uuid.NewString()),
		OrderID:   domain.OrderID("order_" + uuid.NewString()),
		CartID:    domain.CartID("cart_" + uuid.NewString()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, s); !errors.Is(err, swaprepoport.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	confirmed := now.Add(time.Minute)
	s.ConfirmedAt = &confirmed
	s.Payment = &domain.Payment{ID: "pay_1", CartID: s.CartID, ProviderID: "manual", Amount: 500, CurrencyCode: "eur", CreatedAt: confirmed}
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := repo.GetByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(confirmed) || got.Payment == nil || got.Payment.Amount != 500 {
		t.Fatalf("unexpected swap: %#v", got)
	}
	if _, err := repo.GetByID(ctx, domain.SwapID("swap_"+uuid.NewString())); !errors.Is(err, swaprepoport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
