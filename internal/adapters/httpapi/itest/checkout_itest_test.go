package itest

import (
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type cartResponse struct {
	Cart struct {
		ID    string `json:"id"`
		Total int64  `json:"total"`
	} `json:"cart"`
}

type orderResponse struct {
	Data struct {
		ID     string `json:"id"`
		CartID string `json:"cart_id"`
		Total  int64  `json:"total"`
	} `json:"data"`
}

func createCheckoutReadyCart(t *testing.T, s *testServer) string {
	t.Helper()
	status, body, _ := s.doJSON(t, http.MethodPost, "/store/carts", nil, map[string]any{
		"email":          "buyer@example.com",
		"currency_code":  "usd",
		"shipping_total": 500,
		"items":          []map[string]any{{"title": "Recovery strap", "unit_price": 3000, "quantity": 2}},
	})
	if status != http.StatusCreated {
		t.Fatalf("create cart status=%d body=%s", status, body)
	}
	id := mustUnmarshal[cartResponse](t, body).Cart.ID

	status, body, _ = s.doJSON(t, http.MethodPost, "/store/carts/"+id+"/payment-sessions", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("payment sessions status=%d body=%s", status, body)
	}
	return id
}

func TestCheckout_CompleteReplayAndInspect(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		b := b
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)
			id := createCheckoutReadyCart(t, s)
			key := uuid.NewString()
			path := "/store/carts/" + id + "/complete"

			status, body, hdr := s.doJSON(t, http.MethodPost, path, map[string]string{"Idempotency-Key": key}, nil)
			if status != http.StatusOK {
				t.Fatalf("complete status=%d body=%s", status, body)
			}
			requireHeaderPresent(t, hdr, "Idempotency-Key")
			order := mustUnmarshal[orderResponse](t, body).Data
			if order.CartID != id || order.Total != 6500 {
				t.Fatalf("order=%+v", order)
			}

			status, replay, _ := s.doJSON(t, http.MethodPost, path, map[string]string{"Idempotency-Key": key}, nil)
			if status != http.StatusOK || string(replay) != string(body) {
				t.Fatalf("replay status=%d body=%s want=%s", status, replay, body)
			}

			status, body, _ = s.doJSON(t, http.MethodGet, "/admin/idempotency-keys/"+key, map[string]string{"X-Debug-Subject": "ops"}, nil)
			if status != http.StatusOK {
				t.Fatalf("inspect status=%d body=%s", status, body)
			}
			rec := mustUnmarshal[map[string]any](t, body)
			if rec["recovery_point"] != "finished" {
				t.Fatalf("record=%v", rec)
			}

			status, body, _ = s.doJSON(t, http.MethodGet, "/admin/idempotency-keys/"+key, nil, nil)
			requireErrorCode(t, status, body, http.StatusUnauthorized, "UNAUTHORIZED")
		})
	}
}

func TestCheckout_ConcurrentCompletionsCreateOneOrder(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		b := b
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)
			id := createCheckoutReadyCart(t, s)
			key := uuid.NewString()

			const n = 6
			var wg sync.WaitGroup
			results := make([]response, n)
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = s.do(http.MethodPost, "/store/carts/"+id+"/complete", map[string]string{"Idempotency-Key": key}, nil)
				}(i)
			}
			wg.Wait()

			orderIDs := map[string]bool{}
			for i := 0; i < n; i++ {
				if errs[i] != nil {
					t.Fatalf("request %d: %v", i, errs[i])
				}
				switch results[i].status {
				case http.StatusOK:
					orderIDs[mustUnmarshal[orderResponse](t, results[i].body).Data.ID] = true
				case http.StatusConflict:
				default:
					t.Fatalf("unexpected status=%d body=%s", results[i].status, results[i].body)
				}
			}
			if len(orderIDs) > 1 {
				t.Fatalf("expected a single order, got %v", orderIDs)
			}

			// Once the running execution is done, the key replays the single order.
			status, body, _ := s.doJSON(t, http.MethodPost, "/store/carts/"+id+"/complete", map[string]string{"Idempotency-Key": key}, nil)
			if status != http.StatusOK {
				t.Fatalf("final status=%d body=%s", status, body)
			}
			final := mustUnmarshal[orderResponse](t, body).Data.ID
			if len(orderIDs) == 1 && !orderIDs[final] {
				t.Fatalf("final order %s not in %v", final, orderIDs)
			}
		})
	}
}

func TestCheckout_KeyReuseOnDifferentCart(t *testing.T) {
	for _, b := range backendsFromEnv(t) {
		b := b
		t.Run(string(b), func(t *testing.T) {
			s := newTestServer(t, b)
			first := createCheckoutReadyCart(t, s)
			second := createCheckoutReadyCart(t, s)
			key := uuid.NewString()

			status, body, _ := s.doJSON(t, http.MethodPost, "/store/carts/"+first+"/complete", map[string]string{"Idempotency-Key": key}, nil)
			if status != http.StatusOK {
				t.Fatalf("status=%d body=%s", status, body)
			}
			status, body, _ = s.doJSON(t, http.MethodPost, "/store/carts/"+second+"/complete", map[string]string{"Idempotency-Key": key}, nil)
			requireErrorCode(t, status, body, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE")
		})
	}
}
