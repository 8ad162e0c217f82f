package itest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/httpapi"
	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
	memidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/idempotency"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/payment/manual"
	pgidempotency "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/testutil"
	pguow "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/app/carts"
	"github.com/Overland-East-Bay/storefront-api/internal/app/checkout"
	"github.com/Overland-East-Bay/storefront-api/internal/app/orders"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/payment"
	uowport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := idempotencyport.Options{Clock: clk}

	var (
		runner    uowport.Runner
		idemStore idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		runner = pguow.NewRunner(pool)
		idemStore = pgidempotency.NewStore(pool, opts)
	case backendMemory:
		memRunner := memuow.New()
		runner = memRunner
		idemStore = memidempotency.NewStore(memRunner, opts)
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	reg, err := payment.NewRegistry(manual.New(""))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	api := httpapi.NewServer(
		carts.NewService(runner, reg, clk),
		orders.NewService(runner, clk),
		checkout.NewService(idemStore, reg, clk, nil, nil),
		idemStore,
	)

	// No default subject: admin requests must send X-Debug-Subject.
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{AdminAuth: httpapi.NewDevAuthMiddleware("")})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

type response struct {
	status int
	body   []byte
	header http.Header
}

// do is safe to call from goroutines other than the test's own.
func (s *testServer) do(method, path string, headers map[string]string, body any) (response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return response{}, fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		return response{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, body: out, header: resp.Header}, nil
}

func (s *testServer) doJSON(t *testing.T, method string, path string, headers map[string]string, body any) (int, []byte, http.Header) {
	t.Helper()
	res, err := s.do(method, path, headers, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return res.status, res.body, res.header
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status=%d want=%d body=%s", status, wantStatus, string(body))
	}
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
