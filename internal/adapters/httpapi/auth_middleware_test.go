package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Overland-East-Bay/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testAdminConfig = config.AdminAuthConfig{
	Mode:     config.AuthModeJWT,
	Secret:   []byte("0123456789abcdef0123456789abcdef"),
	Issuer:   "test-iss",
	Audience: "test-aud",
}

// subjectProbe echoes the admin subject stored in context.
func subjectProbe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := AdminFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "MISSING_SUBJECT", "subject missing from context", nil)
			return
		}
		_, _ = w.Write([]byte(sub))
	})
}

func newTestAuthHandler(t *testing.T) (http.Handler, func(now time.Time) string) {
	t.Helper()

	v := jwtverifier.NewWithClock(testAdminConfig, fixedClock{t: time.Unix(1700000000, 0)})
	mint := func(now time.Time) string {
		tok, err := jwtverifier.Mint(testAdminConfig, "ops-1", now, 5*time.Minute)
		if err != nil {
			t.Fatalf("Mint: %v", err)
		}
		return tok
	}
	return middleware.RequestID(NewAuthMiddleware(v)(subjectProbe())), mint
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	t.Parallel()

	h, _ := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("code: got %q", er.Error.Code)
	}
	if !er.Error.RequestId.IsSpecified() || er.Error.RequestId.IsNull() {
		t.Fatalf("expected requestId to be set")
	}
	if rid, err := er.Error.RequestId.Get(); err != nil || rid == "" {
		t.Fatalf("expected requestId to be a non-empty string")
	}
}

func TestAuthMiddleware_MalformedHeader_401(t *testing.T) {
	t.Parallel()

	h, _ := newTestAuthHandler(t)
	for _, authz := range []string{"Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1", nil)
		req.Header.Set("Authorization", authz)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q status: got %d want %d", authz, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestAuthMiddleware_ExpiredToken_401(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1", nil)
	req.Header.Set("Authorization", "Bearer "+mint(time.Unix(1700000000, 0).Add(-time.Hour)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidToken_SetsSubject(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1", nil)
	req.Header.Set("Authorization", "Bearer "+mint(time.Unix(1700000000, 0)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ops-1" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		def        string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "header", header: "alice", wantStatus: http.StatusOK, wantBody: "alice"},
		{name: "default", def: "dev-admin", wantStatus: http.StatusOK, wantBody: "dev-admin"},
		{name: "header wins", def: "dev-admin", header: "bob", wantStatus: http.StatusOK, wantBody: "bob"},
		{name: "none", wantStatus: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := NewDevAuthMiddleware(tc.def)(subjectProbe())
			req := httptest.NewRequest(http.MethodGet, "/admin/orders/o1", nil)
			if tc.header != "" {
				req.Header.Set("X-Debug-Subject", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status=%d want=%d", rec.Code, tc.wantStatus)
			}
			if tc.wantBody != "" && rec.Body.String() != tc.wantBody {
				t.Fatalf("body=%q want=%q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRouter_AdminWithJWT(t *testing.T) {
	t.Parallel()

	v := jwtverifier.NewWithClock(testAdminConfig, fixedClock{t: time.Unix(1700000000, 0)})
	h := newTestAPI(t).router(RouterOptions{AdminAuth: NewAuthMiddleware(v)})
	tok, err := jwtverifier.Mint(testAdminConfig, "ops-1", time.Unix(1700000000, 0), time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	rr := do(t, h, http.MethodGet, "/admin/orders/missing", nil, map[string]string{"Authorization": "Bearer " + tok})
	requireErrorCode(t, rr, http.StatusNotFound, "ORDER_NOT_FOUND")

	rr = do(t, h, http.MethodGet, "/admin/orders/missing", nil, nil)
	requireErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}
