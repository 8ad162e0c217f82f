package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Overland-East-Bay/storefront-api/internal/app/carts"
	"github.com/Overland-East-Bay/storefront-api/internal/app/checkout"
	"github.com/Overland-East-Bay/storefront-api/internal/app/orders"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/ratelimit"
)

const (
	headerIdempotencyKey = "Idempotency-Key"

	conflictMessage = "Failed to create idempotency key"
)

// RateLimitRecorder counts rejected cart completions.
type RateLimitRecorder interface {
	RateLimited()
}

// Server is the HTTP adapter over the application services.
type Server struct {
	Carts    *carts.Service
	Orders   *orders.Service
	Checkout *checkout.Service
	Idem     idempotency.Store

	// Limiter, when set, bounds cart completion attempts per cart.
	Limiter     ratelimit.Limiter
	RateLimited RateLimitRecorder

	Log *slog.Logger
}

func NewServer(cartsSvc *carts.Service, ordersSvc *orders.Service, checkoutSvc *checkout.Service, idem idempotency.Store) *Server {
	return &Server{
		Carts:    cartsSvc,
		Orders:   ordersSvc,
		Checkout: checkoutSvc,
		Idem:     idem,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (s *Server) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if !s.decode(w, r, &req) {
		return
	}
	in := carts.CreateCartInput{
		RegionID:      req.RegionID,
		CurrencyCode:  req.CurrencyCode,
		Items:         lineItems(req.Items),
		ShippingTotal: req.ShippingTotal,
		Metadata:      req.Metadata,
	}
	if req.Email != nil {
		in.Email = string(*req.Email)
	}
	c, err := s.Carts.CreateCart(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": c.View()})
}

func (s *Server) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.GetCart(r.Context(), domain.CartID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c.View()})
}

func (s *Server) CreatePaymentSessions(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.CreatePaymentSessions(r.Context(), domain.CartID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c.View()})
}

func (s *Server) SelectPaymentSession(w http.ResponseWriter, r *http.Request) {
	var req selectPaymentSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.Carts.SelectPaymentSession(r.Context(), domain.CartID(chi.URLParam(r, "id")), req.ProviderID)
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": c.View()})
}

// CompleteCart runs the checkout workflow for the cart. The response of a finished
// workflow is written verbatim, so replays of a key return the original response.
func (s *Server) CompleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if s.Limiter != nil {
		allowed, err := s.Limiter.Allow(ctx, "complete:"+id)
		if err != nil {
			// Fail open while the limiter backend is unavailable.
			s.Log.Warn("rate limiter unavailable", "cart_id", id, "error", err)
		} else if !allowed {
			if s.RateLimited != nil {
				s.RateLimited.RateLimited()
			}
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many completion attempts for this cart", nil)
			return
		}
	}

	params, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	res, err := s.Checkout.CompleteCart(ctx, checkout.CompleteCartInput{
		CartID: domain.CartID(id),
		Key:    idempotency.Key(strings.TrimSpace(r.Header.Get(headerIdempotencyKey))),
		Method: r.Method,
		Path:   r.URL.Path,
		Params: params,
		Body:   requestBodyJSON(r),
	})
	if res.Key != "" {
		w.Header().Set("Access-Control-Expose-Headers", headerIdempotencyKey)
		w.Header().Set(headerIdempotencyKey, string(res.Key))
	}

	switch {
	case errors.Is(err, idempotency.ErrConflict):
		http.Error(w, conflictMessage, http.StatusConflict)
		return
	case errors.Is(err, idempotency.ErrKeyReuseMismatch):
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different request", nil)
		return
	case err != nil:
		writeServiceError(w, r, s.Log, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.ResponseCode)
	_, _ = w.Write(res.ResponseBody)
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.GetOrder(r.Context(), domain.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.CompleteOrder(r.Context(), domain.OrderID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o})
}

func (s *Server) CreateSwap(w http.ResponseWriter, r *http.Request) {
	var req createSwapRequest
	if !s.decode(w, r, &req) {
		return
	}
	swap, cart, err := s.Orders.CreateSwap(r.Context(), domain.OrderID(chi.URLParam(r, "id")), orders.CreateSwapInput{
		Items:         lineItems(req.Items),
		ShippingTotal: req.ShippingTotal,
	})
	if err != nil {
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"swap": swap, "cart": cart.View()})
}

func (s *Server) GetIdempotencyKey(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Idem.Get(r.Context(), idempotency.Key(chi.URLParam(r, "key")))
	if err != nil {
		if errors.Is(err, idempotency.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", "idempotency key not found", nil)
			return
		}
		writeServiceError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toIdempotencyKeyView(rec))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeBody(r, dst)
	if err == nil {
		return true
	}
	if re := (*requestError)(nil); errors.As(err, &re) {
		writeError(w, r, re.status, re.code, re.message, re.details)
		return false
	}
	writeServiceError(w, r, s.Log, err)
	return false
}

// requestBodyJSON returns the request body when it is JSON. Completion takes no body, so
// anything else is ignored.
func requestBodyJSON(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(bytes.TrimSpace(b)) == 0 || !json.Valid(b) {
		return nil
	}
	return b
}
