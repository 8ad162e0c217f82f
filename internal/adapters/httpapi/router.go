package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	// AdminAuth guards /admin routes. When nil every admin request is rejected.
	AdminAuth func(http.Handler) http.Handler
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter constructs the API HTTP router without admin access or metrics.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/store", func(r chi.Router) {
		r.Post("/carts", s.CreateCart)
		r.Get("/carts/{id}", s.GetCart)
		r.Post("/carts/{id}/payment-sessions", s.CreatePaymentSessions)
		r.Post("/carts/{id}/payment-session", s.SelectPaymentSession)
		r.Post("/carts/{id}/complete", s.CompleteCart)
		r.Get("/orders/{id}", s.GetOrder)
	})

	adminAuth := opts.AdminAuth
	if adminAuth == nil {
		adminAuth = denyAll
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth)
		r.Get("/orders/{id}", s.GetOrder)
		r.Post("/orders/{id}/complete", s.CompleteOrder)
		r.Post("/orders/{id}/swaps", s.CreateSwap)
		r.Get("/idempotency-keys/{key}", s.GetIdempotencyKey)
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
