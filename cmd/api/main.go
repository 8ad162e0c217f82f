package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/httpapi"
	"github.com/Overland-East-Bay/storefront-api/internal/app/carts"
	"github.com/Overland-East-Bay/storefront-api/internal/app/checkout"
	"github.com/Overland-East-Bay/storefront-api/internal/app/orders"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/Overland-East-Bay/storefront-api/internal/platform/clock"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/telemetry"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()
	metrics := telemetry.New()

	b, err := openBackends(ctx, cfg, clk, log)
	if err != nil {
		return err
	}
	defer b.Close()

	payments, err := newPaymentRegistry(cfg.PaymentProviders)
	if err != nil {
		return err
	}

	// Auth configuration:
	// - Production: HS256 admin tokens signed with ADMIN_JWT_SECRET
	// - Local dev: set AUTH_MODE=dev to bypass verification and use X-Debug-Subject
	var adminAuth func(http.Handler) http.Handler
	switch cfg.Admin.Mode {
	case config.AuthModeDev:
		adminAuth = httpapi.NewDevAuthMiddleware(getenv("DEV_SUBJECT", "dev|local"))
	default:
		adminAuth = httpapi.NewAuthMiddleware(jwtverifier.New(cfg.Admin))
	}

	api := httpapi.NewServer(
		carts.NewService(b.runner, payments, clk),
		orders.NewService(b.runner, clk),
		checkout.NewService(b.idem, payments, clk, log.With("component", "checkout"), metrics),
		b.idem,
	)
	api.Log = log.With("component", "http")
	api.Limiter = b.limiter
	api.RateLimited = metrics

	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AdminAuth: adminAuth,
		Metrics:   metrics.Handler(),
		Logger:    log.With("component", "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening",
			"port", cfg.Port,
			"storage_backend", cfg.StorageBackend,
			"idempotency_backend", cfg.IdempotencyBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
