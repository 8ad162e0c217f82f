package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Overland-East-Bay/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
)

// Tiny dev-only admin token issuer.
//
// It signs HS256 tokens with the same ADMIN_JWT_* settings the API verifies, so local
// tooling can call /admin endpoints without running an identity provider.

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}
	port := getenv("PORT", "5556")
	ttl := getenvDuration("TTL", 30*time.Minute)

	cfg, err := config.LoadAdminAuthConfigFromEnv()
	if err == nil {
		cfg.Mode = config.AuthModeJWT
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid admin auth config", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Mint a token:
	//   GET /token?sub=ops|alice
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}

		now := time.Now().UTC()
		token, err := jwtverifier.Mint(cfg, sub, now, ttl)
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"sub":   sub,
			"iss":   cfg.Issuer,
			"aud":   cfg.Audience,
			"exp":   now.Add(ttl).Unix(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("devjwt listening", "port", port, "iss", cfg.Issuer, "aud", cfg.Audience, "ttl", ttl)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("devjwt exited", "error", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
