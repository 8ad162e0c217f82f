package config

import (
	"fmt"
	"os"
	"time"
)

const (
	AuthModeJWT = "jwt"
	AuthModeDev = "dev"
)

// AdminAuthConfig configures verification of HS256 admin tokens.
type AdminAuthConfig struct {
	Mode     string
	Secret   []byte
	Issuer   string
	Audience string

	ClockSkew time.Duration
}

func LoadAdminAuthConfigFromEnv() (AdminAuthConfig, error) {
	cfg := AdminAuthConfig{
		Mode:      getEnv("AUTH_MODE", AuthModeJWT),
		Secret:    []byte(os.Getenv("ADMIN_JWT_SECRET")),
		Issuer:    getEnv("ADMIN_JWT_ISSUER", "storefront-api"),
		Audience:  getEnv("ADMIN_JWT_AUDIENCE", "storefront-admin"),
		ClockSkew: 30 * time.Second,
	}
	if v := os.Getenv("ADMIN_JWT_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return AdminAuthConfig{}, fmt.Errorf("ADMIN_JWT_CLOCK_SKEW must be a duration (e.g. 30s): %w", err)
		}
		cfg.ClockSkew = d
	}
	return cfg, nil
}

func (c AdminAuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeDev:
		return nil
	case AuthModeJWT:
		if len(c.Secret) < 32 {
			return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 bytes when AUTH_MODE=jwt")
		}
		return nil
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or dev, got %q", c.Mode)
	}
}
