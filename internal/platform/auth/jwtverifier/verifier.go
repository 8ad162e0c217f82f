// Package jwtverifier verifies and mints the HS256 tokens used by admin endpoints.
package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
)

// RoleAdmin is the only role accepted by Verify.
const RoleAdmin = "admin"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Claims is the admin token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	cfg    config.AdminAuthConfig
	clock  Clock
	parser *jwt.Parser
}

func New(cfg config.AdminAuthConfig) *Verifier {
	return NewWithClock(cfg, nil)
}

func NewWithClock(cfg config.AdminAuthConfig, clock Clock) *Verifier {
	if clock == nil {
		clock = realClock{}
	}
	return &Verifier{
		cfg:   cfg,
		clock: clock,
		// Time-based claims are checked against the injected clock in validateClaims.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Verify verifies a token and returns the admin subject from the `sub` claim.
//
// Verification:
// - HS256 signature with the shared secret
// - iss, aud, exp (required), nbf (when present) and role=admin
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	_ = ctx
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	if err := v.validateClaims(claims); err != nil {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

func (v *Verifier) validateClaims(c Claims) error {
	now := v.clock.Now()
	skew := v.cfg.ClockSkew

	if !c.VerifyIssuer(v.cfg.Issuer, true) {
		return fmt.Errorf("iss mismatch")
	}
	if !c.VerifyAudience(v.cfg.Audience, true) {
		return fmt.Errorf("aud mismatch")
	}
	if c.ExpiresAt == nil {
		return fmt.Errorf("missing exp")
	}
	if !c.VerifyExpiresAt(now.Add(-skew), true) {
		return fmt.Errorf("token expired")
	}
	if !c.VerifyNotBefore(now.Add(skew), false) {
		return fmt.Errorf("token not yet valid")
	}
	if c.Role != RoleAdmin {
		return fmt.Errorf("role %q is not allowed", c.Role)
	}
	if c.Subject == "" {
		return fmt.Errorf("missing sub")
	}
	return nil
}

// Mint signs an admin token for subject valid for ttl from now.
func Mint(cfg config.AdminAuthConfig, subject string, now time.Time, ttl time.Duration) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("jwtverifier: empty secret")
	}
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}
