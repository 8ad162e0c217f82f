package jwtverifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Overland-East-Bay/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testConfig() config.AdminAuthConfig {
	return config.AdminAuthConfig{
		Mode:     config.AuthModeJWT,
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:   "test-iss",
		Audience: "test-aud",
	}
}

func TestVerifier_Verify_ValidToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v := jwtverifier.NewWithClock(cfg, clk)

	tok, err := jwtverifier.Mint(cfg, "ops-1", clk.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	sub, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "ops-1" {
		t.Fatalf("sub mismatch: got %q", sub)
	}
}

func TestVerifier_Verify_Expired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v := jwtverifier.NewWithClock(cfg, clk)

	tok, err := jwtverifier.Mint(cfg, "ops-1", clk.Now(), time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	clk.Advance(2 * time.Minute)
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, jwtverifier.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifier_Verify_ClockSkewTolerated(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.ClockSkew = time.Minute
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v := jwtverifier.NewWithClock(cfg, clk)

	tok, err := jwtverifier.Mint(cfg, "ops-1", clk.Now(), time.Minute)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	clk.Advance(90 * time.Second)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("Verify within skew: %v", err)
	}
}

func TestVerifier_Verify_Rejects(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	now := time.Unix(1700000000, 0)
	sign := func(method jwt.SigningMethod, key any, claims jwtverifier.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		return s
	}
	base := func() jwtverifier.Claims {
		return jwtverifier.Claims{
			Role: jwtverifier.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    cfg.Issuer,
				Subject:   "ops-1",
				Audience:  jwt.ClaimStrings{cfg.Audience},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	wrongIss := base()
	wrongIss.Issuer = "other"
	wrongAud := base()
	wrongAud.Audience = jwt.ClaimStrings{"other"}
	noExp := base()
	noExp.ExpiresAt = nil
	notYet := base()
	notYet.NotBefore = jwt.NewNumericDate(now.Add(time.Minute))
	customer := base()
	customer.Role = "customer"
	noSub := base()
	noSub.Subject = ""

	cases := map[string]string{
		"garbage":        "not-a-jwt",
		"wrong secret":   sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), base()),
		"wrong alg":      sign(jwt.SigningMethodHS384, cfg.Secret, base()),
		"wrong issuer":   sign(jwt.SigningMethodHS256, cfg.Secret, wrongIss),
		"wrong audience": sign(jwt.SigningMethodHS256, cfg.Secret, wrongAud),
		"missing exp":    sign(jwt.SigningMethodHS256, cfg.Secret, noExp),
		"not yet valid":  sign(jwt.SigningMethodHS256, cfg.Secret, notYet),
		"non-admin role": sign(jwt.SigningMethodHS256, cfg.Secret, customer),
		"missing sub":    sign(jwt.SigningMethodHS256, cfg.Secret, noSub),
	}
	v := jwtverifier.NewWithClock(cfg, &fakeClock{now: now})
	for name, tok := range cases {
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, jwtverifier.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestMint_RequiresSecret(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Secret = nil
	if _, err := jwtverifier.Mint(cfg, "ops-1", time.Unix(0, 0), time.Minute); err == nil {
		t.Fatalf("expected error")
	}
}
