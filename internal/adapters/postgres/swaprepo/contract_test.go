package swaprepo

import (
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/testutil"
	swaprepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
)

func TestContract_PostgresSwapRepo(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunSwapRepo(t, func(t *testing.T) (swaprepoport.Repository, func()) {
		t.Helper()
		return NewRepo(pool), nil
	})
}
