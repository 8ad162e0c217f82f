package swaprepo

import (
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	swaprepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
)

func TestContract_SwapRepo(t *testing.T) {
	contracttest.RunSwapRepo(t, func(t *testing.T) (swaprepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
