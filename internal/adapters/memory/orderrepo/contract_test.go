package orderrepo

import (
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	orderrepoport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
)

func TestContract_OrderRepo(t *testing.T) {
	contracttest.RunOrderRepo(t, func(t *testing.T) (orderrepoport.Repository, func()) {
		t.Helper()
		return NewRepo(), nil
	})
}
