package uow

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
)

// Tx is a set of repositories bound to one transaction.
// Writes made through a Tx become visible together, or not at all.
type Tx struct {
	Carts  cartrepo.Repository
	Orders orderrepo.Repository
	Swaps  swaprepo.Repository
}

// Runner opens transactions.
//
// Do commits when fn returns nil and rolls back otherwise. The error returned by fn is
// returned unchanged so callers can inspect it with errors.Is/As.
type Runner interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
