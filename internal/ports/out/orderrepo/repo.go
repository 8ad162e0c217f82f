package orderrepo

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

// Repository provides access to persisted orders.
//
// At most one order exists per cart; Create enforces it with ErrCartAlreadyOrdered.
type Repository interface {
	Create(ctx context.Context, o domain.Order) error
	Update(ctx context.Context, o domain.Order) error

	GetByID(ctx context.Context, id domain.OrderID) (domain.Order, error)
	GetByCartID(ctx context.Context, cartID domain.CartID) (domain.Order, error)
}
