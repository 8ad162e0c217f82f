package cartrepo

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

// Repository provides access to persisted carts.
type Repository interface {
	Create(ctx context.Context, c domain.Cart) error
	// Update replaces the stored cart. It returns ErrNotFound when the cart does not exist.
	Update(ctx context.Context, c domain.Cart) error
	GetByID(ctx context.Context, id domain.CartID) (domain.Cart, error)
}
