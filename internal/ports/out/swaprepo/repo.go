package swaprepo

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

// Repository provides access to persisted swaps.
type Repository interface {
	Create(ctx context.Context, s domain.Swap) error
	Update(ctx context.Context, s domain.Swap) error
	GetByID(ctx context.Context, id domain.SwapID) (domain.Swap, error)
}
