package carts

import "github.com/Overland-East-Bay/storefront-api/internal/domain"

type CreateCartInput struct {
	Email         string
	RegionID      string
	CurrencyCode  string
	Items         []domain.LineItem // IDs are assigned when empty
	ShippingTotal int64
	Metadata      map[string]any
}
