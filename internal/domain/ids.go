package domain

// CartID identifies a cart. Carts are created by the storefront before checkout.
type CartID string

// OrderID is an internal identifier for an order record.
type OrderID string

// SwapID is an internal identifier for a swap record.
type SwapID string

// PaymentID is an internal identifier for a captured payment authorization.
type PaymentID string

// LineItemID identifies a single line on a cart or order.
type LineItemID string
