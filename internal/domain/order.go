package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

type PaymentStatus string

const (
	PaymentStatusNotPaid    PaymentStatus = "not_paid"
	PaymentStatusAwaiting   PaymentStatus = "awaiting"
	PaymentStatusAuthorized PaymentStatus = "authorized"
)

type Order struct {
	ID             OrderID       `json:"id"`
	CartID         CartID        `json:"cart_id"`
	Status         OrderStatus   `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	Email          string        `json:"email,omitempty"`
	RegionID       string        `json:"region_id"`
	CurrencyCode   string        `json:"currency_code"`
	Items          []LineItem    `json:"items"`
	Subtotal       int64         `json:"subtotal"`
	ShippingTotal  int64         `json:"shipping_total"`
	Total          int64         `json:"total"`
	Payments       []Payment     `json:"payments"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Swap exchanges items on an existing order; it is paid for through its own cart.
type Swap struct {
	ID             SwapID     `json:"id"`
	OrderID        OrderID    `json:"order_id"`
	CartID         CartID     `json:"cart_id"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	Payment        *Payment   `json:"payment,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func CloneOrder(o Order) Order {
	out := o
	out.Items = append([]LineItem(nil), o.Items...)
	if o.Payments != nil {
		out.Payments = make([]Payment, len(o.Payments))
		for i, p := range o.Payments {
			out.Payments[i] = ClonePayment(p)
		}
	}
	return out
}

func CloneSwap(s Swap) Swap {
	out := s
	out.ConfirmedAt = cloneTimePtr(s.ConfirmedAt)
	if s.Payment != nil {
		p := ClonePayment(*s.Payment)
		out.Payment = &p
	}
	return out
}
