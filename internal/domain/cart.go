package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Amounts are in the smallest currency unit.
const (
	MaxUnitPrice     int64 = 1_000_000_000_000
	MaxQuantity            = 1_000_000
	MaxShippingTotal int64 = 1_000_000_000_000
)

var ErrAmountOutOfRange = errors.New("cart amount out of range")

// CartType distinguishes regular checkouts from carts created to pay for a swap.
type CartType string

const (
	CartTypeDefault CartType = "default"
	CartTypeSwap    CartType = "swap"
)

// MetadataSwapID is the cart metadata key linking a swap cart to its swap.
const MetadataSwapID = "swap_id"

// PaymentSessionStatus is the provider-reported state of a payment session.
type PaymentSessionStatus string

const (
	PaymentSessionPending      PaymentSessionStatus = "pending"
	PaymentSessionRequiresMore PaymentSessionStatus = "requires_more"
	PaymentSessionAuthorized   PaymentSessionStatus = "authorized"
	PaymentSessionError        PaymentSessionStatus = "error"
	PaymentSessionCanceled     PaymentSessionStatus = "canceled"
)

type LineItem struct {
	ID        LineItemID `json:"id"`
	Title     string     `json:"title"`
	UnitPrice int64      `json:"unit_price"`
	Quantity  int        `json:"quantity"`
}

// Total is the line amount in the smallest currency unit.
func (li LineItem) Total() int64 { return li.UnitPrice * int64(li.Quantity) }

type PaymentSession struct {
	ProviderID string               `json:"provider_id"`
	Status     PaymentSessionStatus `json:"status"`
	IsSelected bool                 `json:"is_selected"`
	Data       map[string]any       `json:"data,omitempty"`
}

// Payment is an authorized amount held by a provider for a cart.
type Payment struct {
	ID           PaymentID      `json:"id"`
	CartID       CartID         `json:"cart_id"`
	OrderID      *OrderID       `json:"order_id,omitempty"`
	SwapID       *SwapID        `json:"swap_id,omitempty"`
	ProviderID   string         `json:"provider_id"`
	Amount       int64          `json:"amount"`
	CurrencyCode string         `json:"currency_code"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type Cart struct {
	ID                  CartID           `json:"id"`
	Email               string           `json:"email,omitempty"`
	Type                CartType         `json:"type"`
	RegionID            string           `json:"region_id"`
	CurrencyCode        string           `json:"currency_code"`
	Items               []LineItem       `json:"items"`
	ShippingTotal       int64            `json:"shipping_total"`
	PaymentSessions     []PaymentSession `json:"payment_sessions"`
	Payment             *Payment         `json:"payment,omitempty"`
	PaymentAuthorizedAt *time.Time       `json:"payment_authorized_at,omitempty"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (c Cart) Subtotal() int64 {
	var sum int64
	for _, li := range c.Items {
		sum += li.Total()
	}
	return sum
}

func (c Cart) Total() int64 { return c.Subtotal() + c.ShippingTotal }

// CheckedTotal is Total with overflow and range checks. Payment decisions must use it.
func (c Cart) CheckedTotal() (int64, error) {
	return checkedTotal(c.Items, c.ShippingTotal)
}

func checkedTotal(items []LineItem, shipping int64) (int64, error) {
	if shipping < 0 || shipping > MaxShippingTotal {
		return 0, ErrAmountOutOfRange
	}
	sum := shipping
	for _, li := range items {
		if li.UnitPrice < 0 || li.UnitPrice > MaxUnitPrice || li.Quantity < 0 || li.Quantity > MaxQuantity {
			return 0, ErrAmountOutOfRange
		}
		t := li.Total()
		if sum > math.MaxInt64-t {
			return 0, ErrAmountOutOfRange
		}
		sum += t
	}
	return sum, nil
}

// PaymentSession returns the selected session, if any.
func (c Cart) PaymentSession() (PaymentSession, bool) {
	for _, ps := range c.PaymentSessions {
		if ps.IsSelected {
			return ps, true
		}
	}
	return PaymentSession{}, false
}

// SwapID returns the swap a swap cart pays for.
func (c Cart) SwapID() (SwapID, bool) {
	if c.Metadata == nil {
		return "", false
	}
	v, ok := c.Metadata[MetadataSwapID].(string)
	return SwapID(v), ok && v != ""
}

// CartView is the JSON shape returned to storefront clients, with computed totals.
type CartView struct {
	Cart
	Subtotal       int64           `json:"subtotal"`
	Total          int64           `json:"total"`
	PaymentSession *PaymentSession `json:"payment_session,omitempty"`
}

func (c Cart) View() CartView {
	v := CartView{Cart: c, Subtotal: c.Subtotal(), Total: c.Total()}
	if ps, ok := c.PaymentSession(); ok {
		v.PaymentSession = &ps
	}
	return v
}

// CloneCart returns a deep copy so stored carts are never aliased by callers.
func CloneCart(c Cart) Cart {
	out := c
	out.Items = append([]LineItem(nil), c.Items...)
	if c.PaymentSessions != nil {
		out.PaymentSessions = make([]PaymentSession, len(c.PaymentSessions))
		for i, ps := range c.PaymentSessions {
			ps.Data = cloneMap(ps.Data)
			out.PaymentSessions[i] = ps
		}
	}
	if c.Payment != nil {
		p := ClonePayment(*c.Payment)
		out.Payment = &p
	}
	out.PaymentAuthorizedAt = cloneTimePtr(c.PaymentAuthorizedAt)
	out.CompletedAt = cloneTimePtr(c.CompletedAt)
	out.Metadata = cloneMap(c.Metadata)
	return out
}

func ClonePayment(p Payment) Payment {
	out := p
	if p.OrderID != nil {
		v := *p.OrderID
		out.OrderID = &v
	}
	if p.SwapID != nil {
		v := *p.SwapID
		out.SwapID = &v
	}
	out.Data = cloneMap(p.Data)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// LineItemProblems reports invalid line items keyed by their position, or nil when all
// items are valid.
func LineItemProblems(items []LineItem) map[string]any {
	var out map[string]any
	for i, li := range items {
		var msg string
		switch {
		case li.Title == "":
			msg = "title is required"
		case li.Quantity <= 0:
			msg = "quantity must be positive"
		case li.Quantity > MaxQuantity:
			msg = fmt.Sprintf("quantity must not exceed %d", MaxQuantity)
		case li.UnitPrice < 0:
			msg = "unit_price must not be negative"
		case li.UnitPrice > MaxUnitPrice:
			msg = fmt.Sprintf("unit_price must not exceed %d", MaxUnitPrice)
		default:
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		out[fmt.Sprintf("items[%d]", i)] = msg
	}
	return out
}

// AmountProblems extends LineItemProblems with the shipping total and the cart total.
func AmountProblems(items []LineItem, shipping int64) map[string]any {
	out := LineItemProblems(items)
	add := func(k, msg string) {
		if out == nil {
			out = map[string]any{}
		}
		out[k] = msg
	}
	switch {
	case shipping < 0:
		add("shipping_total", "must not be negative")
	case shipping > MaxShippingTotal:
		add("shipping_total", fmt.Sprintf("must not exceed %d", MaxShippingTotal))
	}
	if out != nil {
		return out
	}
	if _, err := checkedTotal(items, shipping); err != nil {
		add("total", "cart total is out of range")
	}
	return out
}
