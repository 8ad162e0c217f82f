// Package orders implements order lookups and the admin operations performed after checkout.
package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

type Service struct {
	runner uow.Runner
	clk    clockport.Clock

	newSwapID     func() domain.SwapID
	newCartID     func() domain.CartID
	newLineItemID func() domain.LineItemID
}

func NewService(runner uow.Runner, clk clockport.Clock) *Service {
	return &Service{
		runner: runner,
		clk:    clk,
		newSwapID: func() domain.SwapID {
			return domain.SwapID("swap_" + uuid.NewString())
		},
		newCartID: func() domain.CartID {
			return domain.CartID("cart_" + uuid.NewString())
		},
		newLineItemID: func() domain.LineItemID {
			return domain.LineItemID("item_" + uuid.NewString())
		},
	}
}

type CreateSwapInput struct {
	Items         []domain.LineItem
	ShippingTotal int64
}

func (s *Service) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	var o domain.Order
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		o, err = load(ctx, tx, id)
		return err
	})
	return o, err
}

// CompleteOrder marks a pending order completed. Completing a completed order is a no-op.
func (s *Service) CompleteOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	var out domain.Order
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		o, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		switch o.Status {
		case domain.OrderStatusCompleted:
			out = o
			return nil
		case domain.OrderStatusCanceled:
			return &Error{Status: 400, Code: "NOT_ALLOWED", Message: "A canceled order cannot be completed."}
		}
		o.Status = domain.OrderStatusCompleted
		o.UpdatedAt = s.clk.Now().UTC()
		if err := tx.Orders.Update(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return out, nil
}

// CreateSwap registers a swap on the order together with the cart the customer pays it
// through. The swap is confirmed when that cart completes.
func (s *Service) CreateSwap(ctx context.Context, orderID domain.OrderID, in CreateSwapInput) (domain.Swap, domain.Cart, error) {
	if len(in.Items) == 0 {
		return domain.Swap{}, domain.Cart{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid items",
			Details: map[string]any{"items": "must be non-empty"},
		}
	}
	if problems := domain.AmountProblems(in.Items, in.ShippingTotal); problems != nil {
		return domain.Swap{}, domain.Cart{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid amounts", Details: problems}
	}

	var swap domain.Swap
	var cart domain.Cart
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		o, err := load(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == domain.OrderStatusCanceled {
			return &Error{Status: 400, Code: "NOT_ALLOWED", Message: "A canceled order cannot be swapped."}
		}

		now := s.clk.Now().UTC()
		swap = domain.Swap{
			ID:        s.newSwapID(),
			OrderID:   o.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		items := make([]domain.LineItem, len(in.Items))
		for i, li := range in.Items {
			if li.ID == "" {
				li.ID = s.newLineItemID()
			}
			items[i] = li
		}
		cart = domain.Cart{
			ID:              s.newCartID(),
			Email:           o.Email,
			Type:            domain.CartTypeSwap,
			RegionID:        o.RegionID,
			CurrencyCode:    o.CurrencyCode,
			Items:           items,
			ShippingTotal:   in.ShippingTotal,
			PaymentSessions: []domain.PaymentSession{},
			Metadata:        map[string]any{domain.MetadataSwapID: string(swap.ID)},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		swap.CartID = cart.ID

		if err := tx.Carts.Create(ctx, cart); err != nil {
			return err
		}
		return tx.Swaps.Create(ctx, swap)
	})
	if err != nil {
		return domain.Swap{}, domain.Cart{}, err
	}
	return swap, cart, nil
}

func load(ctx context.Context, tx uow.Tx, id domain.OrderID) (domain.Order, error) {
	o, err := tx.Orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return domain.Order{}, errOrderNotFound()
		}
		return domain.Order{}, err
	}
	return o, nil
}
