// Package carts manages storefront carts up to the point of checkout.
package carts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/payment"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

type Service struct {
	runner   uow.Runner
	payments *payment.Registry
	clk      clockport.Clock

	newCartID     func() domain.CartID
	newLineItemID func() domain.LineItemID
}

func NewService(runner uow.Runner, payments *payment.Registry, clk clockport.Clock) *Service {
	return &Service{
		runner:   runner,
		payments: payments,
		clk:      clk,
		newCartID: func() domain.CartID {
			return domain.CartID("cart_" + uuid.NewString())
		},
		newLineItemID: func() domain.LineItemID {
			return domain.LineItemID("item_" + uuid.NewString())
		},
	}
}

func (s *Service) CreateCart(ctx context.Context, in CreateCartInput) (domain.Cart, error) {
	currency := strings.ToLower(strings.TrimSpace(in.CurrencyCode))
	if currency == "" {
		return domain.Cart{}, &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid currency_code",
			Details: map[string]any{"currency_code": "must be non-empty"},
		}
	}
	if problems := domain.AmountProblems(in.Items, in.ShippingTotal); problems != nil {
		return domain.Cart{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid amounts", Details: problems}
	}

	now := s.clk.Now().UTC()
	items := make([]domain.LineItem, len(in.Items))
	for i, li := range in.Items {
		if li.ID == "" {
			li.ID = s.newLineItemID()
		}
		items[i] = li
	}
	cart := domain.Cart{
		ID:              s.newCartID(),
		Email:           strings.TrimSpace(in.Email),
		Type:            domain.CartTypeDefault,
		RegionID:        in.RegionID,
		CurrencyCode:    currency,
		Items:           items,
		ShippingTotal:   in.ShippingTotal,
		PaymentSessions: []domain.PaymentSession{},
		Metadata:        in.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		return tx.Carts.Create(ctx, cart)
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) GetCart(ctx context.Context, id domain.CartID) (domain.Cart, error) {
	var cart domain.Cart
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		cart, err = load(ctx, tx, id)
		return err
	})
	return cart, err
}

// CreatePaymentSessions opens a session with every enabled provider the cart does not
// have one for yet. A lone session is selected automatically.
func (s *Service) CreatePaymentSessions(ctx context.Context, id domain.CartID) (domain.Cart, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cart *domain.Cart) error {
		have := make(map[string]bool, len(cart.PaymentSessions))
		for _, ps := range cart.PaymentSessions {
			have[ps.ProviderID] = true
		}
		for _, pid := range s.payments.IDs() {
			if have[pid] {
				continue
			}
			provider, err := s.payments.Get(pid)
			if err != nil {
				return err
			}
			data, err := provider.CreateSession(ctx, *cart)
			if err != nil {
				return err
			}
			cart.PaymentSessions = append(cart.PaymentSessions, domain.PaymentSession{
				ProviderID: pid,
				Status:     domain.PaymentSessionPending,
				Data:       data,
			})
		}
		if len(cart.PaymentSessions) == 1 {
			cart.PaymentSessions[0].IsSelected = true
		}
		return nil
	})
}

func (s *Service) SelectPaymentSession(ctx context.Context, id domain.CartID, providerID string) (domain.Cart, error) {
	return s.mutate(ctx, id, func(ctx context.Context, cart *domain.Cart) error {
		found := false
		for i := range cart.PaymentSessions {
			match := cart.PaymentSessions[i].ProviderID == providerID
			cart.PaymentSessions[i].IsSelected = match
			found = found || match
		}
		if !found {
			return &Error{
				Status:  400,
				Code:    "INVALID_DATA",
				Message: "The cart has no payment session for the requested provider.",
				Details: map[string]any{"provider_id": providerID},
			}
		}
		return nil
	})
}

// mutate loads an open cart, applies fn and stores the result in one transaction.
func (s *Service) mutate(ctx context.Context, id domain.CartID, fn func(ctx context.Context, cart *domain.Cart) error) (domain.Cart, error) {
	var out domain.Cart
	err := s.runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		cart, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if cart.CompletedAt != nil || cart.Payment != nil {
			return errCartCompleted()
		}
		if err := fn(ctx, &cart); err != nil {
			return err
		}
		cart.UpdatedAt = s.clk.Now().UTC()
		if err := tx.Carts.Update(ctx, cart); err != nil {
			return err
		}
		out = cart
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return out, nil
}

func load(ctx context.Context, tx uow.Tx, id domain.CartID) (domain.Cart, error) {
	cart, err := tx.Carts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, cartrepo.ErrNotFound) {
			return domain.Cart{}, errCartNotFound()
		}
		return domain.Cart{}, err
	}
	return cart, nil
}
