// Package checkout completes carts into orders (or confirmed swaps) through a resumable,
// idempotent workflow.
package checkout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Overland-East-Bay/storefront-api/internal/app/recovery"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
	clockport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/payment"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// Recovery points of the cart completion workflow, in execution order.
const (
	PointStarted                                     = idempotency.Started
	PointPaymentAuthorized idempotency.RecoveryPoint = "payment_authorized"
)

type Service struct {
	store    idempotency.Store
	payments *payment.Registry
	clock    clockport.Clock
	opts     recovery.Options

	newOrderID   func() domain.OrderID
	newPaymentID func() domain.PaymentID
}

func NewService(store idempotency.Store, payments *payment.Registry, clock clockport.Clock, log *slog.Logger, metrics recovery.Recorder) *Service {
	return &Service{
		store:    store,
		payments: payments,
		clock:    clock,
		opts:     recovery.Options{Logger: log, Metrics: metrics},
		newOrderID: func() domain.OrderID {
			return domain.OrderID("order_" + uuid.NewString())
		},
		newPaymentID: func() domain.PaymentID {
			return domain.PaymentID("pay_" + uuid.NewString())
		},
	}
}

// CompleteCartInput identifies the originating request. Params and Path are compared on
// replay, so they must be derived from the request deterministically.
type CompleteCartInput struct {
	CartID domain.CartID
	Key    idempotency.Key
	Method string
	Path   string
	Params []byte
	// Body is kept on the record for inspection. It does not take part in key reuse checks.
	Body []byte
}

// CompleteCart runs the completion workflow for a cart. An empty key is replaced by a
// fresh one, which makes the call a new logical operation. The returned result carries
// the key even when err is non-nil.
func (s *Service) CompleteCart(ctx context.Context, in CompleteCartInput) (recovery.Result, error) {
	key := in.Key
	if key == "" {
		key = idempotency.NewKey()
	}
	wf, err := recovery.New(s.store, s.stages(in.CartID, key), s.opts)
	if err != nil {
		return recovery.Result{Key: key}, err
	}
	return wf.Run(ctx, idempotency.Request{
		Key:    key,
		Method: in.Method,
		Params: in.Params,
		Body:   in.Body,
		Path:   in.Path,
	})
}

func (s *Service) stages(cartID domain.CartID, key idempotency.Key) []recovery.Stage {
	return []recovery.Stage{
		{Point: PointStarted, Run: func(ctx context.Context, tx uow.Tx) (idempotency.Outcome, error) {
			return s.authorizeStage(ctx, tx, cartID, key)
		}},
		{Point: PointPaymentAuthorized, Run: func(ctx context.Context, tx uow.Tx) (idempotency.Outcome, error) {
			return s.completeStage(ctx, tx, cartID, key)
		}},
	}
}

func (s *Service) authorizeStage(ctx context.Context, tx uow.Tx, cartID domain.CartID, key idempotency.Key) (idempotency.Outcome, error) {
	cart, err := s.authorizePayment(ctx, tx, cartID, key)
	if err != nil {
		return idempotency.Outcome{}, err
	}
	if ps, ok := cart.PaymentSession(); ok {
		if ps.Status == domain.PaymentSessionRequiresMore || ps.Status == domain.PaymentSessionPending {
			return idempotency.DoneJSON(200, map[string]any{"data": cart.View()})
		}
	}
	return idempotency.Advance(PointPaymentAuthorized), nil
}

func (s *Service) completeStage(ctx context.Context, tx uow.Tx, cartID domain.CartID, key idempotency.Key) (idempotency.Outcome, error) {
	cart, err := loadCart(ctx, tx, cartID)
	if err != nil {
		return idempotency.Outcome{}, err
	}

	if cart.Type == domain.CartTypeSwap {
		swapID, ok := cart.SwapID()
		if !ok {
			return idempotency.Outcome{}, &Error{Status: 400, Code: "INVALID_DATA", Message: "swap cart is not linked to a swap"}
		}
		swap, err := s.registerSwapCompletion(ctx, tx, cart, swapID, key)
		if err != nil {
			return idempotency.Outcome{}, err
		}
		return idempotency.DoneJSON(200, map[string]any{"data": swap})
	}

	total, err := cartTotal(cart)
	if err != nil {
		return idempotency.Outcome{}, err
	}
	if cart.Payment == nil && total > 0 {
		return idempotency.Outcome{}, errPaymentNotAuthorized()
	}
	order, err := s.createOrderFromCart(ctx, tx, cart, key)
	if errors.Is(err, orderrepo.ErrCartAlreadyOrdered) {
		// A previous attempt committed the order but not the recovery point.
		order, err = tx.Orders.GetByCartID(ctx, cart.ID)
	}
	if err != nil {
		return idempotency.Outcome{}, err
	}
	return idempotency.DoneJSON(200, map[string]any{"data": order})
}

func cartTotal(cart domain.Cart) (int64, error) {
	total, err := cart.CheckedTotal()
	if err != nil {
		return 0, errAmountOutOfRange()
	}
	return total, nil
}

func loadCart(ctx context.Context, tx uow.Tx, id domain.CartID) (domain.Cart, error) {
	cart, err := tx.Carts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, cartrepo.ErrNotFound) {
			return domain.Cart{}, errCartNotFound()
		}
		return domain.Cart{}, err
	}
	return cart, nil
}

// authorizePayment authorizes the selected payment session and records the payment on
// the cart. Carts that are already authorized are returned unchanged.
func (s *Service) authorizePayment(ctx context.Context, tx uow.Tx, cartID domain.CartID, key idempotency.Key) (domain.Cart, error) {
	cart, err := loadCart(ctx, tx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.CompletedAt != nil || cart.Payment != nil {
		return cart, nil
	}
	total, err := cartTotal(cart)
	if err != nil {
		return domain.Cart{}, err
	}
	now := s.clock.Now().UTC()

	if total <= 0 {
		cart.PaymentAuthorizedAt = &now
		cart.UpdatedAt = now
		return cart, tx.Carts.Update(ctx, cart)
	}

	idx := -1
	for i, ps := range cart.PaymentSessions {
		if ps.IsSelected {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Cart{}, &Error{Status: 400, Code: "NOT_ALLOWED", Message: "You cannot complete a cart without a payment session."}
	}
	session := cart.PaymentSessions[idx]
	provider, err := s.payments.Get(session.ProviderID)
	if err != nil {
		return domain.Cart{}, &Error{Status: 400, Code: "INVALID_DATA", Message: err.Error()}
	}

	status, data, err := provider.Authorize(ctx, session, map[string]any{
		"idempotency_key": string(key),
		"cart_id":         string(cart.ID),
	})
	if err != nil {
		return domain.Cart{}, err
	}
	session.Status = status
	if data != nil {
		session.Data = data
	}
	cart.PaymentSessions[idx] = session

	if status == domain.PaymentSessionAuthorized {
		cart.Payment = &domain.Payment{
			ID:           s.newPaymentID(),
			CartID:       cart.ID,
			ProviderID:   session.ProviderID,
			Amount:       total,
			CurrencyCode: cart.CurrencyCode,
			Data:         session.Data,
			CreatedAt:    now,
		}
		cart.PaymentAuthorizedAt = &now
	}
	cart.UpdatedAt = now
	if err := tx.Carts.Update(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (s *Service) createOrderFromCart(ctx context.Context, tx uow.Tx, cart domain.Cart, key idempotency.Key) (domain.Order, error) {
	now := s.clock.Now().UTC()
	order := domain.Order{
		ID:             s.newOrderID(),
		CartID:         cart.ID,
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusNotPaid,
		Email:          cart.Email,
		RegionID:       cart.RegionID,
		CurrencyCode:   cart.CurrencyCode,
		Items:          append([]domain.LineItem(nil), cart.Items...),
		Subtotal:       cart.Subtotal(),
		ShippingTotal:  cart.ShippingTotal,
		Total:          cart.Total(),
		Payments:       []domain.Payment{},
		IdempotencyKey: string(key),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cart.Payment != nil {
		p := domain.ClonePayment(*cart.Payment)
		p.OrderID = &order.ID
		order.Payments = append(order.Payments, p)
		order.PaymentStatus = domain.PaymentStatusAwaiting
		cart.Payment.OrderID = &order.ID
	}
	if err := tx.Orders.Create(ctx, order); err != nil {
		return domain.Order{}, err
	}
	cart.CompletedAt = &now
	cart.UpdatedAt = now
	if err := tx.Carts.Update(ctx, cart); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// registerSwapCompletion confirms the swap paid for by cart. Confirmed swaps are returned
// as they are.
func (s *Service) registerSwapCompletion(ctx context.Context, tx uow.Tx, cart domain.Cart, id domain.SwapID, key idempotency.Key) (domain.Swap, error) {
	swap, err := tx.Swaps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, swaprepo.ErrNotFound) {
			return domain.Swap{}, &Error{Status: 404, Code: "SWAP_NOT_FOUND", Message: "swap not found"}
		}
		return domain.Swap{}, err
	}
	if swap.ConfirmedAt != nil {
		return swap, nil
	}
	total, err := cartTotal(cart)
	if err != nil {
		return domain.Swap{}, err
	}
	if cart.Payment == nil && total > 0 {
		return domain.Swap{}, errPaymentNotAuthorized()
	}

	now := s.clock.Now().UTC()
	if cart.Payment != nil {
		p := domain.ClonePayment(*cart.Payment)
		p.SwapID = &swap.ID
		swap.Payment = &p
		cart.Payment.SwapID = &swap.ID
	}
	swap.ConfirmedAt = &now
	swap.IdempotencyKey = string(key)
	swap.UpdatedAt = now
	if err := tx.Swaps.Update(ctx, swap); err != nil {
		return domain.Swap{}, err
	}
	cart.CompletedAt = &now
	cart.UpdatedAt = now
	if err := tx.Carts.Update(ctx, cart); err != nil {
		return domain.Swap{}, err
	}
	return swap, nil
}
