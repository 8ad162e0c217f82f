package carts

import (
	"context"
	"errors"
	"testing"
	"time"

	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	"github.com/Overland-East-Bay/storefront-api/internal/adapters/payment/manual"
	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/payment"
)

func newService(t *testing.T, providers ...payment.Provider) *Service {
	t.Helper()
	reg, err := payment.NewRegistry(providers...)
	if err != nil {
		t.Fatalf("NewRegistry err=%v", err)
	}
	clk := memclock.NewManualClock(time.Unix(100, 0).UTC())
	return NewService(memuow.New(), reg, clk)
}

func validInput() CreateCartInput {
	return CreateCartInput{
		Email:        " buyer@example.com ",
		RegionID:     "reg_eu",
		CurrencyCode: "EUR",
		Items:        []domain.LineItem{{Title: "Tent", UnitPrice: 12000, Quantity: 1}},
	}
}

func TestService_CreateThenGet(t *testing.T) {
	t.Parallel()

	svc := newService(t, manual.New(""))
	created, err := svc.CreateCart(context.Background(), validInput())
	if err != nil {
		t.Fatalf("CreateCart err=%v", err)
	}
	if created.CurrencyCode != "eur" || created.Email != "buyer@example.com" || created.Items[0].ID == "" {
		t.Fatalf("created=%+v", created)
	}

	got, err := svc.GetCart(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetCart err=%v", err)
	}
	if got.ID != created.ID || got.Total() != 12000 {
		t.Fatalf("got=%+v", got)
	}
}

func TestService_CreateCart_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		mut   func(*CreateCartInput)
		field string
	}{
		{name: "missing currency", mut: func(in *CreateCartInput) { in.CurrencyCode = " " }, field: "currency_code"},
		{name: "zero quantity", mut: func(in *CreateCartInput) { in.Items[0].Quantity = 0 }, field: "items[0]"},
		{name: "negative price", mut: func(in *CreateCartInput) { in.Items[0].UnitPrice = -1 }, field: "items[0]"},
		{name: "negative shipping", mut: func(in *CreateCartInput) { in.ShippingTotal = -5 }, field: "shipping_total"},
		{name: "price above max", mut: func(in *CreateCartInput) { in.Items[0].UnitPrice = 1 << 62 }, field: "items[0]"},
		{name: "quantity above max", mut: func(in *CreateCartInput) { in.Items[0].Quantity = domain.MaxQuantity + 1 }, field: "items[0]"},
		{name: "shipping above max", mut: func(in *CreateCartInput) { in.ShippingTotal = domain.MaxShippingTotal + 1 }, field: "shipping_total"},
		{name: "total overflows", mut: func(in *CreateCartInput) {
			in.Items = nil
			for i := 0; i < 10; i++ {
				in.Items = append(in.Items, domain.LineItem{Title: "Winch", UnitPrice: domain.MaxUnitPrice, Quantity: domain.MaxQuantity})
			}
		}, field: "total"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := newService(t, manual.New(""))
			in := validInput()
			tc.mut(&in)
			_, err := svc.CreateCart(context.Background(), in)
			ae := (*Error)(nil)
			if !errors.As(err, &ae) || ae.Status != 422 {
				t.Fatalf("err=%v, want 422", err)
			}
			if _, ok := ae.Details[tc.field]; !ok {
				t.Fatalf("details=%v, want key %q", ae.Details, tc.field)
			}
		})
	}
}

func TestService_GetCart_NotFound(t *testing.T) {
	t.Parallel()

	svc := newService(t, manual.New(""))
	_, err := svc.GetCart(context.Background(), "cart_missing")
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != 404 || ae.Code != "CART_NOT_FOUND" {
		t.Fatalf("err=%v, want CART_NOT_FOUND", err)
	}
}

func TestService_CreatePaymentSessions_SingleProviderIsSelected(t *testing.T) {
	t.Parallel()

	svc := newService(t, manual.New(""))
	ctx := context.Background()
	c, err := svc.CreateCart(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateCart err=%v", err)
	}
	c, err = svc.CreatePaymentSessions(ctx, c.ID)
	if err != nil {
		t.Fatalf("CreatePaymentSessions err=%v", err)
	}
	ps, ok := c.PaymentSession()
	if !ok || ps.ProviderID != manual.DefaultID || ps.Status != domain.PaymentSessionPending {
		t.Fatalf("sessions=%+v", c.PaymentSessions)
	}

	// Repeating does not duplicate sessions.
	c, err = svc.CreatePaymentSessions(ctx, c.ID)
	if err != nil {
		t.Fatalf("CreatePaymentSessions err=%v", err)
	}
	if len(c.PaymentSessions) != 1 {
		t.Fatalf("sessions=%+v", c.PaymentSessions)
	}
}

func TestService_SelectPaymentSession(t *testing.T) {
	t.Parallel()

	svc := newService(t, manual.New(""), manual.New("invoice"))
	ctx := context.Background()
	c, err := svc.CreateCart(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateCart err=%v", err)
	}
	c, err = svc.CreatePaymentSessions(ctx, c.ID)
	if err != nil {
		t.Fatalf("CreatePaymentSessions err=%v", err)
	}
	if _, ok := c.PaymentSession(); ok || len(c.PaymentSessions) != 2 {
		t.Fatalf("expected two unselected sessions, got %+v", c.PaymentSessions)
	}

	c, err = svc.SelectPaymentSession(ctx, c.ID, "invoice")
	if err != nil {
		t.Fatalf("SelectPaymentSession err=%v", err)
	}
	if ps, ok := c.PaymentSession(); !ok || ps.ProviderID != "invoice" {
		t.Fatalf("selected=%+v ok=%v", ps, ok)
	}

	_, err = svc.SelectPaymentSession(ctx, c.ID, "stripe")
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Code != "INVALID_DATA" {
		t.Fatalf("err=%v, want INVALID_DATA", err)
	}
}
