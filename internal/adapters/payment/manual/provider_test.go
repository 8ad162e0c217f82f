package manual

import (
	"context"
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

func TestProvider_AuthorizesImmediately(t *testing.T) {
	t.Parallel()

	p := New("")
	if p.ID() != DefaultID {
		t.Fatalf("ID() = %q, want %q", p.ID(), DefaultID)
	}

	cart := domain.Cart{
		CurrencyCode: "eur",
		Items:        []domain.LineItem{{UnitPrice: 250, Quantity: 4}},
	}
	data, err := p.CreateSession(context.Background(), cart)
	if err != nil {
		t.Fatalf("CreateSession() err=%v", err)
	}
	if data["amount"] != int64(1000) {
		t.Fatalf("unexpected session data: %#v", data)
	}

	session := domain.PaymentSession{ProviderID: p.ID(), Status: domain.PaymentSessionPending, Data: data}
	status, out, err := p.Authorize(context.Background(), session, map[string]any{"idempotency_key": "k-1"})
	if err != nil {
		t.Fatalf("Authorize() err=%v", err)
	}
	if status != domain.PaymentSessionAuthorized || out["authorization_key"] != "k-1" || out["amount"] != int64(1000) {
		t.Fatalf("unexpected authorization: status=%q data=%#v", status, out)
	}
}
