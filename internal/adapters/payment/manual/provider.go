// Package manual is a payment provider that authorizes every session immediately.
// It stands in for offline payments (invoice, cash on delivery) and local development.
package manual

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

const DefaultID = "manual"

type Provider struct {
	id string
}

func New(id string) *Provider {
	if id == "" {
		id = DefaultID
	}
	return &Provider{id: id}
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) CreateSession(ctx context.Context, cart domain.Cart) (map[string]any, error) {
	_ = ctx
	return map[string]any{
		"amount":        cart.Total(),
		"currency_code": cart.CurrencyCode,
	}, nil
}

// Authorize is idempotent: authorizing an authorized session returns the same data.
func (p *Provider) Authorize(ctx context.Context, session domain.PaymentSession, authCtx map[string]any) (domain.PaymentSessionStatus, map[string]any, error) {
	_ = ctx
	data := make(map[string]any, len(session.Data)+1)
	for k, v := range session.Data {
		data[k] = v
	}
	if key, ok := authCtx["idempotency_key"].(string); ok && key != "" {
		data["authorization_key"] = key
	}
	return domain.PaymentSessionAuthorized, data, nil
}
