package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
)

// ErrUnknownProvider indicates no provider is registered under the requested id.
var ErrUnknownProvider = errors.New("unknown payment provider")

// Provider is a payment gateway integration.
//
// Implementations must treat Authorize as idempotent for a given session: the checkout
// workflow passes the cart's idempotency key in authCtx["idempotency_key"] and may call
// Authorize again after a crash.
type Provider interface {
	ID() string
	CreateSession(ctx context.Context, cart domain.Cart) (map[string]any, error)
	Authorize(ctx context.Context, session domain.PaymentSession, authCtx map[string]any) (domain.PaymentSessionStatus, map[string]any, error)
}

// Registry resolves providers by id.
type Registry struct {
	byID map[string]Provider
}

func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byID: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.byID[p.ID()]; dup {
			return nil, fmt.Errorf("duplicate payment provider %q", p.ID())
		}
		r.byID[p.ID()] = p
	}
	return r, nil
}

func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// IDs returns registered provider ids in ascending order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
