package orderrepo

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/orderrepo"
)

// Repo is an in-memory implementation of orderrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu       sync.RWMutex
	byID     map[domain.OrderID]domain.Order
	idByCart map[domain.CartID]domain.OrderID
}

func NewRepo() *Repo {
	return &Repo{
		byID:     make(map[domain.OrderID]domain.Order),
		idByCart: make(map[domain.CartID]domain.OrderID),
	}
}

func (r *Repo) Create(ctx context.Context, o domain.Order) error {
	_ = ctx
	if o.ID == "" {
		return orderrepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[o.ID]; ok {
		return orderrepo.ErrAlreadyExists
	}
	if _, ok := r.idByCart[o.CartID]; ok && o.CartID != "" {
		return orderrepo.ErrCartAlreadyOrdered
	}
	r.byID[o.ID] = domain.CloneOrder(o)
	if o.CartID != "" {
		r.idByCart[o.CartID] = o.ID
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, o domain.Order) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[o.ID]
	if !ok {
		return orderrepo.ErrNotFound
	}
	// The cart binding is immutable.
	o.CartID = existing.CartID
	r.byID[o.ID] = domain.CloneOrder(o)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return domain.Order{}, orderrepo.ErrNotFound
	}
	return domain.CloneOrder(o), nil
}

func (r *Repo) GetByCartID(ctx context.Context, cartID domain.CartID) (domain.Order, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByCart[cartID]
	if !ok {
		return domain.Order{}, orderrepo.ErrNotFound
	}
	return domain.CloneOrder(r.byID[id]), nil
}

// Checkpoint captures the current contents. Calling the returned func restores them.
func (r *Repo) Checkpoint() func() {
	r.mu.RLock()
	byID := make(map[domain.OrderID]domain.Order, len(r.byID))
	for k, v := range r.byID {
		byID[k] = v
	}
	idByCart := make(map[domain.CartID]domain.OrderID, len(r.idByCart))
	for k, v := range r.idByCart {
		idByCart[k] = v
	}
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.byID = byID
		r.idByCart = idByCart
		r.mu.Unlock()
	}
}
