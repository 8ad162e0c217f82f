package cartrepo

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/cartrepo"
)

// Repo is an in-memory implementation of cartrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.CartID]domain.Cart
}

func NewRepo() *Repo {
	return &Repo{
		byID: make(map[domain.CartID]domain.Cart),
	}
}

func (r *Repo) Create(ctx context.Context, c domain.Cart) error {
	_ = ctx
	if c.ID == "" {
		return cartrepo.ErrAlreadyExists // treat empty ID as invalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return cartrepo.ErrAlreadyExists
	}
	r.byID[c.ID] = domain.CloneCart(c)
	return nil
}

func (r *Repo) Update(ctx context.Context, c domain.Cart) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		return cartrepo.ErrNotFound
	}
	r.byID[c.ID] = domain.CloneCart(c)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.CartID) (domain.Cart, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Cart{}, cartrepo.ErrNotFound
	}
	return domain.CloneCart(c), nil
}

// Checkpoint captures the current contents. Calling the returned func restores them.
func (r *Repo) Checkpoint() func() {
	r.mu.RLock()
	saved := make(map[domain.CartID]domain.Cart, len(r.byID))
	for k, v := range r.byID {
		saved[k] = v
	}
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.byID = saved
		r.mu.Unlock()
	}
}
