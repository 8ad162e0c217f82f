package swaprepo

import (
	"context"
	"sync"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/swaprepo"
)

// Repo is an in-memory implementation of swaprepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu   sync.RWMutex
	byID map[domain.SwapID]domain.Swap
}

func NewRepo() *Repo {
	return &Repo{byID: make(map[domain.SwapID]domain.Swap)}
}

func (r *Repo) Create(ctx context.Context, s domain.Swap) error {
	_ = ctx
	if s.ID == "" {
		return swaprepo.ErrAlreadyExists
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return swaprepo.ErrAlreadyExists
	}
	r.byID[s.ID] = domain.CloneSwap(s)
	return nil
}

func (r *Repo) Update(ctx context.Context, s domain.Swap) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; !ok {
		return swaprepo.ErrNotFound
	}
	r.byID[s.ID] = domain.CloneSwap(s)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.SwapID) (domain.Swap, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.Swap{}, swaprepo.ErrNotFound
	}
	return domain.CloneSwap(s), nil
}

// Checkpoint captures the current contents. Calling the returned func restores them.
func (r *Repo) Checkpoint() func() {
	r.mu.RLock()
	saved := make(map[domain.SwapID]domain.Swap, len(r.byID))
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
