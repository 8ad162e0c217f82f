package uow

import (
	"context"
	"sync"

	memcartrepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/cartrepo"
	memorderrepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/orderrepo"
	memswaprepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/swaprepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// Runner is an in-memory uow.Runner.
//
// Transactions are serialized and rolled back by restoring checkpoints of every repo, so
// all writes must go through Do. Reads outside Do may observe uncommitted writes.
// Do is not reentrant.
type Runner struct {
	mu     sync.Mutex
	carts  *memcartrepo.Repo
	orders *memorderrepo.Repo
	swaps  *memswaprepo.Repo
}

func NewRunner(carts *memcartrepo.Repo, orders *memorderrepo.Repo, swaps *memswaprepo.Repo) *Runner {
	return &Runner{carts: carts, orders: orders, swaps: swaps}
}

// New returns a runner over fresh, empty repos.
func New() *Runner {
	return NewRunner(memcartrepo.NewRepo(), memorderrepo.NewRepo(), memswaprepo.NewRepo())
}

func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	rollbacks := []func(){
		r.carts.Checkpoint(),
		r.orders.Checkpoint(),
		r.swaps.Checkpoint(),
	}
	if err := fn(ctx, uow.Tx{Carts: r.carts, Orders: r.orders, Swaps: r.swaps}); err != nil {
		for _, rollback := range rollbacks {
			rollback()
		}
		return err
	}
	return nil
}
