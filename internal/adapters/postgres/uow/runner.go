package uow

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres"
	pgcartrepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/cartrepo"
	pgorderrepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/orderrepo"
	pgswaprepo "github.com/Overland-East-Bay/storefront-api/internal/adapters/postgres/swaprepo"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// Bind returns repos that run their statements on db.
func Bind(db postgres.DBTX) uow.Tx {
	return uow.Tx{
		Carts:  pgcartrepo.NewRepo(db),
		Orders: pgorderrepo.NewRepo(db),
		Swaps:  pgswaprepo.NewRepo(db),
	}
}

// Runner is a uow.Runner backed by Postgres transactions.
type Runner struct {
	pool *pgxpool.Pool
}

func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, tx uow.Tx) error) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Bind(tx))
	})
}
