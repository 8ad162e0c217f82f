package idempotency

import (
	"context"

	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

// RunDetached runs fn in a transaction opened by runner, for stores whose records do not
// live in the same database as the domain data.
//
// held is checked after fn succeeds and before the transaction commits; when it fails the
// stage's writes are rolled back. The caller persists the returned outcome afterwards, so
// a crash between the two commits re-runs the stage on retry.
func RunDetached(ctx context.Context, runner uow.Runner, fn StageFunc, held func(ctx context.Context) error) (Outcome, error) {
	var out Outcome
	err := runner.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		o, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		if err := held(ctx); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}
