package idempotency

import (
	"testing"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

func TestContract_IdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T, opts idempotencyport.Options) (contracttest.IdemHarness, contracttest.CleanupFunc) {
		t.Helper()
		runner := memuow.New()
		return contracttest.IdemHarness{Store: NewStore(runner, opts), Runner: runner}, nil
	})
}
