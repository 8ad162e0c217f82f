package idempotency

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestContract_RedisIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T, opts idempotencyport.Options) (contracttest.IdemHarness, contracttest.CleanupFunc) {
		t.Helper()
		client, _ := newClient(t)
		runner := memuow.New()
		return contracttest.IdemHarness{Store: NewStore(client, runner, opts), Runner: runner}, nil
	})
}

func TestStore_StoresRecordAsJSON(t *testing.T) {
	ctx := context.Background()
	client, mr := newClient(t)
	s := NewStore(client, memuow.New(), idempotencyport.Options{})

	if _, err := s.InitializeRequest(ctx, idempotencyport.Request{Key: "k-1", Method: "POST", Path: "/p"}); err != nil {
		t.Fatalf("InitializeRequest() err=%v", err)
	}
	raw, err := mr.Get("idem:k-1")
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if raw == "" || raw[0] != '{' {
		t.Fatalf("expected JSON record, got %q", raw)
	}
}
