package idempotency

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Overland-East-Bay/storefront-api/internal/adapters/contracttest"
	memclock "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/clock"
	memuow "github.com/Overland-East-Bay/storefront-api/internal/adapters/memory/uow"
	idempotencyport "github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/uow"
)

func TestContract_SQLiteIdempotencyStore(t *testing.T) {
	contracttest.RunIdempotencyStore(t, func(t *testing.T, opts idempotencyport.Options) (contracttest.IdemHarness, contracttest.CleanupFunc) {
		t.Helper()
		runner := memuow.New()
		s, err := Open(filepath.Join(t.TempDir(), "idem.db"), runner, opts)
		require.NoError(t, err)
		return contracttest.IdemHarness{Store: s, Runner: runner}, func() { _ = s.Close() }
	})
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idem.db")
	ctx := context.Background()
	clk := memclock.NewManualClock(time.Date(2024, 5, 1, 9, 30, 0, 123456789, time.UTC))
	opts := idempotencyport.Options{Clock: clk}

	s1, err := Open(path, memuow.New(), opts)
	require.NoError(t, err)
	rec, err := s1.InitializeRequest(ctx, idempotencyport.Request{
		Key:    "k-1",
		Method: "POST",
		Path:   "/store/carts/c1/complete",
		Params: json.RawMessage(`{"id":"c1"}`),
	})
	require.NoError(t, err)
	_, err = s1.WorkStage(ctx, rec, func(context.Context, uow.Tx) (idempotencyport.Outcome, error) {
		return idempotencyport.Done(409, json.RawMessage(`{"code":"conflict"}`)), nil
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path, memuow.New(), opts)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.Equal(t, 409, got.ResponseCode)
	assert.JSONEq(t, `{"code":"conflict"}`, string(got.ResponseBody))
	assert.Nil(t, got.LockedAt)
	assert.True(t, got.CreatedAt.Equal(clk.Now().Truncate(time.Microsecond)))
}
