package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/storage/postgres"
)

// Runs against a disposable database: PRESALE_TEST_DATABASE_URL=postgres://... go test ./...
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	url := os.Getenv("PRESALE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PRESALE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := postgres.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Reset(ctx))
	return store
}

func TestLedgerOnPostgres(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	l := ledger.New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	addr := "0:5e327427e60706c725396298f1e0433cd39b7c44a3125fe4af19a8b2a191ba1c"

	r, err := l.RecordPurchase(ctx, addr, decimal.NewFromInt(10), decimal.NewFromInt(75000), "hash-1")
	require.NoError(t, err)
	assert.True(t, r.NewBuyer)

	_, err = l.RecordPurchase(ctx, addr, decimal.RequireFromString("0.25"), decimal.NewFromInt(1875), "")
	require.NoError(t, err)

	_, err = l.RecordPurchase(ctx, addr, decimal.NewFromInt(10), decimal.NewFromInt(75000), "hash-1")
	assert.ErrorIs(t, err, ledger.ErrAlreadyRecorded)

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalRaised.Equal(decimal.RequireFromString("10.25")))
	assert.Equal(t, int64(1), st.UniqueBuyers)

	info, err := l.GetBuyerInfo(ctx, addr)
	require.NoError(t, err)
	assert.Len(t, info.Purchases, 2)
	assert.True(t, info.TotalTokensBought.Equal(decimal.NewFromInt(76875)))

	_, err = l.GetBuyerInfo(ctx, "0:none")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
