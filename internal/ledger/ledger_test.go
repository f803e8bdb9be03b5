package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suspectuso/ton-presale/internal/storage"
)

const (
	alice = "0:5e327427e60706c725396298f1e0433cd39b7c44a3125fe4af19a8b2a191ba1c"
	bob   = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
)

var rate = decimal.NewFromInt(7500)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLedger(t *testing.T, store Store) *Ledger {
	t.Helper()
	l := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := time.UnixMilli(1_700_000_000_000).UTC()
	l.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return l
}

func record(t *testing.T, l *Ledger, addr, ton, txHash string) *Receipt {
	t.Helper()
	amount := dec(ton)
	r, err := l.RecordPurchase(context.Background(), addr, amount, amount.Mul(rate), txHash)
	require.NoError(t, err)
	return r
}

func TestGetStatsEmpty(t *testing.T) {
	l := newTestLedger(t, newTestStore(t))

	st, err := l.GetStats(context.Background())
	require.NoError(t, err)
	assert.True(t, st.TotalRaised.IsZero())
	assert.True(t, st.TotalTokensSold.IsZero())
	assert.Zero(t, st.UniqueBuyers)
}

func TestGetBuyerInfoNotFound(t *testing.T) {
	l := newTestLedger(t, newTestStore(t))

	_, err := l.GetBuyerInfo(context.Background(), alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFirstPurchase(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newTestStore(t))

	r := record(t, l, alice, "10", "hash-1")
	assert.True(t, r.NewBuyer)
	assert.Equal(t, "75000", r.Purchase.TokenAmount.String())
	assert.NotEmpty(t, r.Purchase.ID)

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalRaised.Equal(dec("10")))
	assert.True(t, st.TotalTokensSold.Equal(dec("75000")))
	assert.Equal(t, int64(1), st.UniqueBuyers)
	assert.Equal(t, r.Purchase.CreatedAt, st.LastUpdated)

	info, err := l.GetBuyerInfo(ctx, alice)
	require.NoError(t, err)
	require.Len(t, info.Purchases, 1)
	assert.Equal(t, r.Purchase.ID, info.Purchases[0].ID)
	assert.Equal(t, "hash-1", info.Purchases[0].TxHash)
	assert.True(t, info.TotalTonSpent.Equal(dec("10")))
	assert.True(t, info.TotalTokensBought.Equal(dec("75000")))
	assert.Equal(t, r.Purchase.CreatedAt, info.LastPurchase)
}

func TestRecordRepeatBuyer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newTestStore(t))

	first := record(t, l, alice, "10", "")
	st1, err := l.GetStats(ctx)
	require.NoError(t, err)

	second := record(t, l, alice, "5.5", "")
	assert.False(t, second.NewBuyer)

	st2, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, st1.UniqueBuyers, st2.UniqueBuyers)
	assert.True(t, st2.TotalRaised.Equal(dec("15.5")))
	assert.True(t, st2.TotalTokensSold.Equal(dec("116250")))

	info, err := l.GetBuyerInfo(ctx, alice)
	require.NoError(t, err)
	assert.True(t, info.TotalTonSpent.Equal(dec("15.5")))
	assert.True(t, info.TotalTokensBought.Equal(dec("116250")))
	assert.Equal(t, int64(2), info.PurchaseCount)
	assert.Equal(t, first.Purchase.CreatedAt, info.FirstPurchase)
	assert.Equal(t, second.Purchase.CreatedAt, info.LastPurchase)

	require.Len(t, info.Purchases, 2)
	assert.Equal(t, first.Purchase.ID, info.Purchases[0].ID)
	assert.Equal(t, second.Purchase.ID, info.Purchases[1].ID)

	sum := decimal.Zero
	for _, p := range info.Purchases {
		sum = sum.Add(p.TonAmount)
	}
	assert.True(t, sum.Equal(info.TotalTonSpent))
}

func TestRecordDistinctBuyers(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newTestStore(t))

	record(t, l, alice, "1", "")
	record(t, l, bob, "2", "")
	record(t, l, alice, "3", "")

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.UniqueBuyers)
	assert.True(t, st.TotalRaised.Equal(dec("6")))

	recent, err := l.RecentPurchases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, alice, recent[0].WalletAddress)
	assert.True(t, recent[0].TonAmount.Equal(dec("3")))
}

func TestRecordDuplicateTxHash(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newTestStore(t))

	record(t, l, alice, "10", "hash-1")

	_, err := l.RecordPurchase(ctx, alice, dec("10"), dec("75000"), "hash-1")
	assert.ErrorIs(t, err, ErrAlreadyRecorded)

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalRaised.Equal(dec("10")))

	info, err := l.GetBuyerInfo(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, info.Purchases, 1)
}

func TestRecordInvalid(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, newTestStore(t))

	tests := []struct {
		name   string
		addr   string
		ton    string
		tokens string
	}{
		{"empty address", "  ", "1", "7500"},
		{"zero ton", alice, "0", "0"},
		{"negative ton", alice, "-1", "-7500"},
		{"zero tokens", alice, "1", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.RecordPurchase(ctx, tt.addr, dec(tt.ton), dec(tt.tokens), "")
			assert.ErrorIs(t, err, ErrInvalidPurchase)
		})
	}

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.UniqueBuyers)
	assert.True(t, st.TotalRaised.IsZero())
}

// failingStore fails a chosen Tx step after the earlier writes went through.
type failingStore struct {
	*storage.Storage
	failOn string
}

type failingTx struct {
	storage.Tx
	failOn string
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Storage.Update(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, failOn: s.failOn})
	})
}

func (t *failingTx) PutBuyer(ctx context.Context, b *storage.Buyer) error {
	if t.failOn == "buyer" {
		return errInjected
	}
	return t.Tx.PutBuyer(ctx, b)
}

func (t *failingTx) PutStats(ctx context.Context, st *storage.Stats) error {
	if t.failOn == "stats" {
		return errInjected
	}
	return t.Tx.PutStats(ctx, st)
}

func TestRecordIsAtomic(t *testing.T) {
	for _, step := range []string{"buyer", "stats"} {
		t.Run(step, func(t *testing.T) {
			ctx := context.Background()
			base := newTestStore(t)

			record(t, newTestLedger(t, base), alice, "10", "")

			l := newTestLedger(t, &failingStore{Storage: base, failOn: step})
			_, err := l.RecordPurchase(ctx, alice, dec("5"), dec("37500"), "hash-2")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPersistence)
			assert.ErrorIs(t, err, errInjected)

			var perr *PersistenceError
			require.True(t, errors.As(err, &perr))
			assert.NotEmpty(t, perr.Op)

			st, err := l.GetStats(ctx)
			require.NoError(t, err)
			assert.True(t, st.TotalRaised.Equal(dec("10")))
			assert.Equal(t, int64(1), st.UniqueBuyers)

			info, err := l.GetBuyerInfo(ctx, alice)
			require.NoError(t, err)
			assert.True(t, info.TotalTonSpent.Equal(dec("10")))
			assert.Len(t, info.Purchases, 1)
		})
	}
}

func TestRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		addr := fmt.Sprintf("0:%064x", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := l.RecordPurchase(ctx, addr, dec("0.5"), dec("3750"), ""); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	st, err := l.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, st.TotalRaised.Equal(dec("20")), "total raised %s", st.TotalRaised)
	assert.True(t, st.TotalTokensSold.Equal(dec("150000")))
	assert.Equal(t, int64(workers), st.UniqueBuyers)

	info, err := l.GetBuyerInfo(ctx, fmt.Sprintf("0:%064x", 0))
	require.NoError(t, err)
	assert.Len(t, info.Purchases, perWorker)
	assert.True(t, info.TotalTonSpent.Equal(dec("2.5")))
}
