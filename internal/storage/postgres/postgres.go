// Package postgres is the PostgreSQL ledger backend, for deployments where
// several service instances share one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/suspectuso/ton-presale/internal/storage"
)

const (
	statsSelect    = "total_raised::text, total_tokens_sold::text, unique_buyers, last_updated"
	buyerSelect    = "wallet_address, total_ton_spent::text, total_tokens_bought::text, purchase_count, first_purchase, last_purchase"
	purchaseSelect = "id, wallet_address, ton_amount::text, token_amount::text, tx_hash, created_at"
)

// Store implements the ledger storage surface over a pgx pool
type Store struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to databaseURL and creates the schema if needed
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS presale_stats (
			id TEXT PRIMARY KEY,
			total_raised NUMERIC NOT NULL,
			total_tokens_sold NUMERIC NOT NULL,
			unique_buyers BIGINT NOT NULL,
			last_updated BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presale_buyers (
			wallet_address TEXT PRIMARY KEY,
			total_ton_spent NUMERIC NOT NULL,
			total_tokens_bought NUMERIC NOT NULL,
			purchase_count BIGINT NOT NULL,
			first_purchase BIGINT NOT NULL,
			last_purchase BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presale_purchases (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			wallet_address TEXT NOT NULL,
			ton_amount NUMERIC NOT NULL,
			token_amount NUMERIC NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_wallet ON presale_purchases(wallet_address, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_tx_hash ON presale_purchases(tx_hash) WHERE tx_hash <> ''`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	return ensureStats(ctx, s.pool)
}

// Update runs fn in one transaction. Stats are read FOR UPDATE inside it,
// which serialises concurrent ledger updates on the stats row.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- Point reads ---

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	return storage.ScanStats(s.pool.QueryRow(ctx,
		`SELECT `+statsSelect+` FROM presale_stats WHERE id = $1`,
		storage.StatsID,
	))
}

func (s *Store) Buyer(ctx context.Context, address string) (*storage.Buyer, error) {
	return loadBuyer(ctx, s.pool, address)
}

func (s *Store) Purchases(ctx context.Context, address string) ([]storage.Purchase, error) {
	return s.queryPurchases(ctx,
		`SELECT `+purchaseSelect+` FROM presale_purchases
		 WHERE wallet_address = $1 ORDER BY created_at, seq`,
		address,
	)
}

func (s *Store) RecentPurchases(ctx context.Context, limit int) ([]storage.Purchase, error) {
	return s.queryPurchases(ctx,
		`SELECT `+purchaseSelect+` FROM presale_purchases
		 ORDER BY created_at DESC, seq DESC LIMIT $1`,
		limit,
	)
}

func (s *Store) queryPurchases(ctx context.Context, query string, args ...any) ([]storage.Purchase, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []storage.Purchase
	for rows.Next() {
		p, err := storage.ScanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}

	return purchases, rows.Err()
}

// --- Transaction ---

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ensureStats(ctx, t.tx); err != nil {
		return nil, err
	}
	return storage.ScanStats(t.tx.QueryRow(ctx,
		`SELECT `+statsSelect+` FROM presale_stats WHERE id = $1 FOR UPDATE`,
		storage.StatsID,
	))
}

func (t *pgTx) Buyer(ctx context.Context, address string) (*storage.Buyer, error) {
	return loadBuyer(ctx, t.tx, address)
}

func (t *pgTx) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM presale_purchases WHERE tx_hash = $1)",
		txHash,
	).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertPurchase(ctx context.Context, p *storage.Purchase) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO presale_purchases (id, wallet_address, ton_amount, token_amount, tx_hash, created_at)
		 VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)`,
		p.ID, p.WalletAddress, p.TonAmount.String(), p.TokenAmount.String(), p.TxHash, p.CreatedAt.UnixMilli(),
	)
	return err
}

func (t *pgTx) PutBuyer(ctx context.Context, b *storage.Buyer) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO presale_buyers (wallet_address, total_ton_spent, total_tokens_bought, purchase_count, first_purchase, last_purchase)
		 VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6)
		 ON CONFLICT (wallet_address) DO UPDATE SET
			total_ton_spent = EXCLUDED.total_ton_spent,
			total_tokens_bought = EXCLUDED.total_tokens_bought,
			purchase_count = EXCLUDED.purchase_count,
			last_purchase = EXCLUDED.last_purchase`,
		b.WalletAddress, b.TotalTonSpent.String(), b.TotalTokensBought.String(), b.PurchaseCount,
		b.FirstPurchase.UnixMilli(), b.LastPurchase.UnixMilli(),
	)
	return err
}

func (t *pgTx) PutStats(ctx context.Context, st *storage.Stats) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE presale_stats SET
			total_raised = $1::numeric, total_tokens_sold = $2::numeric, unique_buyers = $3, last_updated = $4
		 WHERE id = $5`,
		st.TotalRaised.String(), st.TotalTokensSold.String(), st.UniqueBuyers, st.LastUpdated.UnixMilli(), storage.StatsID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- Helpers ---

func ensureStats(ctx context.Context, q querier) error {
	_, err := q.Exec(ctx,
		`INSERT INTO presale_stats (id, total_raised, total_tokens_sold, unique_buyers, last_updated)
		 VALUES ($1, 0, 0, 0, $2)
		 ON CONFLICT (id) DO NOTHING`,
		storage.StatsID, time.Now().UnixMilli(),
	)
	return err
}

func loadBuyer(ctx context.Context, q querier, address string) (*storage.Buyer, error) {
	b, err := storage.ScanBuyer(q.QueryRow(ctx,
		`SELECT `+buyerSelect+` FROM presale_buyers WHERE wallet_address = $1`,
		address,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Reset empties all presale tables. Used by tests against a disposable database.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE presale_stats, presale_buyers, presale_purchases"); err != nil {
		return err
	}
	return ensureStats(ctx, s.pool)
}
