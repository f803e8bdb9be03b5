package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

const (
	statsColumns    = "total_raised, total_tokens_sold, unique_buyers, last_updated"
	buyerColumns    = "wallet_address, total_ton_spent, total_tokens_bought, purchase_count, first_purchase, last_purchase"
	purchaseColumns = "id, wallet_address, ton_amount, token_amount, tx_hash, created_at"
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new Storage instance and initializes the database.
// Transactions take the write lock on BEGIN so concurrent ledger updates
// queue on busy_timeout instead of failing at commit.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS presale_stats (
			id TEXT PRIMARY KEY,
			total_raised TEXT NOT NULL,
			total_tokens_sold TEXT NOT NULL,
			unique_buyers INTEGER NOT NULL,
			last_updated INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presale_buyers (
			wallet_address TEXT PRIMARY KEY,
			total_ton_spent TEXT NOT NULL,
			total_tokens_bought TEXT NOT NULL,
			purchase_count INTEGER NOT NULL,
			first_purchase INTEGER NOT NULL,
			last_purchase INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS presale_purchases (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			wallet_address TEXT NOT NULL,
			ton_amount TEXT NOT NULL,
			token_amount TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_wallet ON presale_purchases(wallet_address, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_purchases_tx_hash ON presale_purchases(tx_hash) WHERE tx_hash <> ''`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	// the singleton row exists from here on, so point reads never write
	return ensureStats(context.Background(), s.db)
}

// Update runs fn inside a single transaction. Any error from fn rolls back everything fn wrote.
func (s *Storage) Update(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := fn(&sqliteTx{q: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// --- Point reads ---

// Stats returns the stats record. The zero record is created with the schema.
func (s *Storage) Stats(ctx context.Context) (*Stats, error) {
	return loadStats(ctx, s.db)
}

// Buyer returns the aggregate for a wallet
func (s *Storage) Buyer(ctx context.Context, address string) (*Buyer, error) {
	return loadBuyer(ctx, s.db, address)
}

// Purchases returns a wallet's purchases, oldest first
func (s *Storage) Purchases(ctx context.Context, address string) ([]Purchase, error) {
	return s.queryPurchases(ctx,
		`SELECT `+purchaseColumns+` FROM presale_purchases
		 WHERE wallet_address = ? ORDER BY created_at, seq`,
		address,
	)
}

// RecentPurchases returns the latest purchases across all wallets, newest first
func (s *Storage) RecentPurchases(ctx context.Context, limit int) ([]Purchase, error) {
	return s.queryPurchases(ctx,
		`SELECT `+purchaseColumns+` FROM presale_purchases
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		limit,
	)
}

func (s *Storage) queryPurchases(ctx context.Context, query string, args ...any) ([]Purchase, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		p, err := ScanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}

	return purchases, rows.Err()
}

// --- Transaction ---

type sqliteTx struct {
	q querier
}

func (t *sqliteTx) Stats(ctx context.Context) (*Stats, error) {
	// inside the write lock; recreates the row if it was removed
	if err := ensureStats(ctx, t.q); err != nil {
		return nil, err
	}
	return loadStats(ctx, t.q)
}

func (t *sqliteTx) Buyer(ctx context.Context, address string) (*Buyer, error) {
	return loadBuyer(ctx, t.q, address)
}

func (t *sqliteTx) HasTxHash(ctx context.Context, txHash string) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx,
		"SELECT 1 FROM presale_purchases WHERE tx_hash = ? LIMIT 1",
		txHash,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqliteTx) InsertPurchase(ctx context.Context, p *Purchase) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO presale_purchases (`+purchaseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.WalletAddress, p.TonAmount, p.TokenAmount, p.TxHash, p.CreatedAt.UnixMilli(),
	)
	return err
}

func (t *sqliteTx) PutBuyer(ctx context.Context, b *Buyer) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO presale_buyers (`+buyerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(wallet_address) DO UPDATE SET
			total_ton_spent = excluded.total_ton_spent,
			total_tokens_bought = excluded.total_tokens_bought,
			purchase_count = excluded.purchase_count,
			last_purchase = excluded.last_purchase`,
		b.WalletAddress, b.TotalTonSpent, b.TotalTokensBought, b.PurchaseCount,
		b.FirstPurchase.UnixMilli(), b.LastPurchase.UnixMilli(),
	)
	return err
}

func (t *sqliteTx) PutStats(ctx context.Context, st *Stats) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE presale_stats SET
			total_raised = ?, total_tokens_sold = ?, unique_buyers = ?, last_updated = ?
		 WHERE id = ?`,
		st.TotalRaised, st.TotalTokensSold, st.UniqueBuyers, st.LastUpdated.UnixMilli(), StatsID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func ensureStats(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO presale_stats (id, `+statsColumns+`)
		 VALUES (?, '0', '0', 0, ?)`,
		StatsID, time.Now().UnixMilli(),
	)
	return err
}

func loadStats(ctx context.Context, q querier) (*Stats, error) {
	return ScanStats(q.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM presale_stats WHERE id = ?`,
		StatsID,
	))
}

func loadBuyer(ctx context.Context, q querier, address string) (*Buyer, error) {
	b, err := ScanBuyer(q.QueryRowContext(ctx,
		`SELECT `+buyerColumns+` FROM presale_buyers WHERE wallet_address = ?`,
		address,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
