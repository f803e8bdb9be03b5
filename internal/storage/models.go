package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatsID is the key of the singleton stats record
const StatsID = "presale_stats"

// Stats is the global presale aggregate
type Stats struct {
	TotalRaised     decimal.Decimal `json:"totalRaised"`
	TotalTokensSold decimal.Decimal `json:"totalTokensSold"`
	UniqueBuyers    int64           `json:"uniqueBuyers"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// Buyer is the per-wallet aggregate. Purchases are kept in their own table.
type Buyer struct {
	WalletAddress     string          `json:"walletAddress"`
	TotalTonSpent     decimal.Decimal `json:"totalTonSpent"`
	TotalTokensBought decimal.Decimal `json:"totalTokensBought"`
	PurchaseCount     int64           `json:"purchaseCount"`
	FirstPurchase     time.Time       `json:"firstPurchase"`
	LastPurchase      time.Time       `json:"lastPurchase"`
}

// Purchase is a single recorded contribution, never updated after insert
type Purchase struct {
	ID            string          `json:"id"`
	WalletAddress string          `json:"walletAddress"`
	TonAmount     decimal.Decimal `json:"tonAmount"`
	TokenAmount   decimal.Decimal `json:"tokenAmount"`
	TxHash        string          `json:"txHash,omitempty"`
	CreatedAt     time.Time       `json:"timestamp"`
}

// Tx is the read-modify-write surface available inside Update.
type Tx interface {
	// Stats returns the stats record, creating a zero one if absent.
	Stats(ctx context.Context) (*Stats, error)
	// Buyer returns ErrNotFound for an unknown wallet.
	Buyer(ctx context.Context, address string) (*Buyer, error)
	HasTxHash(ctx context.Context, txHash string) (bool, error)
	InsertPurchase(ctx context.Context, p *Purchase) error
	PutBuyer(ctx context.Context, b *Buyer) error
	PutStats(ctx context.Context, st *Stats) error
}

// Scanner is implemented by *sql.Row, *sql.Rows and pgx rows.
type Scanner interface {
	Scan(dest ...any) error
}

func ScanStats(row Scanner) (*Stats, error) {
	var st Stats
	var lastUpdated int64
	if err := row.Scan(&st.TotalRaised, &st.TotalTokensSold, &st.UniqueBuyers, &lastUpdated); err != nil {
		return nil, err
	}
	st.LastUpdated = fromMillis(lastUpdated)
	return &st, nil
}

func ScanBuyer(row Scanner) (*Buyer, error) {
	var b Buyer
	var first, last int64
	err := row.Scan(&b.WalletAddress, &b.TotalTonSpent, &b.TotalTokensBought, &b.PurchaseCount, &first, &last)
	if err != nil {
		return nil, err
	}
	b.FirstPurchase = fromMillis(first)
	b.LastPurchase = fromMillis(last)
	return &b, nil
}

func ScanPurchase(row Scanner) (*Purchase, error) {
	var p Purchase
	var createdAt int64
	err := row.Scan(&p.ID, &p.WalletAddress, &p.TonAmount, &p.TokenAmount, &p.TxHash, &createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
