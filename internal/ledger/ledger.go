package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/storage"
)

var (
	ErrNotFound        = errors.New("buyer not found")
	ErrAlreadyRecorded = errors.New("purchase already recorded")
	ErrInvalidPurchase = errors.New("invalid purchase")
	ErrPersistence     = errors.New("persistence failure")
)

// PersistenceError wraps a storage failure. Nothing was written when it is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Store is the persistence the ledger needs
type Store interface {
	Update(ctx context.Context, fn func(tx storage.Tx) error) error
	Stats(ctx context.Context) (*storage.Stats, error)
	Buyer(ctx context.Context, address string) (*storage.Buyer, error)
	Purchases(ctx context.Context, address string) ([]storage.Purchase, error)
	RecentPurchases(ctx context.Context, limit int) ([]storage.Purchase, error)
}

// BuyerInfo is a buyer aggregate together with its purchase history
type BuyerInfo struct {
	storage.Buyer
	Purchases []storage.Purchase `json:"purchases"`
}

// Receipt describes a committed purchase and the state it produced
type Receipt struct {
	Purchase storage.Purchase `json:"purchase"`
	Buyer    storage.Buyer    `json:"buyer"`
	Stats    storage.Stats    `json:"stats"`
	NewBuyer bool             `json:"newBuyer"`
}

// Ledger records purchases and keeps buyer and global aggregates consistent
type Ledger struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Ledger over store
func New(store Store, log *slog.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// RecordPurchase applies one purchase to the buyer record and the global stats atomically.
func (l *Ledger) RecordPurchase(ctx context.Context, walletAddress string, tonAmount, tokenAmount decimal.Decimal, txHash string) (*Receipt, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, fmt.Errorf("%w: empty wallet address", ErrInvalidPurchase)
	}
	if !tonAmount.IsPositive() || !tokenAmount.IsPositive() {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidPurchase)
	}

	timestamp := l.now()
	receipt := &Receipt{
		Purchase: storage.Purchase{
			ID:            uuid.NewString(),
			WalletAddress: walletAddress,
			TonAmount:     tonAmount,
			TokenAmount:   tokenAmount,
			TxHash:        txHash,
			CreatedAt:     timestamp,
		},
	}

	err := l.store.Update(ctx, func(tx storage.Tx) error {
		// stats first: on stores that lock rows this orders concurrent writers
		stats, err := tx.Stats(ctx)
		if err != nil {
			return &PersistenceError{Op: "load stats", Err: err}
		}

		if txHash != "" {
			seen, err := tx.HasTxHash(ctx, txHash)
			if err != nil {
				return &PersistenceError{Op: "check tx hash", Err: err}
			}
			if seen {
				return ErrAlreadyRecorded
			}
		}

		buyer, err := tx.Buyer(ctx, walletAddress)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			receipt.NewBuyer = true
			buyer = &storage.Buyer{
				WalletAddress:     walletAddress,
				TotalTonSpent:     tonAmount,
				TotalTokensBought: tokenAmount,
				PurchaseCount:     1,
				FirstPurchase:     timestamp,
				LastPurchase:      timestamp,
			}
			stats.UniqueBuyers++
		case err != nil:
			return &PersistenceError{Op: "load buyer", Err: err}
		default:
			buyer.TotalTonSpent = buyer.TotalTonSpent.Add(tonAmount)
			buyer.TotalTokensBought = buyer.TotalTokensBought.Add(tokenAmount)
			buyer.PurchaseCount++
			buyer.LastPurchase = timestamp
		}

		stats.TotalRaised = stats.TotalRaised.Add(tonAmount)
		stats.TotalTokensSold = stats.TotalTokensSold.Add(tokenAmount)
		stats.LastUpdated = timestamp

		if err := tx.InsertPurchase(ctx, &receipt.Purchase); err != nil {
			return &PersistenceError{Op: "insert purchase", Err: err}
		}
		if err := tx.PutBuyer(ctx, buyer); err != nil {
			return &PersistenceError{Op: "save buyer", Err: err}
		}
		if err := tx.PutStats(ctx, stats); err != nil {
			return &PersistenceError{Op: "save stats", Err: err}
		}

		receipt.Buyer = *buyer
		receipt.Stats = *stats
		return nil
	})

	if err != nil {
		var perr *PersistenceError
		if !errors.Is(err, ErrAlreadyRecorded) && !errors.As(err, &perr) {
			// begin/commit failures come back unwrapped from the store
			err = &PersistenceError{Op: "commit purchase", Err: err}
		}
		return nil, err
	}

	l.log.Info("purchase recorded",
		"wallet", walletAddress,
		"ton_amount", tonAmount.String(),
		"token_amount", tokenAmount.String(),
		"tx_hash", txHash,
		"new_buyer", receipt.NewBuyer,
	)

	return receipt, nil
}

// GetStats returns the global stats, zero-valued before the first purchase
func (l *Ledger) GetStats(ctx context.Context) (*storage.Stats, error) {
	st, err := l.store.Stats(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "load stats", Err: err}
	}
	return st, nil
}

// GetBuyerInfo returns a buyer's aggregate and chronological purchases
func (l *Ledger) GetBuyerInfo(ctx context.Context, walletAddress string) (*BuyerInfo, error) {
	buyer, err := l.store.Buyer(ctx, walletAddress)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load buyer", Err: err}
	}

	purchases, err := l.store.Purchases(ctx, walletAddress)
	if err != nil {
		return nil, &PersistenceError{Op: "load purchases", Err: err}
	}

	return &BuyerInfo{Buyer: *buyer, Purchases: purchases}, nil
}

// RecentPurchases returns the latest purchases across all buyers
func (l *Ledger) RecentPurchases(ctx context.Context, limit int) ([]storage.Purchase, error) {
	purchases, err := l.store.RecentPurchases(ctx, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "load recent purchases", Err: err}
	}
	return purchases, nil
}
