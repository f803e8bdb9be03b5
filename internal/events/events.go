package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/storage"
)

type Kind string

const (
	KindPurchaseRecorded Kind = "purchase_recorded"
	// KindRecordFailed means the buyer's transfer went out but the ledger write did not.
	KindRecordFailed Kind = "record_failed"
)

// Event is emitted after every attempt to record a purchase
type Event struct {
	Kind          Kind            `json:"kind"`
	Time          time.Time       `json:"time"`
	WalletAddress string          `json:"walletAddress"`
	TonAmount     decimal.Decimal `json:"tonAmount"`
	TokenAmount   decimal.Decimal `json:"tokenAmount"`
	TxHash        string          `json:"txHash,omitempty"`
	PurchaseID    string          `json:"purchaseId,omitempty"`
	NewBuyer      bool            `json:"newBuyer,omitempty"`
	Stats         *storage.Stats  `json:"stats,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Handler is a function that handles events
type Handler func(ctx context.Context, ev Event)

// Fanout calls every non-nil handler in order
func Fanout(handlers ...Handler) Handler {
	var active []Handler
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}

	return func(ctx context.Context, ev Event) {
		for _, h := range active {
			h(ctx, ev)
		}
	}
}
