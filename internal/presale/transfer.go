package presale

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest is the payload a TON Connect wallet expects in sendTransaction.
type TransferRequest struct {
	ValidUntil int64             `json:"validUntil"`
	From       string            `json:"from,omitempty"`
	Messages   []TransferMessage `json:"messages"`
}

type TransferMessage struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // nanoTON
}

// BuildTransfer returns a single-message transfer of tonAmount to receiver that
// the wallet must broadcast within validity.
func BuildTransfer(tonAmount decimal.Decimal, receiver string, now time.Time, validity time.Duration) TransferRequest {
	return TransferRequest{
		ValidUntil: now.Add(validity).Unix(),
		Messages: []TransferMessage{
			{
				Address: receiver,
				Amount:  ToNano(tonAmount).String(),
			},
		},
	}
}
