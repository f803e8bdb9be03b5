package tonutil

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
)

var ErrInvalidTxHash = errors.New("invalid transaction hash")

// ParseAddress parses any address form (raw 0:..., bounceable EQ..., non-bounceable UQ...)
// and returns it in raw form.
func ParseAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("empty address")
	}

	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", addr, err)
	}

	return acc.String(), nil
}

// NormalizeAddress converts any address format to raw (0:...).
// Unparseable input is returned unchanged.
func NormalizeAddress(addr string) string {
	raw, err := ParseAddress(addr)
	if err != nil {
		return addr
	}
	return raw
}

// RawToFriendly converts raw address (0:...) to friendly format (EQ.../kQ...)
func RawToFriendly(raw string, testnet bool) string {
	if raw == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(raw)
	if err != nil {
		return raw
	}

	return acc.ToHuman(true, testnet)
}

// ShortAddr returns a shortened address for display
func ShortAddr(addr string, n int) string {
	if addr == "" {
		return "unknown"
	}
	if len(addr) < n*2+3 {
		return addr
	}
	return addr[:n] + "..." + addr[len(addr)-n:]
}

// NanoToTON converts nanoTON to TON
func NanoToTON(nano int64) decimal.Decimal {
	return decimal.New(nano, -9)
}

// MessageHash returns the hex hash of the root cell of a base64 BOC,
// which is how a signed external message returned by TON Connect is identified.
func MessageHash(bocBase64 string) (string, error) {
	cells, err := boc.DeserializeBocBase64(strings.TrimSpace(bocBase64))
	if err != nil {
		return "", fmt.Errorf("deserialize boc: %w", err)
	}
	if len(cells) == 0 {
		return "", errors.New("empty boc")
	}

	hash, err := cells[0].Hash()
	if err != nil {
		return "", fmt.Errorf("hash cell: %w", err)
	}

	return hex.EncodeToString(hash), nil
}

// NormalizeTxHash lowercases a hex transaction hash and checks it is 32 bytes.
func NormalizeTxHash(txHash string) (string, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	b, err := hex.DecodeString(txHash)
	if err != nil || len(b) != 32 {
		return "", ErrInvalidTxHash
	}
	return txHash, nil
}
