package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/events"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/presale"
	"github.com/suspectuso/ton-presale/internal/storage"
	"github.com/suspectuso/ton-presale/internal/tonutil"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type presaleResponse struct {
	TokenSymbol     string          `json:"tokenSymbol"`
	TokensPerTON    decimal.Decimal `json:"tokensPerTon"`
	MinPurchaseTON  decimal.Decimal `json:"minPurchaseTon"`
	MaxPurchaseTON  decimal.Decimal `json:"maxPurchaseTon"`
	TotalAllocation decimal.Decimal `json:"totalAllocation"`
	Wallet          string          `json:"wallet"`
	EndsAt          time.Time       `json:"endsAt"`
	SecondsLeft     int64           `json:"secondsLeft"`
	Ended           bool            `json:"ended"`
	Stats           *storage.Stats  `json:"stats"`
}

type transferRequest struct {
	WalletAddress string `json:"walletAddress"`
	TonAmount     string `json:"tonAmount"`
}

type transferResponse struct {
	Quote       *presale.Quote          `json:"quote"`
	Transaction presale.TransferRequest `json:"transaction"`
}

type purchaseRequest struct {
	WalletAddress string          `json:"walletAddress"`
	TonAmount     decimal.Decimal `json:"tonAmount"`
	TxHash        string          `json:"txHash"`
	Boc           string          `json:"boc"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

// rejectionReason maps a validation error to its metric label and error kind
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, presale.ErrTooSmall):
		return "too_small"
	case errors.Is(err, presale.ErrTooLarge):
		return "too_large"
	case errors.Is(err, presale.ErrTooPrecise):
		return "too_precise"
	default:
		return "not_a_number"
	}
}

func (s *Server) rejectAmount(w http.ResponseWriter, err error) {
	reason := rejectionReason(err)
	s.metrics.ValidationRejections.WithLabelValues(reason).Inc()
	writeError(w, http.StatusUnprocessableEntity, reason, err.Error())
}

func (s *Server) handlePresale(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.GetStats(r.Context())
	if err != nil {
		s.log.Error("load stats", "error", err)
		writeError(w, http.StatusServiceUnavailable, "persistence", "Presale data is temporarily unavailable")
		return
	}

	now := s.now()
	writeJSON(w, http.StatusOK, presaleResponse{
		TokenSymbol:     s.cfg.TokenSymbol,
		TokensPerTON:    s.terms.Rate,
		MinPurchaseTON:  s.terms.Min,
		MaxPurchaseTON:  s.terms.Max,
		TotalAllocation: s.cfg.TotalAllocation,
		Wallet:          s.receiver,
		EndsAt:          s.window.End,
		SecondsLeft:     int64(s.window.Remaining(now) / time.Second),
		Ended:           s.window.Ended(now),
		Stats:           st,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.terms.Quote(r.URL.Query().Get("amount"))
	if err != nil {
		s.rejectAmount(w, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if s.window.Ended(s.now()) {
		writeError(w, http.StatusGone, "presale_ended", "The presale has ended")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	q, err := s.terms.Quote(req.TonAmount)
	if err != nil {
		s.rejectAmount(w, err)
		return
	}

	tx := presale.BuildTransfer(q.TonAmount, s.receiver, s.now(), s.cfg.TransferValidity)
	if req.WalletAddress != "" {
		if _, err := tonutil.ParseAddress(req.WalletAddress); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid_address", "Invalid wallet address")
			return
		}
		tx.From = req.WalletAddress
	}

	writeJSON(w, http.StatusOK, transferResponse{Quote: q, Transaction: tx})
}

func (s *Server) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}

	wallet, err := tonutil.ParseAddress(req.WalletAddress)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_address", "Invalid wallet address")
		return
	}

	if err := s.terms.ValidateAmount(req.TonAmount); err != nil {
		s.rejectAmount(w, err)
		return
	}

	txHash := ""
	switch {
	case req.Boc != "":
		txHash, err = tonutil.MessageHash(req.Boc)
	case req.TxHash != "":
		txHash, err = tonutil.NormalizeTxHash(req.TxHash)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_tx_hash", "Invalid transaction reference")
		return
	}

	ctx := r.Context()
	tokens := s.terms.Convert(req.TonAmount)

	start := time.Now()
	receipt, err := s.ledger.RecordPurchase(ctx, wallet, req.TonAmount, tokens, txHash)
	s.metrics.RecordDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ledger.ErrAlreadyRecorded):
		s.metrics.DuplicatePurchases.Inc()
		writeError(w, http.StatusConflict, "duplicate", "This transaction has already been recorded")
		return

	case errors.Is(err, ledger.ErrInvalidPurchase):
		writeError(w, http.StatusUnprocessableEntity, "invalid_purchase", err.Error())
		return

	case err != nil:
		s.log.Error("record purchase failed after transfer",
			"wallet", wallet,
			"ton_amount", req.TonAmount.String(),
			"tx_hash", txHash,
			"error", err,
		)
		s.metrics.RecordFailures.Inc()
		s.emit(ctx, events.Event{
			Kind:          events.KindRecordFailed,
			Time:          s.now().UTC(),
			WalletAddress: wallet,
			TonAmount:     req.TonAmount,
			TokenAmount:   tokens,
			TxHash:        txHash,
			Error:         err.Error(),
		})
		writeError(w, http.StatusServiceUnavailable, "persistence",
			"Your transfer was sent but we could not record it. Please keep your transaction hash and contact support.")
		return
	}

	s.metrics.PurchasesRecorded.Inc()
	s.metrics.ObserveStats(&receipt.Stats)

	stats := receipt.Stats
	s.emit(ctx, events.Event{
		Kind:          events.KindPurchaseRecorded,
		Time:          receipt.Purchase.CreatedAt,
		WalletAddress: wallet,
		TonAmount:     receipt.Purchase.TonAmount,
		TokenAmount:   receipt.Purchase.TokenAmount,
		TxHash:        txHash,
		PurchaseID:    receipt.Purchase.ID,
		NewBuyer:      receipt.NewBuyer,
		Stats:         &stats,
	})

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.GetStats(r.Context())
	if err != nil {
		s.log.Error("load stats", "error", err)
		writeError(w, http.StatusServiceUnavailable, "persistence", "Stats are temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBuyer(w http.ResponseWriter, r *http.Request) {
	wallet, err := tonutil.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_address", "Invalid wallet address")
		return
	}

	info, err := s.ledger.GetBuyerInfo(r.Context(), wallet)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "No purchases found for this wallet")
		return
	}
	if err != nil {
		s.log.Error("load buyer", "wallet", wallet, "error", err)
		writeError(w, http.StatusServiceUnavailable, "persistence", "Buyer data is temporarily unavailable")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleRecentPurchases(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	purchases, err := s.ledger.RecentPurchases(r.Context(), limit)
	if err != nil {
		s.log.Error("load recent purchases", "error", err)
		writeError(w, http.StatusServiceUnavailable, "persistence", "Purchases are temporarily unavailable")
		return
	}
	if purchases == nil {
		purchases = []storage.Purchase{}
	}

	writeJSON(w, http.StatusOK, purchases)
}
