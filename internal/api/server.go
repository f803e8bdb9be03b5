package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/config"
	"github.com/suspectuso/ton-presale/internal/events"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/metrics"
	"github.com/suspectuso/ton-presale/internal/presale"
	"github.com/suspectuso/ton-presale/internal/storage"
)

// Ledger is the part of *ledger.Ledger the API uses
type Ledger interface {
	RecordPurchase(ctx context.Context, walletAddress string, tonAmount, tokenAmount decimal.Decimal, txHash string) (*ledger.Receipt, error)
	GetStats(ctx context.Context) (*storage.Stats, error)
	GetBuyerInfo(ctx context.Context, walletAddress string) (*ledger.BuyerInfo, error)
	RecentPurchases(ctx context.Context, limit int) ([]storage.Purchase, error)
}

// Server serves the presale HTTP API
type Server struct {
	cfg      *config.Config
	terms    presale.Terms
	window   presale.Window
	receiver string
	ledger   Ledger
	metrics  *metrics.Metrics
	handler  events.Handler
	limiter  *rateLimiter
	log      *slog.Logger
	now      func() time.Time

	server *http.Server
}

// NewServer creates a new API server. handler may be nil.
func NewServer(cfg *config.Config, l Ledger, m *metrics.Metrics, handler events.Handler, log *slog.Logger) *Server {
	return &Server{
		cfg: cfg,
		terms: presale.Terms{
			Rate:   cfg.TokensPerTON,
			Min:    cfg.MinPurchaseTON,
			Max:    cfg.MaxPurchaseTON,
			Symbol: cfg.TokenSymbol,
		},
		window:   presale.Window{End: cfg.PresaleEnd},
		receiver: strings.TrimSpace(cfg.PresaleWallet),
		ledger:   l,
		metrics:  m,
		handler:  handler,
		limiter:  newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustedProxies),
		log:      log,
		now:      time.Now,
	}
}

// Routes returns the HTTP handler with all routes mounted
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)

		r.Get("/presale", s.handlePresale)
		r.Get("/quote", s.handleQuote)
		r.Post("/transfers", s.handleTransfer)
		r.Post("/purchases", s.handleRecordPurchase)
		r.Get("/purchases/recent", s.handleRecentPurchases)
		r.Get("/stats", s.handleStats)
		r.Get("/buyers/{address}", s.handleBuyer)
	})

	return r
}

// Start starts the API server and blocks until it stops
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting api server", "port", port)

	go s.limiter.cleanupLoop(ctx, time.Minute, 10*time.Minute)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// emit hands an event to the handler without tying it to the request lifetime
func (s *Server) emit(ctx context.Context, ev events.Event) {
	if s.handler == nil {
		return
	}
	go s.handler(context.WithoutCancel(ctx), ev)
}
