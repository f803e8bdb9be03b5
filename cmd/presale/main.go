package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suspectuso/ton-presale/internal/api"
	"github.com/suspectuso/ton-presale/internal/config"
	"github.com/suspectuso/ton-presale/internal/events"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/metrics"
	"github.com/suspectuso/ton-presale/internal/notifier"
	"github.com/suspectuso/ton-presale/internal/storage"
	"github.com/suspectuso/ton-presale/internal/storage/postgres"
	"github.com/suspectuso/ton-presale/internal/telegram"
)

type store interface {
	ledger.Store
	io.Closer
}

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(log)

	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("init storage", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	log.Info("storage initialized", "driver", cfg.DBDriver)

	led := ledger.New(st, log)
	m := metrics.New()

	if stats, err := led.GetStats(ctx); err == nil {
		m.ObserveStats(stats)
	} else {
		log.Warn("load initial stats", "error", err)
	}

	handlers := []events.Handler{}

	// Initialize event publisher
	if cfg.RabbitMQURL != "" {
		pub, err := events.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue, log)
		if err != nil {
			log.Error("init event publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		handlers = append(handlers, pub.HandleEvent)
		log.Info("event publisher initialized", "queue", cfg.EventsQueue)
	}

	// Initialize telegram bot
	var bot *telegram.Bot
	if cfg.BotToken != "" {
		bot, err = telegram.New(cfg, led, log)
		if err != nil {
			log.Error("init telegram bot", "error", err)
			os.Exit(1)
		}
		log.Info("telegram bot initialized", "username", cfg.BotUsername)

		notify := notifier.New(cfg, bot, log)
		handlers = append(handlers, notify.HandleEvent)

		reporter := notifier.NewReporter(cfg, led, bot, log)
		go func() {
			if err := reporter.Start(ctx); err != nil {
				log.Error("stats reporter", "error", err)
			}
		}()
	} else {
		log.Info("telegram bot disabled: BOT_TOKEN not set")
	}

	// Start api server
	server := api.NewServer(cfg, led, m, events.Fanout(handlers...), log)
	go func() {
		if err := server.Start(ctx, cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Error("api server", "error", err)
			cancel()
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	if bot != nil {
		log.Info("starting bot polling...")
		bot.Start(ctx)
		return
	}

	<-ctx.Done()
}

func openStore(ctx context.Context, cfg *config.Config) (store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return storage.New(cfg.DBPath)
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
	}
}
