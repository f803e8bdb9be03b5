package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/suspectuso/ton-presale/internal/config"
	"github.com/suspectuso/ton-presale/internal/storage"
	"github.com/suspectuso/ton-presale/internal/telegram"
)

// StatsReader provides the current presale stats
type StatsReader interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Reporter posts a periodic stats summary to the admin chats
type Reporter struct {
	cfg    *config.Config
	stats  StatsReader
	sender Sender
	log    *slog.Logger
}

// NewReporter creates a new stats reporter
func NewReporter(cfg *config.Config, stats StatsReader, sender Sender, log *slog.Logger) *Reporter {
	return &Reporter{
		cfg:    cfg,
		stats:  stats,
		sender: sender,
		log:    log,
	}
}

// Start runs the report schedule until ctx is cancelled
func (r *Reporter) Start(ctx context.Context) error {
	if len(r.cfg.AdminChatIDs) == 0 {
		r.log.Info("stats reporter disabled: ADMIN_CHAT_IDS not set")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.cfg.ReportSchedule, func() { r.report(ctx) }); err != nil {
		return fmt.Errorf("schedule report %q: %w", r.cfg.ReportSchedule, err)
	}

	r.log.Info("stats reporter started", "schedule", r.cfg.ReportSchedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Reporter) report(ctx context.Context) {
	st, err := r.stats.GetStats(ctx)
	if err != nil {
		r.log.Error("load stats for report", "error", err)
		return
	}

	text := telegram.FormatStats(st, html.EscapeString(r.cfg.TokenSymbol), r.cfg.TotalAllocation)
	for _, chatID := range r.cfg.AdminChatIDs {
		if err := r.sender.SendNotification(ctx, chatID, text, nil); err != nil {
			r.log.Error("send stats report", "chat_id", chatID, "error", err)
		}
	}
}
