package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/ton-presale/internal/config"
	"github.com/suspectuso/ton-presale/internal/events"
	"github.com/suspectuso/ton-presale/internal/telegram"
)

// Sender delivers a message to a Telegram chat
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error
}

// Notifier turns ledger events into admin chat messages
type Notifier struct {
	cfg    *config.Config
	sender Sender
	log    *slog.Logger
}

// New creates a new Notifier
func New(cfg *config.Config, sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		sender: sender,
		log:    log,
	}
}

// HandleEvent processes an event and sends notifications
func (n *Notifier) HandleEvent(ctx context.Context, ev events.Event) {
	var text string
	switch ev.Kind {
	case events.KindPurchaseRecorded:
		text = n.formatPurchaseMessage(ev)
	case events.KindRecordFailed:
		text = n.formatFailureMessage(ev)
	default:
		n.log.Warn("unknown event kind", "kind", ev.Kind)
		return
	}

	n.broadcast(ctx, text)
}

func (n *Notifier) broadcast(ctx context.Context, text string) {
	for _, chatID := range n.cfg.AdminChatIDs {
		if err := n.sender.SendNotification(ctx, chatID, text, nil); err != nil {
			n.log.Error("send admin notification", "chat_id", chatID, "error", err)
		}
	}
}

func (n *Notifier) formatPurchaseMessage(ev events.Event) string {
	symbol := html.EscapeString(n.cfg.TokenSymbol)

	title := "<b>💰 New purchase</b>"
	if ev.NewBuyer {
		title = "<b>🆕 New buyer</b>"
	}

	lines := []string{
		title,
		"",
		fmt.Sprintf("+%s TON ✅", telegram.FormatAmount(ev.TonAmount, 4)),
		fmt.Sprintf("%s %s", telegram.FormatAmount(ev.TokenAmount, 2), symbol),
		"",
		fmt.Sprintf("Buyer: %s", telegram.ExplorerLink(ev.WalletAddress, n.cfg.Testnet)),
	}

	if ev.TxHash != "" {
		lines = append(lines, fmt.Sprintf("Tx: <code>%s</code>", ev.TxHash))
	}

	if ev.Stats != nil {
		lines = append(lines, "", fmt.Sprintf("Total: <b>%s TON</b> from %d buyers (%s%% sold)",
			telegram.FormatAmount(ev.Stats.TotalRaised, 2),
			ev.Stats.UniqueBuyers,
			telegram.SoldPercent(ev.Stats.TotalTokensSold, n.cfg.TotalAllocation).String(),
		))
	}

	return strings.Join(lines, "\n")
}

func (n *Notifier) formatFailureMessage(ev events.Event) string {
	txHash := ev.TxHash
	if txHash == "" {
		txHash = "unknown"
	}

	lines := []string{
		"<b>⚠️ Purchase NOT recorded</b>",
		"",
		"The transfer was sent but the ledger write failed. Reconcile manually.",
		"",
		fmt.Sprintf("Buyer: %s", telegram.ExplorerLink(ev.WalletAddress, n.cfg.Testnet)),
		fmt.Sprintf("<code>%s</code>", ev.WalletAddress),
		fmt.Sprintf("Amount: <b>%s TON</b> (%s %s)",
			telegram.FormatAmount(ev.TonAmount, 9),
			telegram.FormatAmount(ev.TokenAmount, 2),
			html.EscapeString(n.cfg.TokenSymbol),
		),
		fmt.Sprintf("Tx: <code>%s</code>", txHash),
	}

	if ev.Error != "" {
		lines = append(lines, "", fmt.Sprintf("Error: <code>%s</code>", html.EscapeString(ev.Error)))
	}

	return strings.Join(lines, "\n")
}
