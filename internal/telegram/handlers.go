package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/ton-presale/internal/config"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/presale"
	"github.com/suspectuso/ton-presale/internal/storage"
	"github.com/suspectuso/ton-presale/internal/tonutil"
)

var addrRegex = regexp.MustCompile(`(0:[0-9A-Za-z:_-]{20,}|[UEk0]Q[0-9A-Za-z:_-]{20,})`)

// Reader is the read side of the ledger the bot shows to users
type Reader interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
	GetBuyerInfo(ctx context.Context, walletAddress string) (*ledger.BuyerInfo, error)
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot    *bot.Bot
	cfg    *config.Config
	ledger Reader
	window presale.Window
	states *StateManager
	log    *slog.Logger
	now    func() time.Time
}

// New creates a new telegram bot
func New(cfg *config.Config, reader Reader, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:    cfg,
		ledger: reader,
		window: presale.Window{End: cfg.PresaleEnd},
		states: NewStateManager(10 * time.Minute),
		log:    log,
		now:    time.Now,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact, b.statsHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/buyer", bot.MatchTypePrefix, b.buyerHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	b.states.Clear(update.Message.From.ID)
	b.sendMessage(ctx, update.Message.Chat.ID, b.welcomeText(ctx, update.Message.From), MainKeyboard(b.cfg.WebAppURL))
}

func (b *Bot) statsHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.statsText(ctx), MainKeyboard(b.cfg.WebAppURL))
}

func (b *Bot) buyerHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	msg := update.Message
	addr := extractAddress(strings.TrimPrefix(msg.Text, "/buyer"))
	if addr == "" {
		b.states.Set(msg.From.ID, StateWaitBuyerAddress)
		b.sendMessage(ctx, msg.Chat.ID, "🔹 Send the TON wallet address you bought with:", BackKeyboard())
		return
	}

	b.showBuyer(ctx, msg.Chat.ID, addr)
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" || update.Message.From == nil {
		return
	}

	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(userID)
	if state == nil {
		return
	}

	switch state.State {
	case StateWaitBuyerAddress:
		b.handleWaitAddress(ctx, update.Message, text)
	}
}

func (b *Bot) handleWaitAddress(ctx context.Context, msg *models.Message, text string) {
	addr := extractAddress(text)
	if addr == "" {
		b.sendMessage(ctx, msg.Chat.ID, "❌ That does not look like a TON address. Try again.", BackKeyboard())
		return
	}

	b.states.Clear(msg.From.ID)
	b.showBuyer(ctx, msg.Chat.ID, addr)
}

func (b *Bot) showBuyer(ctx context.Context, chatID int64, addr string) {
	raw, err := tonutil.ParseAddress(addr)
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ That does not look like a TON address. Try again.", BackKeyboard())
		return
	}

	info, err := b.ledger.GetBuyerInfo(ctx, raw)
	if errors.Is(err, ledger.ErrNotFound) {
		b.sendMessage(ctx, chatID, "🤷 No purchases found for this wallet.", MainKeyboard(b.cfg.WebAppURL))
		return
	}
	if err != nil {
		b.log.Error("load buyer", "wallet", raw, "error", err)
		b.sendMessage(ctx, chatID, "❌ Could not load purchases. Try again later.", MainKeyboard(b.cfg.WebAppURL))
		return
	}

	friendly := tonutil.RawToFriendly(raw, b.cfg.Testnet)
	b.sendMessage(ctx, chatID, FormatBuyer(info, html.EscapeString(b.cfg.TokenSymbol), b.cfg.Testnet), BuyerKeyboard(friendly, b.cfg.Testnet))
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch data {
	case "back":
		b.states.Clear(cb.From.ID)
		b.editMessage(ctx, cb.Message, b.welcomeText(ctx, &cb.From), MainKeyboard(b.cfg.WebAppURL))
	case "stats":
		b.editMessage(ctx, cb.Message, b.statsText(ctx), BackKeyboard())
	case "history":
		b.states.Set(cb.From.ID, StateWaitBuyerAddress)
		b.editMessage(ctx, cb.Message, "🔹 Send the TON wallet address you bought with:", BackKeyboard())
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

// --- Helpers ---

func (b *Bot) welcomeText(ctx context.Context, user *models.User) string {
	userName := ""
	if user != nil {
		userName = user.FirstName
		if userName == "" {
			userName = user.Username
		}
	}
	if userName == "" {
		userName = "friend"
	}

	symbol := html.EscapeString(b.cfg.TokenSymbol)
	lines := []string{
		fmt.Sprintf("Hi %s, welcome to the <b>%s</b> presale! 🚀", html.EscapeString(userName), symbol),
		"",
		fmt.Sprintf("Rate: <b>1 TON = %s %s</b>", FormatAmount(b.cfg.TokensPerTON, 2), symbol),
		fmt.Sprintf("Limits: %s to %s TON per purchase", b.cfg.MinPurchaseTON.String(), b.cfg.MaxPurchaseTON.String()),
	}

	remaining := b.window.Remaining(b.now())
	if remaining > 0 {
		lines = append(lines, fmt.Sprintf("Ends in: <b>%s</b>", FormatDuration(remaining)))
	} else {
		lines = append(lines, "The presale has <b>ended</b>.")
	}

	if st, err := b.ledger.GetStats(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("Raised so far: <b>%s TON</b> from %d buyers", FormatAmount(st.TotalRaised, 2), st.UniqueBuyers))
	} else {
		b.log.Error("load stats", "error", err)
	}

	lines = append(lines, "", "Choose an action 👇")
	return strings.Join(lines, "\n")
}

func (b *Bot) statsText(ctx context.Context) string {
	st, err := b.ledger.GetStats(ctx)
	if err != nil {
		b.log.Error("load stats", "error", err)
		return "❌ Stats are temporarily unavailable."
	}
	return FormatStats(st, html.EscapeString(b.cfg.TokenSymbol), b.cfg.TotalAllocation)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a notification message to a chat
func (b *Bot) SendNotification(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}

func extractAddress(text string) string {
	matches := addrRegex.FindStringSubmatch(text)
	if len(matches) > 0 {
		return matches[0]
	}
	return ""
}
