package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/tonutil"
)

type Config struct {
	// Presale
	PresaleWallet    string
	TokenSymbol      string
	TokensPerTON     decimal.Decimal
	MinPurchaseTON   decimal.Decimal
	MaxPurchaseTON   decimal.Decimal
	TotalAllocation  decimal.Decimal
	PresaleEnd       time.Time
	TransferValidity time.Duration
	Testnet          bool

	// HTTP
	HTTPPort       int
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies may set X-Forwarded-For; everyone else is keyed by socket address
	TrustedProxies []netip.Prefix

	// Database
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Telegram
	BotToken       string
	BotUsername    string
	AdminChatIDs   []int64
	WebAppURL      string
	ReportSchedule string

	// Events
	RabbitMQURL string
	EventsQueue string

	LogLevel slog.Level
}

func Load() *Config {
	cfg := &Config{
		// Presale
		PresaleWallet:    getEnv("PRESALE_WALLET", ""),
		TokenSymbol:      getEnv("TOKEN_SYMBOL", "TGOLD"),
		TokensPerTON:     getEnvDecimal("TOKENS_PER_TON", decimal.NewFromInt(7500)),
		MinPurchaseTON:   getEnvDecimal("MIN_PURCHASE_TON", decimal.RequireFromString("0.2")),
		MaxPurchaseTON:   getEnvDecimal("MAX_PURCHASE_TON", decimal.NewFromInt(1000)),
		TotalAllocation:  getEnvDecimal("TOTAL_ALLOCATION", decimal.NewFromInt(10_000_000)),
		PresaleEnd:       getEnvTime("PRESALE_END", time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)),
		TransferValidity: getEnvDuration("TRANSFER_VALIDITY", 60*time.Second),
		Testnet:          getEnvBool("TESTNET", false),

		// HTTP
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		// Database
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", "./presale.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Telegram
		BotToken:       getEnv("BOT_TOKEN", ""),
		BotUsername:    getEnv("BOT_USERNAME", "ton_presale_bot"),
		WebAppURL:      getEnv("WEBAPP_URL", ""),
		ReportSchedule: getEnv("REPORT_SCHEDULE", "@every 6h"),

		// Events
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		EventsQueue: getEnv("EVENTS_QUEUE", "presale_events"),

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	// Parse trusted proxies, single IPs or CIDRs
	for _, p := range strings.Split(getEnv("TRUSTED_PROXIES", ""), ",") {
		if prefix, ok := parsePrefix(strings.TrimSpace(p)); ok {
			cfg.TrustedProxies = append(cfg.TrustedProxies, prefix)
		}
	}

	// Parse admin chat IDs
	for _, idStr := range strings.Split(getEnv("ADMIN_CHAT_IDS", ""), ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.AdminChatIDs = append(cfg.AdminChatIDs, id)
		}
	}

	return cfg
}

// Validate reports the first setting that makes the service unusable.
func (c *Config) Validate() error {
	if c.PresaleWallet == "" {
		return errors.New("PRESALE_WALLET is required")
	}
	if _, err := tonutil.ParseAddress(c.PresaleWallet); err != nil {
		return fmt.Errorf("PRESALE_WALLET: %w", err)
	}
	if !c.TokensPerTON.IsPositive() {
		return errors.New("TOKENS_PER_TON must be positive")
	}
	if c.MinPurchaseTON.IsNegative() {
		return errors.New("MIN_PURCHASE_TON must not be negative")
	}
	if c.MinPurchaseTON.GreaterThan(c.MaxPurchaseTON) {
		return errors.New("MIN_PURCHASE_TON is greater than MAX_PURCHASE_TON")
	}
	if c.TransferValidity <= 0 {
		return errors.New("TRANSFER_VALIDITY must be positive")
	}
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvTime(key string, defaultVal time.Time) time.Time {
	if val := os.Getenv(key); val != "" {
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t
		}
	}
	return defaultVal
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parsePrefix(s string) (netip.Prefix, bool) {
	if s == "" {
		return netip.Prefix{}, false
	}
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix.Masked(), true
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), true
	}
	return netip.Prefix{}, false
}
