package config

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "UQBeMnQn5gcGxyU5Ypjx4EM805t8RKMSX-SvGaiyoZG6HOTV"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRESALE_WALLET", testWallet)

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "7500", cfg.TokensPerTON.String())
	assert.Equal(t, "0.2", cfg.MinPurchaseTON.String())
	assert.Equal(t, "1000", cfg.MaxPurchaseTON.String())
	assert.Equal(t, "10000000", cfg.TotalAllocation.String())
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), cfg.PresaleEnd)
	assert.Equal(t, 60*time.Second, cfg.TransferValidity)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.AdminChatIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRESALE_WALLET", testWallet)
	t.Setenv("TOKENS_PER_TON", "1234.5")
	t.Setenv("MIN_PURCHASE_TON", "1")
	t.Setenv("MAX_PURCHASE_TON", "50")
	t.Setenv("PRESALE_END", "2030-01-01T12:00:00Z")
	t.Setenv("TRANSFER_VALIDITY", "2m")
	t.Setenv("ADMIN_CHAT_IDS", "100, -200,bad")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_PORT", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1,junk")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "1234.5", cfg.TokensPerTON.String())
	assert.Equal(t, "1", cfg.MinPurchaseTON.String())
	assert.Equal(t, "50", cfg.MaxPurchaseTON.String())
	assert.Equal(t, 2030, cfg.PresaleEnd.Year())
	assert.Equal(t, 2*time.Minute, cfg.TransferValidity)
	assert.Equal(t, []int64{100, -200}, cfg.AdminChatIDs)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
	}, cfg.TrustedProxies)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing wallet", map[string]string{}},
		{"bad wallet", map[string]string{"PRESALE_WALLET": "nope"}},
		{"zero rate", map[string]string{"PRESALE_WALLET": testWallet, "TOKENS_PER_TON": "0"}},
		{"min above max", map[string]string{"PRESALE_WALLET": testWallet, "MIN_PURCHASE_TON": "5", "MAX_PURCHASE_TON": "1"}},
		{"postgres without url", map[string]string{"PRESALE_WALLET": testWallet, "DB_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"PRESALE_WALLET": testWallet, "DB_DRIVER": "mongo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRESALE_WALLET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Error(t, Load().Validate())
		})
	}
}
