package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// MainKeyboard returns the main menu keyboard. The buy button is omitted without a web app URL.
func MainKeyboard(webAppURL string) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	if webAppURL != "" {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "💎 Buy tokens", WebApp: &models.WebAppInfo{URL: webAppURL}},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "📊 Stats", CallbackData: "stats"},
		{Text: "👛 My purchases", CallbackData: "history"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BuyerKeyboard links to the wallet on the explorer
func BuyerKeyboard(friendly string, testnet bool) *models.InlineKeyboardMarkup {
	host := "tonviewer.com"
	if testnet {
		host = "testnet.tonviewer.com"
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔎 Open in explorer", URL: fmt.Sprintf("https://%s/%s", host, friendly)},
			},
			{
				{Text: "⬅️ Back", CallbackData: "back"},
			},
		},
	}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Back", CallbackData: "back"},
			},
		},
	}
}
