package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suspectuso/ton-presale/internal/ledger"
	"github.com/suspectuso/ton-presale/internal/storage"
	"github.com/suspectuso/ton-presale/internal/tonutil"
)

// recentInHistory is how many purchases the buyer view lists
const recentInHistory = 5

var hundred = decimal.NewFromInt(100)

// FormatAmount renders d with thousands separators, rounded to places
func FormatAmount(d decimal.Decimal, places int32) string {
	s := d.Round(places).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}

	if hasFrac {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}

// FormatDuration renders the time left in the sale
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "ended"
	}

	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return "less than a minute"
	}
}

// ExplorerLink returns an HTML link to the address on tonviewer
func ExplorerLink(addr string, testnet bool) string {
	friendly := tonutil.RawToFriendly(tonutil.NormalizeAddress(addr), testnet)
	host := "tonviewer.com"
	if testnet {
		host = "testnet.tonviewer.com"
	}
	return fmt.Sprintf("<a href='https://%s/%s'>%s</a>", host, friendly, tonutil.ShortAddr(friendly, 4))
}

// SoldPercent is the share of the allocation sold, zero when there is no allocation
func SoldPercent(sold, allocation decimal.Decimal) decimal.Decimal {
	if !allocation.IsPositive() {
		return decimal.Zero
	}
	return sold.Div(allocation).Mul(hundred).Round(2)
}

// FormatStats renders the global presale stats
func FormatStats(st *storage.Stats, symbol string, allocation decimal.Decimal) string {
	lines := []string{
		"📊 <b>Presale stats</b>",
		"",
		fmt.Sprintf("Raised: <b>%s TON</b>", FormatAmount(st.TotalRaised, 2)),
		fmt.Sprintf("Sold: <b>%s %s</b> of %s (%s%%)",
			FormatAmount(st.TotalTokensSold, 2), symbol,
			FormatAmount(allocation, 0),
			SoldPercent(st.TotalTokensSold, allocation).String(),
		),
		fmt.Sprintf("Buyers: <b>%d</b>", st.UniqueBuyers),
	}

	if st.UniqueBuyers > 0 {
		lines = append(lines, "", fmt.Sprintf("<i>Updated %s</i>", st.LastUpdated.UTC().Format("2006-01-02 15:04 UTC")))
	}

	return strings.Join(lines, "\n")
}

// FormatBuyer renders a buyer's totals and latest purchases
func FormatBuyer(info *ledger.BuyerInfo, symbol string, testnet bool) string {
	lines := []string{
		fmt.Sprintf("👛 <b>Wallet</b> %s", ExplorerLink(info.WalletAddress, testnet)),
		"",
		fmt.Sprintf("Spent: <b>%s TON</b>", FormatAmount(info.TotalTonSpent, 4)),
		fmt.Sprintf("Bought: <b>%s %s</b>", FormatAmount(info.TotalTokensBought, 2), symbol),
		fmt.Sprintf("Purchases: <b>%d</b>", info.PurchaseCount),
		fmt.Sprintf("First: %s", info.FirstPurchase.UTC().Format("2006-01-02 15:04")),
		fmt.Sprintf("Last: %s", info.LastPurchase.UTC().Format("2006-01-02 15:04")),
	}

	if len(info.Purchases) > 0 {
		lines = append(lines, "", "<b>Recent purchases</b>")
		for i := len(info.Purchases) - 1; i >= 0 && i >= len(info.Purchases)-recentInHistory; i-- {
			p := info.Purchases[i]
			lines = append(lines, fmt.Sprintf("• %s: %s TON → %s %s",
				p.CreatedAt.UTC().Format("Jan 02 15:04"),
				FormatAmount(p.TonAmount, 4),
				FormatAmount(p.TokenAmount, 2), symbol,
			))
		}
	}

	return strings.Join(lines, "\n")
}
