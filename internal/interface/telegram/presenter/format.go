// Package presenter formats data for Telegram display.
// Presenters turn query results into message texts and inline keyboards.
package presenter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NUMBERS
// ══════════════════════════════════════════════════════════════════════════════

// Points formats points: integers without decimals, otherwise one decimal.
func Points(p float64) string {
	return ledger.FormatPoints(p)
}

// Money formats a ruble amount with the same rules as points.
func Money(m float64) string {
	return ledger.FormatPoints(m) + " ₽"
}

// SignedPoints prefixes positive values with "+".
func SignedPoints(p float64) string {
	if p > 0 {
		return "+" + Points(p)
	}
	return Points(p)
}

// TrendEmoji returns 📈, 📉 or ➡️ for the sign of change.
func TrendEmoji(change float64) string {
	switch {
	case change > 0:
		return "📈"
	case change < 0:
		return "📉"
	default:
		return "➡️"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DATES
// ══════════════════════════════════════════════════════════════════════════════

// MonthTitle returns "Май 2024".
func MonthTitle(p ledger.Period) string {
	return fmt.Sprintf("%s %d", timeutil.MonthNameRu(time.Month(p.Month)), p.Year)
}

// Window returns the allowed window text, "18:00 до 23:59".
func Window(startHour, endHour int) string {
	return fmt.Sprintf("%02d:00 до %02d:59", startHour, endHour)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKS
// ══════════════════════════════════════════════════════════════════════════════

// RankEmoji returns a medal for the top three places and "N." otherwise.
func RankEmoji(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return strconv.Itoa(rank) + "."
	}
}
