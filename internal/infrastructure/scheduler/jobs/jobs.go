// Package jobs contains the scheduled jobs of the bot.
package jobs

import (
	"context"
	"fmt"

	"github.com/modpoints/points-bot/internal/infrastructure/external/telegram"
	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
)

// Sender delivers plain text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// NameResolver returns a display name for a user. It never fails; callers
// get a fallback name when the lookup is impossible.
type NameResolver interface {
	DisplayName(ctx context.Context, userID int64) string
}

// Job names used for registration and RunNow.
const (
	DailyReminderName = "daily_reminder"
	MonthlyReportName = "monthly_report"
)

// deliveryError marks blocked and missing chats as unreachable so the
// fan-out skips them instead of counting a failure.
func deliveryError(err error) error {
	if telegram.IsUserBlocked(err) || telegram.IsChatNotFound(err) {
		return fmt.Errorf("%w: %w", scheduler.ErrRecipientUnreachable, err)
	}
	return err
}
