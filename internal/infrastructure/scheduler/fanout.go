package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modpoints/points-bot/pkg/logger"
)

// FanoutStats counts the outcome of a delivery loop.
type FanoutStats struct {
	Total   int
	Sent    int
	Skipped int
	Errors  int
}

// ErrRecipientUnreachable marks a delivery to a chat that can no longer be
// written to, such as a user who blocked the bot. Fanout counts it as skipped.
var ErrRecipientUnreachable = errors.New("recipient unreachable")

// Delivery handles one recipient. It returns false without error when the
// recipient was skipped.
type Delivery func(ctx context.Context, userID int64) (sent bool, err error)

// Fanout calls deliver for each recipient in order. A failed delivery is
// counted and logged; the loop moves on to the next recipient. Unreachable
// recipients count as skipped. delay is
// observed after every attempted delivery and is the only point where ctx
// cancellation stops the loop.
func Fanout(ctx context.Context, recipients []int64, delay time.Duration, log *slog.Logger, deliver Delivery) (FanoutStats, error) {
	stats := FanoutStats{Total: len(recipients)}

	for i, userID := range recipients {
		sent, err := deliver(ctx, userID)
		switch {
		case errors.Is(err, ErrRecipientUnreachable):
			stats.Skipped++
			log.InfoContext(ctx, "recipient unreachable, skipped", logger.UserID(userID), logger.Err(err))
		case err != nil:
			stats.Errors++
			log.ErrorContext(ctx, "delivery failed", logger.UserID(userID), logger.Err(err))
		case sent:
			stats.Sent++
		default:
			stats.Skipped++
			continue
		}

		if delay <= 0 || i == len(recipients)-1 {
			continue
		}
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(delay):
		}
	}
	return stats, nil
}
