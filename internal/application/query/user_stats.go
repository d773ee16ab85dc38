package query

import (
	"context"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Подробная статистика пользователя: дневная разбивка и сравнение месяцев.
// Используется в /graph и /admin_user.
// ══════════════════════════════════════════════════════════════════════════════

// UserStats — статистика пользователя за текущий месяц.
type UserStats struct {
	UserID int64

	Period     ledger.Period
	Points     float64
	Money      float64
	Daily      ledger.DailyBreakdown
	ActiveDays int

	PreviousPeriod ledger.Period
	PreviousPoints float64

	// ChangePercent — nil, если в прошлом месяце баллов не было.
	ChangePercent *float64
}

// GetUserStatsHandler собирает статистику пользователя.
type GetUserStatsHandler struct {
	repo  ledger.Repository
	clock timeutil.Clock
	rate  float64
}

// NewGetUserStatsHandler создаёт обработчик.
func NewGetUserStatsHandler(repo ledger.Repository, clock timeutil.Clock, rate float64) *GetUserStatsHandler {
	return &GetUserStatsHandler{repo: repo, clock: clock, rate: rate}
}

// Handle возвращает статистику за текущий месяц.
func (h *GetUserStatsHandler) Handle(ctx context.Context, userID int64) (*UserStats, error) {
	return h.ForPeriod(ctx, userID, ledger.PeriodOf(h.clock.Now()))
}

// ForPeriod возвращает статистику за указанный месяц.
func (h *GetUserStatsHandler) ForPeriod(ctx context.Context, userID int64, period ledger.Period) (*UserStats, error) {
	current, err := h.repo.MonthlyTotal(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	daily, err := h.repo.DailyBreakdown(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	prev := period.Previous()
	previous, err := h.repo.MonthlyTotal(ctx, userID, prev)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		UserID:         userID,
		Period:         period,
		Points:         current,
		Money:          ledger.ToMoney(current, h.rate),
		Daily:          daily,
		ActiveDays:     daily.ActiveDays(),
		PreviousPeriod: prev,
		PreviousPoints: previous,
	}
	if previous > 0 {
		change := (current - previous) / previous * 100
		stats.ChangePercent = &change
	}
	return stats, nil
}
