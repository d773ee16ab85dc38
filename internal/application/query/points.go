// Package query contains read operations (CQRS - Queries).
// Queries never modify the ledger.
package query

import (
	"context"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET POINTS QUERY
// Баллы пользователя за текущий месяц и сравнение с прошлым.
// ══════════════════════════════════════════════════════════════════════════════

// PointsResult — баллы за текущий и прошлый месяц.
type PointsResult struct {
	Period         ledger.Period
	Points         float64
	Money          float64
	PreviousPoints float64

	// Change — разница с прошлым месяцем (может быть отрицательной).
	Change float64
}

// GetPointsHandler обрабатывает /points.
type GetPointsHandler struct {
	repo  ledger.Repository
	clock timeutil.Clock
	rate  float64
}

// NewGetPointsHandler создаёт обработчик.
func NewGetPointsHandler(repo ledger.Repository, clock timeutil.Clock, rate float64) *GetPointsHandler {
	return &GetPointsHandler{repo: repo, clock: clock, rate: rate}
}

// Handle возвращает баллы пользователя.
func (h *GetPointsHandler) Handle(ctx context.Context, userID int64) (*PointsResult, error) {
	period := ledger.PeriodOf(h.clock.Now())

	current, err := h.repo.MonthlyTotal(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	previous, err := h.repo.MonthlyTotal(ctx, userID, period.Previous())
	if err != nil {
		return nil, err
	}

	return &PointsResult{
		Period:         period,
		Points:         current,
		Money:          ledger.ToMoney(current, h.rate),
		PreviousPoints: previous,
		Change:         current - previous,
	}, nil
}
