package query

import (
	"context"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/internal/domain/progress"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// InsightResult — результат /insight.
type InsightResult struct {
	Period ledger.Period

	// HasData — false, если в этом месяце ещё нет записей.
	HasData  bool
	Analysis progress.Analysis
}

// GetInsightHandler строит анализ прогресса за текущий месяц.
type GetInsightHandler struct {
	repo  ledger.Repository
	clock timeutil.Clock
}

// NewGetInsightHandler создаёт обработчик.
func NewGetInsightHandler(repo ledger.Repository, clock timeutil.Clock) *GetInsightHandler {
	return &GetInsightHandler{repo: repo, clock: clock}
}

// Handle считает анализ для пользователя.
func (h *GetInsightHandler) Handle(ctx context.Context, userID int64) (*InsightResult, error) {
	now := h.clock.Now()
	period := ledger.PeriodOf(now)

	current, err := h.repo.MonthlyTotal(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	daily, err := h.repo.DailyBreakdown(ctx, userID, period)
	if err != nil {
		return nil, err
	}

	result := &InsightResult{Period: period}
	if !progress.HasData(current, daily.ActiveDays()) {
		return result, nil
	}

	previous, err := h.repo.MonthlyTotal(ctx, userID, period.Previous())
	if err != nil {
		return nil, err
	}

	result.HasData = true
	result.Analysis = progress.Analyze(progress.Input{
		Current:     current,
		Previous:    previous,
		Daily:       daily,
		DaysInMonth: period.DaysIn(),
		CurrentDay:  now.Day(),
	})
	return result, nil
}
