package query

import (
	"context"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN QUERIES
// Данные для панели администратора.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// AdminUsersPageSize — сколько пользователей показывать в списке.
	AdminUsersPageSize = 20

	// SystemStatsLimit — размер выборки лидерборда для статистики системы.
	SystemStatsLimit = 100
)

// UserPoints — пользователь и его баллы за текущий месяц.
type UserPoints struct {
	UserID int64
	Points float64
}

// UserList — первые пользователи и общее количество.
type UserList struct {
	Period ledger.Period
	Total  int
	Users  []UserPoints
}

// Hidden возвращает количество пользователей, не попавших в список.
func (l UserList) Hidden() int {
	return l.Total - len(l.Users)
}

// SystemStats — агрегированная статистика за текущий месяц.
type SystemStats struct {
	Period       ledger.Period
	TotalUsers   int
	ActiveUsers  int
	ModuleCount  int
	TotalPoints  float64
	TotalMoney   float64
	AveragePoint float64
}

// AdminQueries обслуживает панель администратора.
type AdminQueries struct {
	repo  ledger.Repository
	clock timeutil.Clock
	rate  float64
}

// NewAdminQueries создаёт обработчик.
func NewAdminQueries(repo ledger.Repository, clock timeutil.Clock, rate float64) *AdminQueries {
	return &AdminQueries{repo: repo, clock: clock, rate: rate}
}

// ListUsers возвращает первых AdminUsersPageSize активных пользователей с баллами.
func (q *AdminQueries) ListUsers(ctx context.Context) (*UserList, error) {
	period := ledger.PeriodOf(q.clock.Now())

	ids, err := q.repo.DistinctActiveUsers(ctx)
	if err != nil {
		return nil, err
	}

	list := &UserList{Period: period, Total: len(ids)}
	if len(ids) > AdminUsersPageSize {
		ids = ids[:AdminUsersPageSize]
	}
	for _, id := range ids {
		points, err := q.repo.MonthlyTotal(ctx, id, period)
		if err != nil {
			return nil, err
		}
		list.Users = append(list.Users, UserPoints{UserID: id, Points: points})
	}
	return list, nil
}

// SystemStats считает статистику системы за текущий месяц.
func (q *AdminQueries) SystemStats(ctx context.Context) (*SystemStats, error) {
	period := ledger.PeriodOf(q.clock.Now())

	users, err := q.repo.DistinctActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	top, err := q.repo.Leaderboard(ctx, period, SystemStatsLimit)
	if err != nil {
		return nil, err
	}
	modules, err := q.repo.ListModules(ctx)
	if err != nil {
		return nil, err
	}

	stats := &SystemStats{
		Period:      period,
		TotalUsers:  len(users),
		ActiveUsers: len(top),
		ModuleCount: len(modules),
	}
	for _, e := range top {
		stats.TotalPoints += e.TotalPoints
	}
	stats.TotalMoney = ledger.ToMoney(stats.TotalPoints, q.rate)
	if stats.ActiveUsers > 0 {
		stats.AveragePoint = stats.TotalPoints / float64(stats.ActiveUsers)
	}
	return stats, nil
}

// ListModules возвращает каталог модулей.
func (q *AdminQueries) ListModules(ctx context.Context) ([]ledger.Module, error) {
	return q.repo.ListModules(ctx)
}
