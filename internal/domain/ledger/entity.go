// Package ledger содержит доменную модель учёта баллов: модули, записи
// о выполнении, месячные итоги и лидерборд.
package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/modpoints/points-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE
// ══════════════════════════════════════════════════════════════════════════════

// Module — задание с фиксированным количеством баллов.
// Модули создаются один раз при инициализации и ботом не изменяются.
type Module struct {
	ID     int64
	Name   string
	Points float64
}

// ModuleSeed — модуль из каталога по умолчанию (конфигурация).
type ModuleSeed struct {
	Name   string
	Points float64
}

// Validate проверяет запись каталога перед вставкой.
func (s ModuleSeed) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return shared.NewDomainError("ledger", "SeedModules", shared.ErrEmptyValue, "module name is empty")
	}
	if s.Points < 0 {
		return shared.NewDomainError("ledger", "SeedModules", shared.ErrValueOutOfRange, "module points must be non-negative")
	}
	return nil
}

// ModuleNameKey — ключ сравнения названий модулей без учёта регистра.
// strings.ToLower складывает и кириллицу, в отличие от NOCASE в SQLite.
func ModuleNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateSeeds проверяет каталог целиком: каждую запись и уникальность
// названий без учёта регистра.
func ValidateSeeds(seeds []ModuleSeed) error {
	seen := make(map[string]string, len(seeds))
	for _, s := range seeds {
		if err := s.Validate(); err != nil {
			return err
		}
		key := ModuleNameKey(s.Name)
		if prev, ok := seen[key]; ok {
			return shared.NewDomainError("ledger", "SeedModules", shared.ErrInvalidInput,
				"module names "+strconv.Quote(prev)+" and "+strconv.Quote(s.Name)+" differ only in case")
		}
		seen[key] = s.Name
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION EVENT
// ══════════════════════════════════════════════════════════════════════════════

// CompletionEvent — факт выполнения модуля пользователем.
// Date — календарная дата в часовом поясе бота, CreatedAt — порядок записи.
type CompletionEvent struct {
	ID         int64
	UserID     int64
	ModuleID   int64
	ModuleName string
	Points     float64
	Date       time.Time
	CreatedAt  time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry — строка лидерборда за период.
type LeaderboardEntry struct {
	UserID      int64
	TotalPoints float64
	Completions int
}

// MonthlySummary — снапшот итогов пользователя за месяц.
// Уникален по (UserID, Year, Month); повторная запись перезаписывает значение.
type MonthlySummary struct {
	UserID      int64
	Year        int
	Month       int
	TotalPoints float64
}

// DailyBreakdown — баллы по дням месяца. Отсутствующий день означает ноль.
type DailyBreakdown map[int]float64

// ActiveDays возвращает количество дней с активностью.
func (d DailyBreakdown) ActiveDays() int {
	return len(d)
}

// Total возвращает сумму баллов по всем дням.
func (d DailyBreakdown) Total() float64 {
	var total float64
	for _, p := range d {
		total += p
	}
	return total
}
