package ledger

import (
	"fmt"
	"time"
)

// Period — календарный месяц.
type Period struct {
	Year  int
	Month int
}

// PeriodOf возвращает месяц, содержащий t (в часовом поясе t).
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Start возвращает первый день месяца 00:00 UTC.
// Даты в журнале хранятся как календарные, поэтому часовой пояс здесь не важен.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End возвращает первый день следующего месяца (исключительная граница).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Previous возвращает предыдущий месяц.
func (p Period) Previous() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

// DaysIn возвращает количество дней в месяце.
func (p Period) DaysIn() int {
	return p.End().AddDate(0, 0, -1).Day()
}

// Contains проверяет, что календарная дата d попадает в месяц.
func (p Period) Contains(d time.Time) bool {
	return d.Year() == p.Year && int(d.Month()) == p.Month
}

// String возвращает период в формате YYYY-MM.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// DateOnly обрезает время, сохраняя календарную дату t в её часовом поясе.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
