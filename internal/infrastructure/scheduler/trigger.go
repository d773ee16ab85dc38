package scheduler

import (
	"fmt"
	"time"
)

// Trigger decides whether a task fires at the given wall-clock time.
// Triggers match whole minutes, so a task polled once per minute fires once;
// the task cooldown prevents a second run within the same minute.
type Trigger interface {
	Due(now time.Time) bool
	String() string
}

// DailyAt fires every day at Hour:Minute.
type DailyAt struct {
	Hour   int
	Minute int
}

// Due reports whether now is Hour:Minute.
func (d DailyAt) Due(now time.Time) bool {
	return now.Hour() == d.Hour && now.Minute() == d.Minute
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute)
}

// MonthlyAt fires on day Day of every month at Hour:Minute.
type MonthlyAt struct {
	Day    int
	Hour   int
	Minute int
}

// Due reports whether now is Day Hour:Minute.
func (m MonthlyAt) Due(now time.Time) bool {
	return now.Day() == m.Day && now.Hour() == m.Hour && now.Minute() == m.Minute
}

func (m MonthlyAt) String() string {
	return fmt.Sprintf("monthly on day %d at %02d:%02d", m.Day, m.Hour, m.Minute)
}
