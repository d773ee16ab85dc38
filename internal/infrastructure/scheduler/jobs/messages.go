package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/modpoints/points-bot/internal/domain/ledger"
	"github.com/modpoints/points-bot/pkg/timeutil"
)

const reminderBody = "⏰ Время добавлять модули! ⚡\n" +
	"Используйте /modules или /add для записи выполненных заданий.\n\n" +
	"📈 Каждый балл приближает вас к цели!"

// ReminderText is the daily reminder.
func ReminderText() string {
	return "⏰ Напоминание!\n\n" + reminderBody
}

// TestReminderText is the reminder sent from the admin panel.
func TestReminderText() string {
	return "🧪 Тестовое напоминание!\n\n" + reminderBody
}

// Report holds the numbers of one monthly report.
type Report struct {
	Name       string
	Period     ledger.Period
	Points     float64
	Money      float64
	ActiveDays int
}

// DailyAverage is points per active day.
func (r Report) DailyAverage() float64 {
	if r.ActiveDays == 0 {
		return 0
	}
	return r.Points / float64(r.ActiveDays)
}

func monthTitle(p ledger.Period) string {
	return fmt.Sprintf("%s %d", timeutil.MonthNameRu(time.Month(p.Month)), p.Year)
}

func writeResults(b *strings.Builder, r Report) {
	b.WriteString("🎯 Результаты:\n")
	fmt.Fprintf(b, "💎 Общие баллы: %s\n", ledger.FormatPoints(r.Points))
	fmt.Fprintf(b, "💰 Денежный эквивалент: %s ₽\n", ledger.FormatPoints(r.Money))
	fmt.Fprintf(b, "📈 Активных дней: %d\n", r.ActiveDays)
	fmt.Fprintf(b, "📊 Среднее в день: %s\n\n", ledger.FormatPoints(r.DailyAverage()))
}

// ReportText is the monthly report for the previous month.
func ReportText(r Report) string {
	var b strings.Builder
	b.WriteString("📊 Месячный отчет\n\n")
	fmt.Fprintf(&b, "👤 %s\n", r.Name)
	fmt.Fprintf(&b, "📅 %s\n\n", monthTitle(r.Period))
	writeResults(&b, r)
	b.WriteString("Отличная работа! Продолжайте в том же духе! 🚀\n\n")
	b.WriteString("Новый месяц - новые возможности! 💪")
	return b.String()
}

// TestReportText is the report over the current month sent from the admin panel.
func TestReportText(r Report) string {
	var b strings.Builder
	b.WriteString("🧪 Тестовый месячный отчет\n\n")
	fmt.Fprintf(&b, "👤 %s\n", r.Name)
	fmt.Fprintf(&b, "📅 %s (текущий)\n\n", monthTitle(r.Period))
	writeResults(&b, r)
	b.WriteString("Это тестовый отчет на основе текущих данных! 🧪")
	return b.String()
}

// NoActivityTestReportText is sent instead of a test report for an empty month.
const NoActivityTestReportText = "🧪 Тестовый отчет: нет активности в текущем месяце для демонстрации отчета."
