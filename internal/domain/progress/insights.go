package progress

import (
	"fmt"

	"github.com/modpoints/points-bot/internal/domain/ledger"
)

// Input — данные для анализа за текущий месяц.
type Input struct {
	Current     float64
	Previous    float64
	Daily       ledger.DailyBreakdown
	DaysInMonth int
	CurrentDay  int
}

// Analysis — результат анализа прогресса.
type Analysis struct {
	Score        int
	DailyAverage float64
	Projected    float64
	ActiveDays   int
	ActivityRate float64

	// ChangePercent — изменение к прошлому месяцу в процентах.
	// nil, если в прошлом месяце баллов не было.
	ChangePercent *float64

	Insights []string
}

// HasData возвращает false, если анализировать пока нечего.
func HasData(current float64, activeDays int) bool {
	return current != 0 || activeDays != 0
}

// Analyze считает метрики и формирует советы. Результат детерминирован.
func Analyze(in Input) Analysis {
	a := Analysis{
		Score:        CalculateScore(in.Current, in.Previous, in.DaysInMonth, in.CurrentDay),
		DailyAverage: dailyAverage(in.Current, in.CurrentDay),
		ActiveDays:   in.Daily.ActiveDays(),
	}
	a.Projected = a.DailyAverage * float64(in.DaysInMonth)
	if in.CurrentDay > 0 {
		a.ActivityRate = float64(a.ActiveDays) / float64(in.CurrentDay) * 100
	}
	if in.Previous > 0 {
		change := (in.Current - in.Previous) / in.Previous * 100
		a.ChangePercent = &change
	}

	a.Insights = append(a.Insights, performanceInsight(a.Score))
	a.Insights = append(a.Insights, activityInsight(a.ActiveDays, in.CurrentDay, a.ActivityRate))
	if a.ChangePercent != nil {
		a.Insights = append(a.Insights, changeInsight(*a.ChangePercent))
	}
	a.Insights = append(a.Insights, fmt.Sprintf("🎯 Прогноз на месяц: %s баллов.", ledger.FormatPoints(a.Projected)))
	a.Insights = append(a.Insights, recommendation(a.DailyAverage))

	return a
}

// ──────────────────────────────────────────────────────────────────────────────
// Templates
// ──────────────────────────────────────────────────────────────────────────────

func performanceInsight(score int) string {
	switch {
	case score >= 8:
		return "🔥 Отличная работа! Ваш прогресс впечатляет!"
	case score >= 6:
		return "👍 Хорошие результаты! Продолжайте в том же духе."
	case score >= 4:
		return "📈 Есть потенциал для улучшения. Попробуйте быть более активными."
	default:
		return "💪 Время взяться за дело! Увеличьте активность."
	}
}

func activityInsight(activeDays, currentDay int, rate float64) string {
	switch {
	case rate >= 80:
		return fmt.Sprintf("📅 Отличная регулярность! Активны %d из %d дней (%.0f%%).", activeDays, currentDay, rate)
	case rate >= 50:
		return fmt.Sprintf("📅 Неплохая регулярность: %d из %d дней (%.0f%%). Можно чаще!", activeDays, currentDay, rate)
	default:
		return fmt.Sprintf("📅 Стоит быть активнее: только %d из %d дней (%.0f%%).", activeDays, currentDay, rate)
	}
}

func changeInsight(change float64) string {
	switch {
	case change > 20:
		return fmt.Sprintf("📊 Прогресс к прошлому месяцу: +%.0f%%! Впечатляющий рост!", change)
	case change > 0:
		return fmt.Sprintf("📊 Прогресс к прошлому месяцу: +%.0f%%. Движемся вперед!", change)
	case change > -20:
		return fmt.Sprintf("📊 Небольшое снижение: %.0f%%. Время вернуться к активности!", change)
	default:
		return fmt.Sprintf("📊 Значительное снижение: %.0f%%. Нужно срочно активизироваться!", change)
	}
}

func recommendation(dailyAverage float64) string {
	switch {
	case dailyAverage < 5:
		return "💡 Совет: попробуйте выполнять хотя бы один модуль в день."
	case dailyAverage < 10:
		return "💡 Совет: увеличьте сложность модулей или их количество."
	default:
		return "💡 Вы на правильном пути! Поддерживайте темп."
	}
}
