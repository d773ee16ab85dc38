// Package progress оценивает месячный прогресс пользователя по шкале 1..10
// и формирует текстовый анализ для команды /insight.
package progress

// ══════════════════════════════════════════════════════════════════════════════
// SCORE
// ══════════════════════════════════════════════════════════════════════════════

const (
	MinScore = 1
	MaxScore = 10
)

// CalculateScore возвращает оценку прогресса от 1 до 10.
//
// Без прошлого месяца оценивается прогноз на месяц по среднему в день,
// иначе отношение текущего месяца к прошлому. Активность даёт +1, её отсутствие -1.
func CalculateScore(current, previous float64, daysInMonth, currentDay int) int {
	var base int

	if previous == 0 {
		projected := dailyAverage(current, currentDay) * float64(daysInMonth)
		switch {
		case projected >= 300:
			base = 10
		case projected >= 200:
			base = 8
		case projected >= 100:
			base = 6
		case projected >= 50:
			base = 4
		default:
			base = 2
		}
	} else {
		ratio := current / previous
		switch {
		case ratio >= 1.5:
			base = 10
		case ratio >= 1.2:
			base = 8
		case ratio >= 1.0:
			base = 6
		case ratio >= 0.8:
			base = 4
		default:
			base = 2
		}
	}

	if current > 0 {
		base++
	} else {
		base--
	}

	return clamp(base, MinScore, MaxScore)
}

func dailyAverage(current float64, currentDay int) float64 {
	if currentDay <= 0 {
		return 0
	}
	return current / float64(currentDay)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
