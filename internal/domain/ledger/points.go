package ledger

import (
	"math"
	"strconv"
)

// FormatPoints форматирует баллы: целые без дробной части, иначе один знак после запятой.
func FormatPoints(points float64) string {
	if points == math.Trunc(points) {
		return strconv.FormatFloat(points, 'f', 0, 64)
	}
	return strconv.FormatFloat(points, 'f', 1, 64)
}

// ToMoney переводит баллы в деньги по курсу.
func ToMoney(points, rate float64) float64 {
	return points * rate
}
