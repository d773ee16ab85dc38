package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriod_Bounds(t *testing.T) {
	p := Period{Year: 2024, Month: 2}

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), p.End())
	assert.Equal(t, 29, p.DaysIn())
	assert.Equal(t, "2024-02", p.String())
}

func TestPeriod_PreviousWrapsYear(t *testing.T) {
	assert.Equal(t, Period{Year: 2023, Month: 12}, Period{Year: 2024, Month: 1}.Previous())
	assert.Equal(t, Period{Year: 2024, Month: 4}, Period{Year: 2024, Month: 5}.Previous())
}

func TestPeriod_Contains(t *testing.T) {
	p := Period{Year: 2024, Month: 5}

	assert.True(t, p.Contains(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)))
	assert.False(t, p.Contains(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDateOnly_KeepsLocalCalendarDay(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	// 23:30 UTC 31 мая = 02:30 МСК 1 июня
	local := time.Date(2024, 5, 31, 23, 30, 0, 0, time.UTC).In(msk)

	d := DateOnly(local)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestDailyBreakdown_Aggregates(t *testing.T) {
	d := DailyBreakdown{1: 14.5, 3: 29, 10: 8}

	assert.Equal(t, 3, d.ActiveDays())
	assert.InDelta(t, 51.5, d.Total(), 1e-9)
}
