package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateRange_Fingerprint_IgnoresSubDayTime(t *testing.T) {
	morning := DateRange{
		Start: time.Date(2026, 2, 4, 8, 15, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 5, 8, 15, 0, 0, time.UTC),
	}
	evening := DateRange{
		Start: time.Date(2026, 2, 4, 22, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 5, 23, 59, 0, 0, time.UTC),
	}
	assert.Equal(t, morning.Fingerprint(), evening.Fingerprint())
	assert.Equal(t, "2026-02-04|2026-02-05", morning.Fingerprint())
}

func TestDateRange_Days(t *testing.T) {
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, SingleDay(day).Days())
	assert.Equal(t, 3, DateRange{Start: day, End: day.AddDate(0, 0, 2)}.Days())
}

func TestDateRange_Valid(t *testing.T) {
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	assert.True(t, SingleDay(day).Valid())
	assert.True(t, DateRange{Start: day.Add(20 * time.Hour), End: day.Add(2 * time.Hour)}.Valid())
	assert.False(t, DateRange{Start: day, End: day.AddDate(0, 0, -1)}.Valid())
}

func TestDateRange_String(t *testing.T) {
	day := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-02-04", SingleDay(day).String())
	assert.Equal(t, "2026-02-04 .. 2026-02-06", DateRange{Start: day, End: day.AddDate(0, 0, 2)}.String())
}
