package domain

import (
	"fmt"
	"time"
)

const dayFormat = "2006-01-02"

// DateRange is an inclusive range of calendar days. Times below day
// granularity are ignored for identity purposes.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func SingleDay(day time.Time) DateRange {
	return DateRange{Start: day, End: day}
}

// Days returns the number of calendar days covered by the range, inclusive.
func (r DateRange) Days() int {
	start := truncateToDay(r.Start)
	end := truncateToDay(r.End)
	return int(end.Sub(start).Hours()/24) + 1
}

func (r DateRange) Valid() bool {
	return !truncateToDay(r.End).Before(truncateToDay(r.Start))
}

// Fingerprint is the normalized cache key for the range. Queries that differ
// only by requester or sub-day time map to the same fingerprint.
func (r DateRange) Fingerprint() string {
	return fmt.Sprintf("%s|%s", r.Start.Format(dayFormat), r.End.Format(dayFormat))
}

func (r DateRange) String() string {
	start := r.Start.Format(dayFormat)
	end := r.End.Format(dayFormat)
	if start == end {
		return start
	}
	return fmt.Sprintf("%s .. %s", start, end)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
