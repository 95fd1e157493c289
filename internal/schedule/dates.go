package schedule

import (
	"time"
)

// DateLayout is the only accepted wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date. Out-of-range days such as
// 2025-02-30 are rejected.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders t in DateLayout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Interval is an inclusive range of calendar days.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseInterval parses both bounds; it does not check their order.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps reports whether the two inclusive intervals share at least one day.
func (iv Interval) Overlaps(o Interval) bool {
	return !iv.Start.After(o.End) && !iv.End.Before(o.Start)
}

// Days is the number of calendar days covered, counting both bounds.
func (iv Interval) Days() int {
	if iv.End.Before(iv.Start) {
		return 0
	}
	return int(iv.End.Sub(iv.Start).Hours()/24) + 1
}
