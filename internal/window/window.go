// Package window resolves time-window filters into concrete instant ranges.
package window

import (
	"fmt"
	"math"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
)

// Range is an inclusive [From, To] range of epoch milliseconds.
type Range struct {
	From int64
	To   int64
}

// All is the range covering every representable instant from the epoch on.
var All = Range{From: 0, To: math.MaxInt64}

// Resolve maps filter to the window containing now, computed on the calendar of loc.
// Calendar windows end on the last representable moment of their final day.
func Resolve(filter domain.Filter, now time.Time, loc *time.Location) Range {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	var start, next time.Time
	switch filter {
	case domain.CurrentYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		next = start.AddDate(1, 0, 0)
	case domain.CurrentMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		next = start.AddDate(0, 1, 0)
	case domain.CurrentWeek:
		start = StartOfWeek(now)
		next = start.AddDate(0, 0, 7)
	default:
		return All
	}

	return Range{
		From: start.UnixMilli(),
		To:   next.Add(-time.Nanosecond).UnixMilli(),
	}
}

// StartOfWeek returns midnight of the ISO-8601 week's Monday containing t, in t's location.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday = 0
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return r.ContainsMillis(t.UnixMilli())
}

// ContainsMillis reports whether ms falls inside the range.
func (r Range) ContainsMillis(ms int64) bool {
	return ms >= r.From && ms <= r.To
}

// Bounds returns the range as times in loc. The upper bound of All is clamped
// to the zero time to avoid overflowing time.Time.
func (r Range) Bounds(loc *time.Location) (from, to time.Time) {
	from = time.UnixMilli(r.From).In(loc)
	if r.To == math.MaxInt64 {
		return from, time.Time{}
	}
	return from, time.UnixMilli(r.To).In(loc)
}

// Format renders the range with both bounds in loc.
func (r Range) Format(loc *time.Location) string {
	if r == All {
		return "[all time]"
	}
	from, to := r.Bounds(loc)
	return fmt.Sprintf("[%s, %s]", from.Format(time.RFC3339), to.Format("2006-01-02T15:04:05.000Z07:00"))
}

// String renders the range in UTC. Use Format for the zone the range was
// resolved in.
func (r Range) String() string {
	return r.Format(time.UTC)
}
