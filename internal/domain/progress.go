package domain

import (
	"fmt"
	"strings"
)

// IssueProgress is the derived completion summary over a set of issues.
// Values are recomputed on every upstream change and never persisted.
type IssueProgress struct {
	Total     int     // Issues counted in the window
	Completed int     // Issues in the DONE state, never more than Total
	Percent   float64 // Completed*100/Total, 0 when Total is 0
}

// NewIssueProgress builds a summary from raw counts. Negative totals are
// clamped to zero and completed is clamped to [0, total].
func NewIssueProgress(total, completed int) IssueProgress {
	if total < 0 {
		total = 0
	}
	completed = max(0, min(completed, total))

	p := IssueProgress{Total: total, Completed: completed}
	if total > 0 {
		p.Percent = float64(completed) * 100.0 / float64(total)
	}
	return p
}

// String renders the summary as "completed/total (pct%)".
func (p IssueProgress) String() string {
	return fmt.Sprintf("%d/%d (%.1f%%)", p.Completed, p.Total, p.Percent)
}

// Filter selects the time window issues are counted in.
type Filter int

// Filter values. The cyclic order used by Next is Year, Month, Week.
const (
	AllTime Filter = iota
	CurrentYear
	CurrentMonth
	CurrentWeek
)

// Next advances the filter cyclically. AllTime is a fixed point.
func (f Filter) Next() Filter {
	switch f {
	case CurrentYear:
		return CurrentMonth
	case CurrentMonth:
		return CurrentWeek
	case CurrentWeek:
		return CurrentYear
	default:
		return AllTime
	}
}

func (f Filter) String() string {
	switch f {
	case CurrentYear:
		return "year"
	case CurrentMonth:
		return "month"
	case CurrentWeek:
		return "week"
	default:
		return "all"
	}
}

// Label returns a human readable name for the filter.
func (f Filter) Label() string {
	switch f {
	case CurrentYear:
		return "This year"
	case CurrentMonth:
		return "This month"
	case CurrentWeek:
		return "This week"
	default:
		return "All time"
	}
}

// ParseFilter maps a name ("all", "year", "month", "week") to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all_time", "all-time":
		return AllTime, nil
	case "year", "current_year":
		return CurrentYear, nil
	case "month", "current_month":
		return CurrentMonth, nil
	case "week", "current_week":
		return CurrentWeek, nil
	}
	return AllTime, fmt.Errorf("unknown filter %q (want all, year, month or week)", s)
}
