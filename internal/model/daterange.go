package model

import "time"

// DateRange names a preset window for the date filter.
type DateRange string

const (
	RangeAll       DateRange = "all"
	RangeToday     DateRange = "today"
	RangeYesterday DateRange = "yesterday"
	RangeThisWeek  DateRange = "this_week"
	RangeLastWeek  DateRange = "last_week"
	RangeThisMonth DateRange = "this_month"
	RangeLastMonth DateRange = "last_month"
	RangeThisYear  DateRange = "this_year"
	RangeLastYear  DateRange = "last_year"
	RangeCustom    DateRange = "custom"
)

// DateRanges is the picker order.
var DateRanges = []DateRange{
	RangeAll, RangeToday, RangeYesterday,
	RangeThisWeek, RangeLastWeek,
	RangeThisMonth, RangeLastMonth,
	RangeThisYear, RangeLastYear,
	RangeCustom,
}

var dateRangeLabels = map[DateRange]string{
	RangeAll:       "All time",
	RangeToday:     "Today",
	RangeYesterday: "Yesterday",
	RangeThisWeek:  "This week",
	RangeLastWeek:  "Last week",
	RangeThisMonth: "This month",
	RangeLastMonth: "Last month",
	RangeThisYear:  "This year",
	RangeLastYear:  "Last year",
	RangeCustom:    "Custom",
}

// Label returns the human-readable name of r.
func (r DateRange) Label() string {
	if l, ok := dateRangeLabels[r]; ok {
		return l
	}
	return string(r)
}

// Next returns the preset after r, skipping custom, which has no
// bounds of its own.
func (r DateRange) Next() DateRange {
	for i, candidate := range DateRanges {
		if candidate != r {
			continue
		}
		next := DateRanges[(i+1)%len(DateRanges)]
		if next == RangeCustom {
			return RangeAll
		}
		return next
	}
	return RangeAll
}

// Resolve returns the inclusive day bounds of r relative to now. Weeks
// start on Monday. RangeAll yields open bounds; RangeCustom starts and
// ends today so the user can adjust from there.
func (r DateRange) Resolve(now time.Time) (start, end *time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	span := func(from, to time.Time) (*time.Time, *time.Time) {
		return &from, &to
	}

	switch r {
	case RangeToday, RangeCustom:
		return span(today, today)
	case RangeYesterday:
		y := today.AddDate(0, 0, -1)
		return span(y, y)
	case RangeThisWeek:
		return span(today.AddDate(0, 0, -daysSinceMonday(today)), today)
	case RangeLastWeek:
		monday := today.AddDate(0, 0, -daysSinceMonday(today)-7)
		return span(monday, monday.AddDate(0, 0, 6))
	case RangeThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return span(first, first.AddDate(0, 1, -1))
	case RangeLastMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).AddDate(0, -1, 0)
		return span(first, first.AddDate(0, 1, -1))
	case RangeThisYear:
		return span(time.Date(today.Year(), 1, 1, 0, 0, 0, 0, today.Location()), today)
	case RangeLastYear:
		first := time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, today.Location())
		return span(first, time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, today.Location()))
	default:
		return nil, nil
	}
}

func daysSinceMonday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 6
	}
	return int(t.Weekday()) - 1
}
