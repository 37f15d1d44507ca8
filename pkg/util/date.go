package util

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used by every series.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SubMonths goes back n calendar months, clamping to the last day of the
// target month (Mar 31 minus one month is Feb 29 in a leap year).
func SubMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// RangeFromSelection maps a preset (7d, 1m, 3m, 6m, 1y, all) to start and end
// dates ending today. Unknown presets behave as "all", which starts at earliest.
func RangeFromSelection(sel string, now, earliest time.Time) (string, string) {
	end := Day(now)
	var start time.Time
	switch sel {
	case "7d":
		start = end.AddDate(0, 0, -7)
	case "1m":
		start = SubMonths(end, 1)
	case "3m":
		start = SubMonths(end, 3)
	case "6m":
		start = SubMonths(end, 6)
	case "1y":
		start = SubMonths(end, 12)
	default:
		start = Day(earliest)
	}
	return FormatDate(start), FormatDate(end)
}

// RangeOptions holds the dashboard defaults used to resolve a requested range.
type RangeOptions struct {
	DefaultStart time.Time
	Earliest     time.Time
	MaxDays      int
}

// ResolveRange turns request parameters into a validated [from, to] pair.
// A preset wins over explicit dates. Missing start defaults to
// opts.DefaultStart and missing end to today.
func ResolveRange(start, end, sel string, now time.Time, opts RangeOptions) (string, string, error) {
	if sel != "" {
		from, to := RangeFromSelection(sel, now, opts.Earliest)
		return from, to, nil
	}

	from := Day(opts.DefaultStart)
	if start != "" {
		t, err := ParseDate(start)
		if err != nil {
			return "", "", err
		}
		from = t
	}
	to := Day(now)
	if end != "" {
		t, err := ParseDate(end)
		if err != nil {
			return "", "", err
		}
		to = t
	}

	if from.After(to) {
		return "", "", fmt.Errorf("start %s is after end %s", FormatDate(from), FormatDate(to))
	}
	if opts.MaxDays > 0 {
		if days := int(to.Sub(from).Hours() / 24); days > opts.MaxDays {
			return "", "", fmt.Errorf("range of %d days exceeds the maximum of %d", days, opts.MaxDays)
		}
	}
	return FormatDate(from), FormatDate(to), nil
}
