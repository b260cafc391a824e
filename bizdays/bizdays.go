// Package bizdays implements the calendar arithmetic used by leave and
// request workflows on SharePoint lists: weekday counts, business-day
// offsets and month boundaries.
//
// Weekends are Saturday and Sunday. Public holidays are not considered.
package bizdays

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// USDateLayout is the en-US short date form, e.g. 3/5/2024.
const USDateLayout = "1/2/2006"

const day = 24 * time.Hour

// BusinessDaysBetween returns the number of weekdays from start to end, both
// inclusive. Only the calendar dates of start and end are considered.
func BusinessDaysBetween(start, end time.Time) int {
	startDate := civil(start)
	endDate := civil(end)

	days := float64(endDate.Sub(startDate) / day)
	beforeFirstSunday := (7 - int(startDate.Weekday())) % 7
	afterLastSunday := int(endDate.Weekday())

	days -= float64(beforeFirstSunday + afterLastSunday)
	days = days / 7 * 5

	if beforeFirstSunday > 0 {
		days += float64(beforeFirstSunday - 1)
	}
	if afterLastSunday == 6 {
		days += 5
	} else {
		days += float64(afterLastSunday)
	}
	return int(days)
}

// civil returns t's calendar date at midnight UTC so that day arithmetic is
// not affected by daylight saving transitions.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays moves t by days calendar days. Negative values move backwards.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// AddBusinessDays moves t by days weekdays, skipping Saturdays and Sundays.
// Negative values move backwards. Zero returns t unchanged, even on a weekend.
func AddBusinessDays(t time.Time, days int) time.Time {
	step := 1
	if days < 0 {
		step = -1
		days = -days
	}
	for days > 0 {
		t = t.AddDate(0, 0, step)
		if !IsWeekend(t) {
			days--
		}
	}
	return t
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AddHours moves t by a possibly fractional number of hours.
func AddHours(t time.Time, hours float64) time.Time {
	return t.Add(time.Duration(hours * float64(time.Hour)))
}

var sharePointLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSharePointTime parses the date/time forms found in list item
// properties. Values without a zone offset are interpreted in loc, or UTC
// when loc is nil.
func ParseSharePointTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range sharePointLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bizdays: unrecognized date/time %q", s)
}

// DaysDifference returns the whole days from end to start, rounded down.
// It is negative when start is before end.
func DaysDifference(start, end time.Time) int {
	return int(math.Floor(float64(start.Sub(end)) / float64(day)))
}

// FirstOfMonth returns midnight on the first day of month (1-12) in loc.
func FirstOfMonth(month time.Month, year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return now.With(time.Date(year, month, 1, 12, 0, 0, 0, loc)).BeginningOfMonth()
}

// LastOfMonth returns midnight on the last day of month (1-12) in loc.
func LastOfMonth(month time.Month, year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	last := now.With(time.Date(year, month, 1, 12, 0, 0, 0, loc)).EndOfMonth()
	return now.With(last).BeginningOfDay()
}

// FirstDateOfMonth formats the first day of month (1-12) as M/D/YYYY.
func FirstDateOfMonth(month, year int) string {
	return FirstOfMonth(time.Month(month), year, time.UTC).Format(USDateLayout)
}

// LastDateOfMonth formats the last day of month (1-12) as M/D/YYYY.
func LastDateOfMonth(month, year int) string {
	return LastOfMonth(time.Month(month), year, time.UTC).Format(USDateLayout)
}
