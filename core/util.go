package core

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Day returns midnight of t's calendar day, in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a.In(loc)).Equal(Day(b.In(loc)))
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, CleanString(s), loc)
	if err != nil {
		return time.Time{}, NewValidationError(errors.Errorf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return t, nil
}

// MonthRange returns the first and last instants of the given month in loc.
func MonthRange(year, month int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// YearRange returns the first and last instants of the given year in loc.
func YearRange(year int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(1, 0, 0).Add(-time.Nanosecond)
}

// Period is a reporting window: a whole month, or a whole year when Month is 0.
type Period struct {
	Year  int `json:"year" query:"year"`
	Month int `json:"month" query:"month"`
}

func (p Period) Validate() error {
	var flds []FieldError
	if p.Year < 1970 || p.Year > 9999 {
		flds = append(flds, FieldError{Field: "year", Error: "a valid year is required"})
	}
	if p.Month < 0 || p.Month > 12 {
		flds = append(flds, FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if flds != nil {
		return NewValidationError(nil, flds...)
	}
	return nil
}

func (p Period) IsMonth() bool { return p.Month > 0 }

func (p Period) Range(loc *time.Location) (time.Time, time.Time) {
	if p.IsMonth() {
		return MonthRange(p.Year, p.Month, loc)
	}
	return YearRange(p.Year, loc)
}
