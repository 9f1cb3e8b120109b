package settings

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
)

const reasonHoliday = "Holiday"

// Decision is the outcome of a meal confirmation check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// HolidayOn returns the holiday falling on mealDate's calendar day, if any.
func (s Settings) HolidayOn(mealDate time.Time, loc *time.Location) (Holiday, bool) {
	for _, h := range s.Holidays {
		if core.SameDay(h.Date, mealDate, loc) {
			return h, true
		}
	}
	return Holiday{}, false
}

// CutoffInstant returns the last instant at which a meal served on mealDate may be confirmed:
// CutoffDaysBefore days before mealDate's day, at CutoffTime, in loc.
func (s Settings) CutoffInstant(mealDate time.Time, loc *time.Location) (time.Time, error) {
	var hour, min int
	if _, err := fmt.Sscanf(s.CutoffTime, "%d:%d", &hour, &min); err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing cutoff time %q", s.CutoffTime)
	}
	y, m, d := mealDate.In(loc).Date()
	return time.Date(y, m, d-s.CutoffDaysBefore, hour, min, 0, 0, loc), nil
}

// CanConfirmMeal decides whether a meal served on mealDate may still be confirmed at now.
// Holidays are always denied, whatever the cutoff.
func (s Settings) CanConfirmMeal(mealDate, now time.Time, loc *time.Location) (Decision, error) {
	if _, ok := s.HolidayOn(mealDate, loc); ok {
		return Decision{Allowed: false, Reason: reasonHoliday}, nil
	}

	cutoff, err := s.CutoffInstant(mealDate, loc)
	if err != nil {
		return Decision{}, err
	}
	if now.After(cutoff) {
		return Decision{Allowed: false, Reason: s.cutoffReason()}, nil
	}
	return Decision{Allowed: true}, nil
}

func (s Settings) cutoffReason() string {
	switch s.CutoffDaysBefore {
	case 0:
		return fmt.Sprintf("Cutoff passed: meals must be confirmed by %s on the same day", s.CutoffTime)
	case 1:
		return fmt.Sprintf("Cutoff passed: meals must be confirmed by %s, 1 day before", s.CutoffTime)
	default:
		return fmt.Sprintf("Cutoff passed: meals must be confirmed by %s, %d days before", s.CutoffTime, s.CutoffDaysBefore)
	}
}
