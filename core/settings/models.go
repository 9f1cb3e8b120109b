package settings

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/hostelmess/core"
)

type MealRates struct {
	Breakfast decimal.Decimal `json:"breakfast"`
	Lunch     decimal.Decimal `json:"lunch"`
	Dinner    decimal.Decimal `json:"dinner"`
}

// Rate returns the price of a single meal of type mt.
func (r MealRates) Rate(mt core.MealType) decimal.Decimal {
	switch mt {
	case core.Breakfast:
		return r.Breakfast
	case core.Lunch:
		return r.Lunch
	case core.Dinner:
		return r.Dinner
	}
	return decimal.Zero
}

type Holiday struct {
	ID     string    `json:"id"`
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// Settings is the mess-wide configuration. Exactly one exists at any time.
type Settings struct {
	MealRates        MealRates `json:"meal_rates"`
	CutoffTime       string    `json:"cutoff_time"` // HH:MM
	CutoffDaysBefore int       `json:"cutoff_days_before"`
	Holidays         []Holiday `json:"holidays"`
	MessName         string    `json:"mess_name"`
	MessAddress      string    `json:"mess_address"`
	ContactEmail     string    `json:"contact_email"`
	ContactPhone     string    `json:"contact_phone"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Default returns the Settings a missing document is created with.
func Default(conf core.MessConfig) Settings {
	return Settings{
		MealRates: MealRates{
			Breakfast: conf.BreakfastRate,
			Lunch:     conf.LunchRate,
			Dinner:    conf.DinnerRate,
		},
		CutoffTime:       conf.CutoffTime,
		CutoffDaysBefore: conf.CutoffDaysBefore,
		Holidays:         []Holiday{},
		MessName:         conf.Name,
		MessAddress:      conf.Address,
		ContactEmail:     conf.ContactEmail,
		ContactPhone:     conf.ContactPhone,
	}
}

// SortHolidays orders holidays by date.
func SortHolidays(hs []Holiday) {
	sort.SliceStable(hs, func(i, j int) bool { return hs[i].Date.Before(hs[j].Date) })
}

// UpdateSettings defines what information may be provided to modify the Settings.
// Nil fields are left untouched.
type UpdateSettings struct {
	BreakfastRate    *decimal.Decimal `json:"breakfast_rate"`
	LunchRate        *decimal.Decimal `json:"lunch_rate"`
	DinnerRate       *decimal.Decimal `json:"dinner_rate"`
	CutoffTime       *string          `json:"cutoff_time" validate:"omitempty,hhmm"`
	CutoffDaysBefore *int             `json:"cutoff_days_before" validate:"omitempty,min=0"`
	MessName         *string          `json:"mess_name" validate:"omitempty,notblank"`
	MessAddress      *string          `json:"mess_address"`
	ContactEmail     *string          `json:"contact_email" validate:"omitempty,email"`
	ContactPhone     *string          `json:"contact_phone"`
}

func (us *UpdateSettings) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower ...bool) {
		if s != nil {
			*s = core.CleanString(*s, lower...)
		}
	}
	clean(us.CutoffTime)
	clean(us.MessName)
	clean(us.MessAddress)
	clean(us.ContactEmail, true /* lower */)
	clean(us.ContactPhone)

	if err := validate.Struct(us); err != nil {
		return err
	}

	var flds []core.FieldError
	checkRate := func(field string, rate *decimal.Decimal) {
		if rate != nil && rate.IsNegative() {
			flds = append(flds, core.FieldError{Field: field, Error: "rate cannot be negative"})
		}
	}
	checkRate("breakfast_rate", us.BreakfastRate)
	checkRate("lunch_rate", us.LunchRate)
	checkRate("dinner_rate", us.DinnerRate)
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// apply returns a copy of s with the set fields of us.
func (us UpdateSettings) apply(s Settings) Settings {
	if us.BreakfastRate != nil {
		s.MealRates.Breakfast = *us.BreakfastRate
	}
	if us.LunchRate != nil {
		s.MealRates.Lunch = *us.LunchRate
	}
	if us.DinnerRate != nil {
		s.MealRates.Dinner = *us.DinnerRate
	}
	if us.CutoffTime != nil {
		s.CutoffTime = *us.CutoffTime
	}
	if us.CutoffDaysBefore != nil {
		s.CutoffDaysBefore = *us.CutoffDaysBefore
	}
	if us.MessName != nil {
		s.MessName = *us.MessName
	}
	if us.MessAddress != nil {
		s.MessAddress = *us.MessAddress
	}
	if us.ContactEmail != nil {
		s.ContactEmail = *us.ContactEmail
	}
	if us.ContactPhone != nil {
		s.ContactPhone = *us.ContactPhone
	}
	return s
}

type NewHoliday struct {
	Date   string `json:"date" validate:"required"`
	Reason string `json:"reason" validate:"required,notblank"`

	date time.Time
}

func (nh *NewHoliday) Validate(validate *validator.Validate, loc *time.Location) error {
	nh.Date = core.CleanString(nh.Date)
	nh.Reason = core.CleanString(nh.Reason)
	if err := validate.Struct(nh); err != nil {
		return err
	}
	date, err := core.ParseDate(nh.Date, loc)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	nh.date = date
	return nil
}
