package core

import "github.com/pkg/errors"

// MealType is the finest billing and attendance granularity.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
)

// MealTypes lists meal types in serving order.
var MealTypes = []MealType{Breakfast, Lunch, Dinner}

func (mt MealType) IsValid() bool {
	switch mt {
	case Breakfast, Lunch, Dinner:
		return true
	}
	return false
}

// Order returns the serving position of mt, or len(MealTypes) if unknown.
func (mt MealType) Order() int {
	for i, m := range MealTypes {
		if m == mt {
			return i
		}
	}
	return len(MealTypes)
}

func ParseMealType(s string) (MealType, error) {
	mt := MealType(CleanString(s, true /* lower */))
	if !mt.IsValid() {
		return "", NewValidationError(nil, FieldError{Field: "meal_type", Error: errors.Errorf("invalid meal type %q", s).Error()})
	}
	return mt, nil
}
