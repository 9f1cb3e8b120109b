package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/hostelmess/core"
)

// Record is the presence of one student at one meal of one day.
// (StudentID, Date, MealType) is unique.
type Record struct {
	ID         string        `json:"id"`
	StudentID  string        `json:"student_id"`
	Date       time.Time     `json:"date"` // midnight of the meal day
	MealType   core.MealType `json:"meal_type"`
	Present    bool          `json:"present"`
	Approved   bool          `json:"approved"`
	MarkedBy   string        `json:"marked_by"`
	ApprovedBy string        `json:"approved_by,omitempty"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Key is the natural identity of a Record.
type Key struct {
	StudentID string
	Date      time.Time
	MealType  core.MealType
}

func (r Record) Key() Key {
	return Key{StudentID: r.StudentID, Date: r.Date, MealType: r.MealType}
}

// Mark is a manager's marking of a single student.
type Mark struct {
	StudentID string `json:"student_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	MealType  string `json:"meal_type" validate:"required,mealtype"`
	Present   *bool  `json:"present" validate:"required"`
}

func (m *Mark) Validate(validate *validator.Validate) error {
	m.StudentID = core.CleanString(m.StudentID)
	m.Date = core.CleanString(m.Date)
	m.MealType = core.CleanString(m.MealType, true /* lower */)
	return validate.Struct(m)
}

type BulkEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   *bool  `json:"present" validate:"required"`
}

// BulkMark marks many students for the same meal.
type BulkMark struct {
	Date     string      `json:"date" validate:"required"`
	MealType string      `json:"meal_type" validate:"required,mealtype"`
	Entries  []BulkEntry `json:"entries" validate:"required,min=1,dive"`
}

func (bm *BulkMark) Validate(validate *validator.Validate) error {
	bm.Date = core.CleanString(bm.Date)
	bm.MealType = core.CleanString(bm.MealType, true /* lower */)
	for i := range bm.Entries {
		bm.Entries[i].StudentID = core.CleanString(bm.Entries[i].StudentID)
	}
	return validate.Struct(bm)
}

// SelfMark is a student confirming their own presence.
type SelfMark struct {
	Date     string `json:"date" validate:"required"`
	MealType string `json:"meal_type" validate:"required,mealtype"`
}

func (sm *SelfMark) Validate(validate *validator.Validate) error {
	sm.Date = core.CleanString(sm.Date)
	sm.MealType = core.CleanString(sm.MealType, true /* lower */)
	return validate.Struct(sm)
}

// Filter applies AND operation on its set fields. From/To are inclusive.
type Filter struct {
	StudentID string
	From      time.Time
	To        time.Time
	MealType  core.MealType
	Present   *bool
	Approved  *bool
}

// ReportQuery is the raw query string form of a Filter.
type ReportQuery struct {
	StudentID string `query:"student"`
	From      string `query:"from"`
	To        string `query:"to"`
	MealType  string `query:"meal_type"`
	Approved  *bool  `query:"approved"`
}

// Filter parses rq into a Filter, normalizing dates to whole days in loc.
func (rq ReportQuery) Filter(loc *time.Location) (Filter, error) {
	f := Filter{StudentID: core.CleanString(rq.StudentID), Approved: rq.Approved}
	var flds []core.FieldError
	if rq.From != "" {
		from, err := core.ParseDate(rq.From, loc)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "from", Error: err.Error()})
		}
		f.From = from
	}
	if rq.To != "" {
		to, err := core.ParseDate(rq.To, loc)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "to", Error: err.Error()})
		}
		f.To = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if rq.MealType != "" {
		mt, err := core.ParseMealType(rq.MealType)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "meal_type", Error: err.Error()})
		}
		f.MealType = mt
	}
	if flds != nil {
		return Filter{}, core.NewValidationError(nil, flds...)
	}
	return f, nil
}

type Summary struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

type Report struct {
	Records []Record `json:"records"`
	Summary Summary  `json:"summary"`
}

func summarize(records []Record) Summary {
	s := Summary{Total: len(records)}
	for _, r := range records {
		if r.Present {
			s.Present++
		}
	}
	s.Absent = s.Total - s.Present
	return s
}

// BulkFailure is a BulkMark entry that could not be applied.
type BulkFailure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

type BulkResult struct {
	Records  []Record      `json:"records"`
	Failures []BulkFailure `json:"failures"`
}
