package billing

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/settings"
)

type Status string

// Statuses
const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

// MealCharge is the billed consumption of one meal type. Rate is frozen at generation time.
type MealCharge struct {
	Count int             `json:"count"`
	Rate  decimal.Decimal `json:"rate"`
	Total decimal.Decimal `json:"total"`
}

type Breakdown map[core.MealType]MealCharge

// Bill is the monthly invoice of one student. (StudentID, Month, Year) is unique.
type Bill struct {
	ID            string          `json:"id"`
	StudentID     string          `json:"student_id"`
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	Breakdown     Breakdown       `json:"breakdown"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        Status          `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	GeneratedBy   string          `json:"generated_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewBill computes a pending Bill from per-meal present counts and a snapshot of the meal rates.
func NewBill(studentID string, month, year int, counts map[core.MealType]int, rates settings.MealRates, generatedBy string, now time.Time) Bill {
	b := Bill{
		StudentID:   studentID,
		Month:       month,
		Year:        year,
		Breakdown:   make(Breakdown, len(core.MealTypes)),
		TotalAmount: decimal.Zero,
		Status:      StatusPending,
		GeneratedBy: generatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, mt := range core.MealTypes {
		rate := rates.Rate(mt)
		charge := MealCharge{
			Count: counts[mt],
			Rate:  rate,
			Total: rate.Mul(decimal.NewFromInt(int64(counts[mt]))),
		}
		b.Breakdown[mt] = charge
		b.TotalAmount = b.TotalAmount.Add(charge.Total)
	}
	return b
}

// CheckTotals verifies every meal total is count*rate and that they sum to TotalAmount.
func (b Bill) CheckTotals() error {
	sum := decimal.Zero
	for _, mt := range core.MealTypes {
		c := b.Breakdown[mt]
		if want := c.Rate.Mul(decimal.NewFromInt(int64(c.Count))); !c.Total.Equal(want) {
			return fmt.Errorf("%s total %s != %d x %s", mt, c.Total, c.Count, c.Rate)
		}
		sum = sum.Add(c.Total)
	}
	if !sum.Equal(b.TotalAmount) {
		return fmt.Errorf("total amount %s != sum of meal totals %s", b.TotalAmount, sum)
	}
	return nil
}

func (b Bill) IsPaid() bool { return b.Status == StatusPaid }

// Period returns the billed month formatted as "January 2024".
func (b Bill) Period() string {
	return fmt.Sprintf("%s %d", time.Month(b.Month), b.Year)
}

// GenerateRequest names the month to bill.
type GenerateRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1970,max=9999"`
}

func (gr *GenerateRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(gr)
}

// Failure is a student for which generation failed.
type Failure struct {
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// Run is the outcome of one generation pass. Bills holds only the newly created bills.
type Run struct {
	Month   int       `json:"month"`
	Year    int       `json:"year"`
	Bills   []Bill    `json:"bills"`
	Skipped int       `json:"skipped"`
	Failed  []Failure `json:"failed"`
}

// Payment is the confirmation sent by the payment collaborator.
type Payment struct {
	Method        string    `json:"payment_method" validate:"required,notblank"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}

func (p *Payment) Validate(validate *validator.Validate) error {
	p.Method = core.CleanString(p.Method, true /* lower */)
	p.TransactionID = core.CleanString(p.TransactionID)
	return validate.Struct(p)
}

// Filter applies AND operation on its set fields.
type Filter struct {
	StudentID string `query:"student"`
	Month     int    `query:"month"`
	Year      int    `query:"year"`
	Status    Status `query:"status"`
}

func (f Filter) Validate() error {
	var flds []core.FieldError
	if f.Month < 0 || f.Month > 12 {
		flds = append(flds, core.FieldError{Field: "month", Error: "month must be between 1 and 12"})
	}
	if f.Status != "" && f.Status != StatusPending && f.Status != StatusPaid {
		flds = append(flds, core.FieldError{Field: "status", Error: fmt.Sprintf("invalid status %q", f.Status)})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}
