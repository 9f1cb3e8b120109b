package billing

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("bill not found")
	ErrBillExists  = core.NewConflictError("a bill already exists for this student and month")
	ErrAlreadyPaid = core.NewConflictError("bill is already paid")

	// SystemUser is the actor of scheduled generations.
	SystemUser = user.User{ID: "system", Name: "System", Role: user.RoleAdmin, IsActive: true}
)

type (
	Repository interface {
		BillExists(ctx context.Context, studentID string, month, year int) (bool, error)
		// CreateBill fails with ErrBillExists if a bill exists for (StudentID, Month, Year).
		CreateBill(ctx context.Context, b Bill) (Bill, error)
		GetBill(ctx context.Context, id string) (Bill, error)
		// QueryBills returns matching bills, most recent period first.
		QueryBills(ctx context.Context, filter Filter) ([]Bill, error)
		// MarkBillPaid moves a pending bill to paid; a paid bill fails with ErrAlreadyPaid.
		MarkBillPaid(ctx context.Context, id string, p Payment) (Bill, error)
	}

	Students interface {
		ActiveStudents(ctx context.Context) ([]user.User, error)
	}

	// Ledger counts present attendance.
	Ledger interface {
		PresentCounts(ctx context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error)
	}

	// SettingsSource supplies the rates snapshotted into new bills.
	SettingsSource interface {
		Get(ctx context.Context) (settings.Settings, error)
	}

	// Locker serializes generation runs across processes.
	Locker interface {
		Obtain(ctx context.Context, key string) (release func(), err error)
	}

	Service struct {
		repo     Repository
		students Students
		ledger   Ledger
		settings SettingsSource
		locker   Locker
		mailer   core.EmailService
		logger   core.Logger
		loc      *time.Location
		nowFunc  func() time.Time
	}
)

func NewService(
	repo Repository,
	students Students,
	ledger Ledger,
	settingsSrc SettingsSource,
	locker Locker,
	mailer core.EmailService,
	logger core.Logger,
	loc *time.Location,
) *Service {
	return &Service{
		repo:     repo,
		students: students,
		ledger:   ledger,
		settings: settingsSrc,
		locker:   locker,
		mailer:   mailer,
		logger:   logger,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

// Generate creates the bills of every active student for the given month.
// Students already billed for that month are skipped; a failing student never aborts the run.
func (svc *Service) Generate(ctx context.Context, actor user.User, req GenerateRequest) (Run, error) {
	if !actor.IsAdmin() {
		return Run{}, core.ErrPermissionDenied
	}
	period := core.Period{Year: req.Year, Month: req.Month}
	if err := period.Validate(); err != nil {
		return Run{}, err
	}
	if !period.IsMonth() {
		return Run{}, core.NewValidationError(nil, core.FieldError{Field: "month", Error: "month is required"})
	}

	release := svc.lock(ctx, fmt.Sprintf("bills:generate:%04d-%02d", req.Year, req.Month))
	defer release()

	s, err := svc.settings.Get(ctx)
	if err != nil {
		return Run{}, errors.Wrap(err, "loading meal rates")
	}
	students, err := svc.students.ActiveStudents(ctx)
	if err != nil {
		return Run{}, errors.Wrap(err, "querying active students")
	}

	from, to := period.Range(svc.loc)
	run := Run{Month: req.Month, Year: req.Year, Bills: []Bill{}, Failed: []Failure{}}
	billed := make([]user.User, 0, len(students))
	for _, std := range students {
		b, created, err := svc.generateOne(ctx, std.ID, req, from, to, s.MealRates, actor.ID)
		switch {
		case err != nil:
			svc.logger.Error(fmt.Sprintf("generating bill: %v", err), err, map[string]interface{}{
				"student": std.ID, "month": req.Month, "year": req.Year,
			})
			run.Failed = append(run.Failed, Failure{StudentID: std.ID, Error: err.Error()})
		case !created:
			run.Skipped++
		default:
			run.Bills = append(run.Bills, b)
			billed = append(billed, std)
		}
	}

	svc.notify(s, billed, run.Bills)
	svc.logger.Info(
		fmt.Sprintf("generated %d bills for %02d/%d", len(run.Bills), req.Month, req.Year),
		map[string]interface{}{"skipped": run.Skipped, "failed": len(run.Failed), "actor": actor.ID},
	)
	return run, nil
}

// generateOne reports created=false when the student already has a bill for the month.
func (svc *Service) generateOne(
	ctx context.Context,
	studentID string,
	req GenerateRequest,
	from, to time.Time,
	rates settings.MealRates,
	actorID string,
) (Bill, bool, error) {
	exists, err := svc.repo.BillExists(ctx, studentID, req.Month, req.Year)
	if err != nil {
		return Bill{}, false, errors.Wrap(err, "checking existing bill")
	}
	if exists {
		return Bill{}, false, nil
	}

	counts, err := svc.ledger.PresentCounts(ctx, studentID, from, to)
	if err != nil {
		return Bill{}, false, err
	}

	b := NewBill(studentID, req.Month, req.Year, counts, rates, actorID, svc.nowFunc().UTC())
	b, err = svc.repo.CreateBill(ctx, b)
	if err != nil {
		// a concurrent run billed this student first
		if core.IsConflict(err) {
			return Bill{}, false, nil
		}
		return Bill{}, false, errors.Wrap(err, "saving bill")
	}
	return b, true, nil
}

// lock returns a no-op release when no lock could be obtained: the store's uniqueness
// constraint on bills still prevents duplicates.
func (svc *Service) lock(ctx context.Context, key string) func() {
	if svc.locker == nil {
		return func() {}
	}
	release, err := svc.locker.Obtain(ctx, key)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("obtaining lock %q: %v", key, err), err)
		return func() {}
	}
	return release
}

func (svc *Service) notify(s settings.Settings, students []user.User, bills []Bill) {
	if svc.mailer == nil || len(bills) == 0 {
		return
	}
	msgs := make([]*core.EmailMessage, 0, len(bills))
	for i, b := range bills {
		std := students[i]
		if std.Email == "" {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: std.Name, Address: std.Email}},
			Subject:      "Your mess bill for " + b.Period(),
			TemplateName: "bill_generated",
			TemplateData: newBillEmailData(s, std, b),
			Category:     "bill_generated",
			Meta:         map[string]string{"bill_id": b.ID, "student_id": b.StudentID, "period": b.Period()},
		})
	}
	svc.mailer.SendMessages(msgs...)
}

type billEmailLine struct {
	Meal  string
	Count int
	Rate  string
	Total string
}

type billEmailData struct {
	MessName    string
	StudentName string
	Period      string
	Lines       []billEmailLine
	TotalAmount string
}

func newBillEmailData(s settings.Settings, std user.User, b Bill) billEmailData {
	data := billEmailData{
		MessName:    s.MessName,
		StudentName: std.Name,
		Period:      b.Period(),
		TotalAmount: b.TotalAmount.StringFixed(2),
	}
	for _, mt := range core.MealTypes {
		c := b.Breakdown[mt]
		data.Lines = append(data.Lines, billEmailLine{
			Meal:  strings.ToUpper(string(mt[:1])) + string(mt[1:]),
			Count: c.Count,
			Rate:  c.Rate.StringFixed(2),
			Total: c.Total.StringFixed(2),
		})
	}
	return data
}

// MarkPaid records a payment confirmed by the payment collaborator.
func (svc *Service) MarkPaid(ctx context.Context, actor user.User, id string, p Payment) (Bill, error) {
	if !actor.IsAdmin() {
		return Bill{}, core.ErrPermissionDenied
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = svc.nowFunc()
	}
	p.PaidAt = p.PaidAt.UTC()
	return svc.repo.MarkBillPaid(ctx, id, p)
}

// Query returns the bills matching filter. Students only ever see their own bills.
func (svc *Service) Query(ctx context.Context, actor user.User, filter Filter) ([]Bill, error) {
	if actor.IsStudent() {
		filter.StudentID = actor.ID
	}
	bills, err := svc.repo.QueryBills(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying bills")
	}
	if bills == nil {
		bills = []Bill{}
	}
	return bills, nil
}

func (svc *Service) GetByID(ctx context.Context, actor user.User, id string) (Bill, error) {
	b, err := svc.repo.GetBill(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if actor.IsStudent() && b.StudentID != actor.ID {
		return Bill{}, ErrNotFound
	}
	return b, nil
}
