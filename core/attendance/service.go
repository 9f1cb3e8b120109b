package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("attendance record not found")
	ErrStudentNotFound = core.NewNotFoundError("student not found")
	ErrAlreadyMarked   = core.NewConflictError("attendance already marked for this meal")
)

type (
	Repository interface {
		// UpsertRecord writes r in a single conditional write keyed by r.Key():
		// an existing record gets its Present, Approved, MarkedBy and UpdatedAt overwritten,
		// and its approver when r is Approved.
		UpsertRecord(ctx context.Context, r Record) (Record, error)
		// InsertRecord fails with ErrAlreadyMarked if a record exists for r.Key().
		InsertRecord(ctx context.Context, r Record) (Record, error)
		ApproveRecord(ctx context.Context, id, approvedBy string, at time.Time) (Record, error)
		// QueryRecords returns matching records ordered by date then meal type.
		QueryRecords(ctx context.Context, filter Filter) ([]Record, error)
		// CountPresentByMeal counts the present records of a student within [from, to].
		CountPresentByMeal(ctx context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error)
	}

	// Students resolves the users attendance is marked for.
	Students interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Policy guards self confirmation of meals.
	Policy interface {
		EnsureCanConfirmMeal(ctx context.Context, mealDate time.Time) error
	}

	Service struct {
		repo     Repository
		students Students
		policy   Policy
		loc      *time.Location
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, students Students, policy Policy, loc *time.Location) *Service {
	return &Service{
		repo:     repo,
		students: students,
		policy:   policy,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

// SetClock overrides the time source stamping records.
func (svc *Service) SetClock(now func() time.Time) {
	svc.nowFunc = now
}

// Mark records the presence of a student as seen by a manager, overwriting any previous marking.
// Manager markings are approved implicitly.
func (svc *Service) Mark(ctx context.Context, actor user.User, m Mark) (Record, error) {
	if !actor.CanManage() {
		return Record{}, core.ErrPermissionDenied
	}
	if m.Present == nil {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "present", Error: "this field is required"})
	}
	date, mealType, err := svc.parseSlot(m.Date, m.MealType)
	if err != nil {
		return Record{}, err
	}
	return svc.mark(ctx, actor, m.StudentID, date, mealType, *m.Present)
}

// MarkBulk applies Mark to every entry. An unknown student only fails its own entry.
func (svc *Service) MarkBulk(ctx context.Context, actor user.User, bm BulkMark) (BulkResult, error) {
	if !actor.CanManage() {
		return BulkResult{}, core.ErrPermissionDenied
	}
	date, mealType, err := svc.parseSlot(bm.Date, bm.MealType)
	if err != nil {
		return BulkResult{}, err
	}

	res := BulkResult{Records: []Record{}, Failures: []BulkFailure{}}
	for _, e := range bm.Entries {
		present := e.Present != nil && *e.Present
		rec, err := svc.mark(ctx, actor, e.StudentID, date, mealType, present)
		if err != nil {
			if core.IsNotFound(err) {
				res.Failures = append(res.Failures, BulkFailure{StudentID: e.StudentID, Error: err.Error()})
				continue
			}
			return BulkResult{}, err
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (svc *Service) mark(ctx context.Context, actor user.User, studentID string, date time.Time, mealType core.MealType, present bool) (Record, error) {
	if err := svc.checkStudent(ctx, studentID); err != nil {
		return Record{}, err
	}
	now := svc.nowFunc().UTC()
	rec, err := svc.repo.UpsertRecord(ctx, Record{
		StudentID:  studentID,
		Date:       date,
		MealType:   mealType,
		Present:    present,
		Approved:   true,
		MarkedBy:   actor.ID,
		ApprovedBy: actor.ID,
		ApprovedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Record{}, errors.Wrap(err, "marking attendance")
	}
	return rec, nil
}

// SelfMark lets an active student confirm their own presence, subject to the cutoff policy.
// It never overwrites: a second confirmation for the same meal fails with ErrAlreadyMarked.
func (svc *Service) SelfMark(ctx context.Context, actor user.User, sm SelfMark) (Record, error) {
	if !actor.IsActiveStudent() {
		return Record{}, core.ErrPermissionDenied
	}
	date, mealType, err := svc.parseSlot(sm.Date, sm.MealType)
	if err != nil {
		return Record{}, err
	}
	if err = svc.policy.EnsureCanConfirmMeal(ctx, date); err != nil {
		return Record{}, err
	}

	now := svc.nowFunc().UTC()
	rec, err := svc.repo.InsertRecord(ctx, Record{
		StudentID: actor.ID,
		Date:      date,
		MealType:  mealType,
		Present:   true,
		Approved:  false,
		MarkedBy:  actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if core.IsConflict(err) {
			return Record{}, err
		}
		return Record{}, errors.Wrap(err, "self marking attendance")
	}
	return rec, nil
}

func (svc *Service) Approve(ctx context.Context, actor user.User, id string) (Record, error) {
	if !actor.CanManage() {
		return Record{}, core.ErrPermissionDenied
	}
	return svc.repo.ApproveRecord(ctx, id, actor.ID, svc.nowFunc().UTC())
}

// Report returns the records matching filter with their summary.
// Students only ever see their own records.
func (svc *Service) Report(ctx context.Context, actor user.User, filter Filter) (Report, error) {
	if actor.IsStudent() {
		filter.StudentID = actor.ID
	}
	records, err := svc.repo.QueryRecords(ctx, filter)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []Record{}
	}
	return Report{Records: records, Summary: summarize(records)}, nil
}

// PresentCounts counts the present records of a student per meal type within [from, to].
// Every meal type is present in the result.
func (svc *Service) PresentCounts(ctx context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error) {
	counts, err := svc.repo.CountPresentByMeal(ctx, studentID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "counting attendance")
	}
	res := make(map[core.MealType]int, len(core.MealTypes))
	for _, mt := range core.MealTypes {
		res[mt] = counts[mt]
	}
	return res, nil
}

func (svc *Service) checkStudent(ctx context.Context, id string) error {
	usr, err := svc.students.GetByID(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return ErrStudentNotFound
		}
		return errors.Wrap(err, "finding student")
	}
	if !usr.IsStudent() {
		return ErrStudentNotFound
	}
	return nil
}

func (svc *Service) parseSlot(dateStr, mealTypeStr string) (time.Time, core.MealType, error) {
	date, err := core.ParseDate(dateStr, svc.loc)
	if err != nil {
		return time.Time{}, "", core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	mealType, err := core.ParseMealType(mealTypeStr)
	if err != nil {
		return time.Time{}, "", err
	}
	return core.Day(date), mealType, nil
}
