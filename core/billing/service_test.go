package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
	"github.com/trezcool/hostelmess/storage/database/inmem"
	"github.com/trezcool/hostelmess/testutil"
)

var now = time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	env      *testutil.Env
	admin    user.User
	manager  user.User
	students []user.User
}

// setup creates 5 active students, each present at 24 of the 30 days of April 2024 for every meal.
func setup(t *testing.T) fixture {
	env := testutil.NewEnv(t, now)
	f := fixture{
		env:     env,
		admin:   testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.in", user.RoleAdmin, true),
		manager: testutil.CreateUser(t, env.UserRepo, "Manager", "manager@test.in", user.RoleManager, true),
	}
	testutil.CreateUser(t, env.UserRepo, "Inactive", "inactive@test.in", user.RoleStudent, false)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		std := testutil.CreateUser(t, env.UserRepo, fmt.Sprintf("Student %d", i), fmt.Sprintf("student%d@test.in", i), user.RoleStudent, true)
		f.students = append(f.students, std)
		for day := 1; day <= 30; day++ {
			for _, mt := range core.MealTypes {
				present := day <= 24
				_, err := env.Ledger.Mark(ctx, f.manager, attendance.Mark{
					StudentID: std.ID,
					Date:      fmt.Sprintf("2024-04-%02d", day),
					MealType:  string(mt),
					Present:   &present,
				})
				require.NoError(t, err)
			}
		}
	}
	return f
}

func TestService_Generate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := billing.GenerateRequest{Month: 4, Year: 2024}

	_, err := f.env.Billing.Generate(ctx, f.manager, req)
	assert.Equal(t, core.ErrPermissionDenied, err)

	run, err := f.env.Billing.Generate(ctx, f.admin, req)
	require.NoError(t, err)
	assert.Equal(t, 4, run.Month)
	assert.Equal(t, 2024, run.Year)
	assert.Len(t, run.Bills, 5, "inactive students are not billed")
	assert.Zero(t, run.Skipped)
	assert.Empty(t, run.Failed)

	for _, b := range run.Bills {
		assert.NoError(t, b.CheckTotals())
		assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(3120)), "got %s", b.TotalAmount)
		for _, mt := range core.MealTypes {
			assert.Equal(t, 24, b.Breakdown[mt].Count)
		}
		assert.Equal(t, billing.StatusPending, b.Status)
		assert.Equal(t, f.admin.ID, b.GeneratedBy)
	}

	sent := f.env.Mailer.Sent()
	require.Len(t, sent, 5)
	assert.Equal(t, "Your mess bill for April 2024", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Total due: 3120.00")
}

func TestService_Generate_idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	req := billing.GenerateRequest{Month: 4, Year: 2024}

	first, err := f.env.Billing.Generate(ctx, f.admin, req)
	require.NoError(t, err)
	require.Len(t, first.Bills, 5)

	second, err := f.env.Billing.Generate(ctx, f.admin, req)
	require.NoError(t, err)
	assert.Empty(t, second.Bills)
	assert.Equal(t, 5, second.Skipped)

	bills, err := f.env.Billing.Query(ctx, f.admin, billing.Filter{Month: 4, Year: 2024})
	require.NoError(t, err)
	assert.ElementsMatch(t, first.Bills, bills)
}

func TestService_Generate_rateSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	run, err := f.env.Billing.Generate(ctx, f.admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	require.NotEmpty(t, run.Bills)

	lunch := decimal.NewFromInt(500)
	s, err := f.env.Settings.Get(ctx)
	require.NoError(t, err)
	require.False(t, s.MealRates.Lunch.Equal(lunch))
	_, err = f.env.Settings.Update(ctx, f.admin, settingsUpdateLunch(lunch))
	require.NoError(t, err)

	b, err := f.env.Billing.GetByID(ctx, f.admin, run.Bills[0].ID)
	require.NoError(t, err)
	assert.True(t, b.Breakdown[core.Lunch].Rate.Equal(decimal.NewFromInt(50)))
	assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(3120)))
}

func settingsUpdateLunch(rate decimal.Decimal) settings.UpdateSettings {
	return settings.UpdateSettings{LunchRate: &rate}
}

func TestService_Generate_validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, req := range []billing.GenerateRequest{{Month: 0, Year: 2024}, {Month: 13, Year: 2024}, {Month: 4}} {
		_, err := f.env.Billing.Generate(ctx, f.admin, req)
		var verr *core.ValidationError
		assert.True(t, errors.As(err, &verr), "%+v: %v", req, err)
	}

	validate := testutil.NewValidator()
	assert.Error(t, (&billing.GenerateRequest{Year: 2024}).Validate(validate))
	assert.NoError(t, (&billing.GenerateRequest{Month: 4, Year: 2024}).Validate(validate))
}

func TestService_Generate_noAttendance(t *testing.T) {
	env := testutil.NewEnv(t, now)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.in", user.RoleAdmin, true)
	testutil.CreateUser(t, env.UserRepo, "Lazy", "lazy@test.in", user.RoleStudent, true)

	run, err := env.Billing.Generate(context.Background(), admin, billing.GenerateRequest{Month: 1, Year: 2024})
	require.NoError(t, err)
	require.Len(t, run.Bills, 1)
	assert.True(t, run.Bills[0].TotalAmount.IsZero())
	assert.NoError(t, run.Bills[0].CheckTotals())
}

// racingRepo never sees existing bills, so duplicates only surface at insert time.
type racingRepo struct {
	billing.Repository
}

func (racingRepo) BillExists(context.Context, string, int, int) (bool, error) { return false, nil }

func newService(t *testing.T, env *testutil.Env, repo billing.Repository, ledger billing.Ledger, locker billing.Locker) *billing.Service {
	t.Helper()
	return billing.NewService(repo, env.Users, ledger, env.Settings, locker, nil, env.Logger, env.Conf.Location)
}

func TestService_Generate_duplicateKeyIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := newService(t, f.env, racingRepo{inmemdb.NewBillRepository(f.env.DB)}, f.env.Ledger, nil)
	req := billing.GenerateRequest{Month: 4, Year: 2024}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		runs []billing.Run
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := svc.Generate(ctx, f.admin, req)
			assert.NoError(t, err)
			mu.Lock()
			runs = append(runs, run)
			mu.Unlock()
		}()
	}
	wg.Wait()

	var created, skipped int
	for _, run := range runs {
		created += len(run.Bills)
		skipped += run.Skipped
		assert.Empty(t, run.Failed)
	}
	assert.Equal(t, 5, created)
	assert.Equal(t, 15, skipped)

	bills, err := svc.Query(ctx, f.admin, billing.Filter{Month: 4, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, bills, 5)
}

type flakyLedger struct {
	billing.Ledger
	failFor string
}

func (l flakyLedger) PresentCounts(ctx context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error) {
	if studentID == l.failFor {
		return nil, errors.New("ledger unavailable")
	}
	return l.Ledger.PresentCounts(ctx, studentID, from, to)
}

func TestService_Generate_studentFailureDoesNotAbort(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	failing := f.students[2].ID
	svc := newService(t, f.env, inmemdb.NewBillRepository(f.env.DB), flakyLedger{Ledger: f.env.Ledger, failFor: failing}, nil)

	run, err := svc.Generate(ctx, f.admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, run.Bills, 4)
	require.Len(t, run.Failed, 1)
	assert.Equal(t, failing, run.Failed[0].StudentID)
	assert.Contains(t, run.Failed[0].Error, "ledger unavailable")
}

type fakeLocker struct {
	err      error
	obtained []string
	released int
}

func (l *fakeLocker) Obtain(_ context.Context, key string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.obtained = append(l.obtained, key)
	return func() { l.released++ }, nil
}

func TestService_Generate_locking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	repo := inmemdb.NewBillRepository(f.env.DB)

	locker := &fakeLocker{}
	run, err := newService(t, f.env, repo, f.env.Ledger, locker).Generate(ctx, f.admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, run.Bills, 5)
	assert.Equal(t, []string{"bills:generate:2024-04"}, locker.obtained)
	assert.Equal(t, 1, locker.released)

	// generation proceeds without the lock
	down := &fakeLocker{err: errors.New("redis down")}
	run, err = newService(t, f.env, repo, f.env.Ledger, down).Generate(ctx, f.admin, billing.GenerateRequest{Month: 3, Year: 2024})
	require.NoError(t, err)
	assert.Len(t, run.Bills, 5)
}

func TestService_MarkPaid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	run, err := f.env.Billing.Generate(ctx, f.admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	id := run.Bills[0].ID

	p := billing.Payment{Method: " UPI ", TransactionID: "txn-42"}
	require.NoError(t, p.Validate(f.env.Validate))

	_, err = f.env.Billing.MarkPaid(ctx, f.manager, id, p)
	assert.Equal(t, core.ErrPermissionDenied, err)

	_, err = f.env.Billing.MarkPaid(ctx, f.admin, "missing", p)
	assert.Equal(t, billing.ErrNotFound, err)

	b, err := f.env.Billing.MarkPaid(ctx, f.admin, id, p)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, b.Status)
	assert.Equal(t, "upi", b.PaymentMethod)
	assert.Equal(t, "txn-42", b.TransactionID)
	require.NotNil(t, b.PaidAt)
	assert.False(t, b.PaidAt.IsZero())

	_, err = f.env.Billing.MarkPaid(ctx, f.admin, id, p)
	assert.True(t, core.IsConflict(err))
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.env.Billing.Generate(ctx, f.admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	_, err = f.env.Billing.Generate(ctx, f.admin, billing.GenerateRequest{Month: 3, Year: 2024})
	require.NoError(t, err)

	std := f.students[0]
	tests := []struct {
		name   string
		actor  user.User
		filter billing.Filter
		want   int
	}{
		{name: "all", actor: f.admin, want: 10},
		{name: "by month", actor: f.admin, filter: billing.Filter{Month: 3, Year: 2024}, want: 5},
		{name: "by student", actor: f.manager, filter: billing.Filter{StudentID: std.ID}, want: 2},
		{name: "by status", actor: f.admin, filter: billing.Filter{Status: billing.StatusPaid}, want: 0},
		{name: "students only see their own", actor: std, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bills, err := f.env.Billing.Query(ctx, tt.actor, tt.filter)
			require.NoError(t, err)
			assert.Len(t, bills, tt.want)
		})
	}

	bills, err := f.env.Billing.Query(ctx, f.admin, billing.Filter{StudentID: f.students[1].ID})
	require.NoError(t, err)
	_, err = f.env.Billing.GetByID(ctx, std, bills[0].ID)
	assert.Equal(t, billing.ErrNotFound, err, "students cannot read other students' bills")
}
