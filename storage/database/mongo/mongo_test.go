package mongodb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
	"github.com/trezcool/hostelmess/services/email"
	"github.com/trezcool/hostelmess/services/logger"
	"github.com/trezcool/hostelmess/storage/database/mongo"
	"github.com/trezcool/hostelmess/testutil"
)

func prepare(t *testing.T) *mongo.Database {
	db := testutil.PrepareMongo(t)
	require.NoError(t, mongodb.EnsureIndexes(context.Background(), db))
	return db
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewUserRepository(prepare(t))

	std := testutil.CreateUser(t, repo, "Student", "student@test.in", user.RoleStudent, true)
	testutil.CreateUser(t, repo, "Old", "old@test.in", user.RoleStudent, false)
	assert.Len(t, std.ID, 24)

	_, err := repo.CreateUser(ctx, user.User{Email: "student@test.in"})
	assert.Equal(t, user.ErrEmailExists, err)
	assert.Equal(t, user.ErrEmailExists, repo.CheckEmailUniqueness(ctx, "student@test.in"))
	assert.NoError(t, repo.CheckEmailUniqueness(ctx, "new@test.in"))

	got, err := repo.GetUser(ctx, user.GetFilter{ID: std.ID})
	require.NoError(t, err)
	assert.Equal(t, std.Email, got.Email)

	_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-an-object-id"})
	assert.Equal(t, user.ErrNotFound, err)
	_, err = repo.GetUser(ctx, user.GetFilter{Email: "ghost@test.in"})
	assert.Equal(t, user.ErrNotFound, err)

	active, err := repo.QueryUsers(ctx, user.QueryFilter{Role: user.RoleStudent, IsActive: testutil.Bool(true)})
	require.NoError(t, err)
	if assert.Len(t, active, 1) {
		assert.Equal(t, std.ID, active[0].ID)
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	db := prepare(t)
	conf := core.NewTestConfig()
	repo := mongodb.NewSettingsRepository(db)
	svc := settings.NewService(repo, conf, mongodb.NewAuditRepository(db), logsvc.NewNopLogger())
	admin := user.User{ID: "admin", Role: user.RoleAdmin}

	s, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.True(t, s.MealRates.Lunch.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, s.Holidays)

	rate := decimal.RequireFromString("47.5")
	s, err = svc.Update(ctx, admin, settings.UpdateSettings{DinnerRate: &rate})
	require.NoError(t, err)
	assert.True(t, s.MealRates.Dinner.Equal(rate))

	_, err = svc.AddHoliday(ctx, admin, settings.NewHoliday{Date: "2024-04-14", Reason: "Festival"})
	require.NoError(t, err)
	s, err = svc.AddHoliday(ctx, admin, settings.NewHoliday{Date: "2024-04-02", Reason: "Break"})
	require.NoError(t, err)
	require.Len(t, s.Holidays, 2)
	assert.Equal(t, "Break", s.Holidays[0].Reason)

	_, err = svc.AddHoliday(ctx, admin, settings.NewHoliday{Date: "2024-04-14", Reason: "Again"})
	assert.Equal(t, settings.ErrHolidayExists, err)

	// updating other fields keeps the holidays
	name := "North Mess"
	s, err = svc.Update(ctx, admin, settings.UpdateSettings{MessName: &name})
	require.NoError(t, err)
	assert.Len(t, s.Holidays, 2)
	assert.True(t, s.MealRates.Dinner.Equal(rate))

	s, err = svc.RemoveHoliday(ctx, admin, s.Holidays[0].ID)
	require.NoError(t, err)
	assert.Len(t, s.Holidays, 1)
	_, err = svc.RemoveHoliday(ctx, admin, "missing")
	assert.True(t, core.IsNotFound(err))

	n, err := db.Collection("auditlogs").CountDocuments(ctx, bson.M{"entity_type": settings.EntityType})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestAttendanceRepository(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewAttendanceRepository(prepare(t), time.UTC)
	now := time.Now().UTC().Truncate(time.Millisecond)
	day := testutil.Date(2024, time.April, 10)

	rec := attendance.Record{
		StudentID: "s1", Date: day, MealType: core.Lunch,
		Present: false, Approved: true, MarkedBy: "m1", CreatedAt: now, UpdatedAt: now,
	}
	first, err := repo.UpsertRecord(ctx, rec)
	require.NoError(t, err)
	rec.Present = true
	second, err := repo.UpsertRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Present)

	_, err = repo.InsertRecord(ctx, rec)
	assert.Equal(t, attendance.ErrAlreadyMarked, err)

	self, err := repo.InsertRecord(ctx, attendance.Record{
		StudentID: "s1", Date: day, MealType: core.Breakfast, Present: true, MarkedBy: "s1", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, self.Approved)

	approved, err := repo.ApproveRecord(ctx, self.ID, "m1", now)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	assert.Equal(t, "m1", approved.ApprovedBy)
	_, err = repo.ApproveRecord(ctx, "65f000000000000000000000", "m1", now)
	assert.Equal(t, attendance.ErrNotFound, err)

	// a manager marking over a self-marked record approves it
	selfDinner, err := repo.InsertRecord(ctx, attendance.Record{
		StudentID: "s2", Date: day, MealType: core.Dinner, Present: true, MarkedBy: "s2", CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	overwritten, err := repo.UpsertRecord(ctx, attendance.Record{
		StudentID: "s2", Date: day, MealType: core.Dinner, Present: true, Approved: true,
		MarkedBy: "m2", ApprovedBy: "m2", ApprovedAt: &now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, selfDinner.ID, overwritten.ID)
	assert.True(t, overwritten.Approved)
	assert.Equal(t, "m2", overwritten.ApprovedBy)
	require.NotNil(t, overwritten.ApprovedAt)
	assert.True(t, overwritten.ApprovedAt.Equal(now))

	records, err := repo.QueryRecords(ctx, attendance.Filter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, core.Breakfast, records[0].MealType)
	assert.True(t, records[0].Date.Equal(day))

	counts, err := repo.CountPresentByMeal(ctx, "s1", day, day.Add(24*time.Hour-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, map[core.MealType]int{core.Breakfast: 1, core.Lunch: 1}, counts)
}

func TestAttendanceRepository_ConcurrentUpsert(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewAttendanceRepository(prepare(t), time.UTC)
	now := time.Now().UTC()
	rec := attendance.Record{StudentID: "s1", Date: testutil.Date(2024, time.April, 10), MealType: core.Dinner, CreatedAt: now, UpdatedAt: now}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(present bool) {
			defer wg.Done()
			r := rec
			r.Present = present
			_, err := repo.UpsertRecord(ctx, r)
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	records, err := repo.QueryRecords(ctx, attendance.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestBillingService(t *testing.T) {
	ctx := context.Background()
	db := prepare(t)
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	mailer := emailsvc.NewMockService(conf, logger)

	userRepo := mongodb.NewUserRepository(db)
	users := user.NewService(userRepo)
	setSvc := settings.NewService(mongodb.NewSettingsRepository(db), conf, nil, logger)
	ledger := attendance.NewService(mongodb.NewAttendanceRepository(db, conf.Location), users, setSvc, conf.Location)
	billRepo := mongodb.NewBillRepository(db)
	svc := billing.NewService(billRepo, users, ledger, setSvc, nil, mailer, logger, conf.Location)

	admin := testutil.CreateUser(t, userRepo, "Admin", "admin@test.in", user.RoleAdmin, true)
	std := testutil.CreateUser(t, userRepo, "Student", "student@test.in", user.RoleStudent, true)
	for day := 1; day <= 3; day++ {
		for _, mt := range core.MealTypes {
			_, err := ledger.Mark(ctx, admin, attendance.Mark{
				StudentID: std.ID,
				Date:      testutil.Date(2024, time.April, day).Format(core.DateLayout),
				MealType:  string(mt),
				Present:   testutil.Bool(true),
			})
			require.NoError(t, err)
		}
	}

	run, err := svc.Generate(ctx, admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	require.Len(t, run.Bills, 1)
	bill := run.Bills[0]
	assert.True(t, bill.TotalAmount.Equal(decimal.NewFromInt(390)), bill.TotalAmount.String())
	assert.NoError(t, bill.CheckTotals())

	run, err = svc.Generate(ctx, admin, billing.GenerateRequest{Month: 4, Year: 2024})
	require.NoError(t, err)
	assert.Empty(t, run.Bills)
	assert.Equal(t, 1, run.Skipped)

	stored, err := billRepo.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, stored.Breakdown[core.Lunch].Rate.Equal(decimal.NewFromInt(50)))
	assert.NoError(t, stored.CheckTotals())

	paid, err := svc.MarkPaid(ctx, admin, bill.ID, billing.Payment{Method: "upi", TransactionID: "tx-1"})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, paid.Status)
	_, err = svc.MarkPaid(ctx, admin, bill.ID, billing.Payment{Method: "upi"})
	assert.Equal(t, billing.ErrAlreadyPaid, err)
	_, err = billRepo.MarkBillPaid(ctx, "65f000000000000000000000", billing.Payment{Method: "cash"})
	assert.Equal(t, billing.ErrNotFound, err)

	_, err = billRepo.CreateBill(ctx, bill)
	assert.Equal(t, billing.ErrBillExists, err)
}

func TestAnalyticsSource(t *testing.T) {
	ctx := context.Background()
	db := prepare(t)
	admin := user.User{ID: "admin", Role: user.RoleAdmin}
	april := core.Period{Month: 4, Year: 2024}
	now := time.Date(2024, time.April, 20, 10, 0, 0, 0, time.UTC)

	students := mongodb.NewUserRepository(db)
	testutil.CreateUser(t, students, "A", "a@test.in", user.RoleStudent, true)
	testutil.CreateUser(t, students, "B", "b@test.in", user.RoleStudent, true)

	att := mongodb.NewAttendanceRepository(db, time.UTC)
	for i, r := range []attendance.Record{
		{StudentID: "a", Date: testutil.Date(2024, time.April, 1), MealType: core.Lunch, Present: true},
		{StudentID: "b", Date: testutil.Date(2024, time.April, 1), MealType: core.Lunch, Present: false},
		{StudentID: "a", Date: testutil.Date(2024, time.April, 2), MealType: core.Dinner, Present: true},
		{StudentID: "a", Date: testutil.Date(2024, time.March, 2), MealType: core.Dinner, Present: true},
	} {
		r.CreatedAt, r.UpdatedAt = now, now
		_, err := att.InsertRecord(ctx, r)
		require.NoError(t, err, i)
	}

	bills := mongodb.NewBillRepository(db)
	rates := settings.MealRates{Breakfast: decimal.NewFromInt(30), Lunch: decimal.NewFromInt(50), Dinner: decimal.NewFromInt(50)}
	for _, b := range []billing.Bill{
		billing.NewBill("a", 4, 2024, map[core.MealType]int{core.Lunch: 1, core.Dinner: 1}, rates, "system", now),
		billing.NewBill("b", 4, 2024, map[core.MealType]int{core.Breakfast: 1}, rates, "system", now),
		billing.NewBill("a", 3, 2024, map[core.MealType]int{core.Dinner: 1}, rates, "system", now),
	} {
		_, err := bills.CreateBill(ctx, b)
		require.NoError(t, err)
	}

	require.NoError(t, mongodb.InsertFeedback(ctx, db,
		analytics.FeedbackEntry{StudentID: "a", MealType: core.Lunch, Rating: 5, Date: time.Date(2024, time.April, 1, 13, 0, 0, 0, time.UTC)},
		analytics.FeedbackEntry{StudentID: "b", MealType: core.Lunch, Rating: 3, Date: time.Date(2024, time.April, 1, 14, 0, 0, 0, time.UTC)},
		analytics.FeedbackEntry{StudentID: "a", MealType: core.Dinner, Rating: 4, Date: time.Date(2024, time.April, 2, 21, 0, 0, 0, time.UTC)},
	))
	require.NoError(t, mongodb.InsertComplaints(ctx, db,
		analytics.Complaint{Category: "food", Status: analytics.ComplaintPending, CreatedAt: now, UpdatedAt: now},
		analytics.Complaint{Category: "hygiene", Status: analytics.ComplaintResolved, CreatedAt: now, UpdatedAt: now.Add(36 * time.Hour)},
	))
	require.NoError(t, mongodb.InsertMenus(ctx, db, analytics.MenuEntry{MealType: core.Lunch, Items: []string{"rice"}, CreatedAt: now}))

	svc := analytics.NewService(mongodb.NewAnalyticsSource(db, time.UTC), time.UTC)

	ov, err := svc.Overview(ctx, admin, april)
	require.NoError(t, err)
	assert.Equal(t, 2, ov.ActiveStudents)
	assert.Equal(t, 2, ov.PresentAttendance)
	assert.True(t, ov.TotalRevenue.Equal(decimal.NewFromInt(130)), ov.TotalRevenue.String())
	assert.Equal(t, 4.0, ov.AverageRating)
	assert.Equal(t, 1, ov.OpenComplaints)
	assert.Equal(t, 1, ov.MenusCreated)

	trends, err := svc.AttendanceTrends(ctx, admin, april)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, analytics.AttendanceTrend{
		Date: testutil.Date(2024, time.April, 1), MealType: core.Lunch, Present: 1, Absent: 1, Total: 2,
	}, trends[0])

	revenue, err := svc.RevenueTrends(ctx, admin, core.Period{Year: 2024})
	require.NoError(t, err)
	require.Len(t, revenue, 12)
	assert.True(t, revenue[2].Revenue.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 2, revenue[3].Bills)

	fb, err := svc.Feedback(ctx, admin, april)
	require.NoError(t, err)
	assert.Len(t, fb.Daily, 2)
	assert.Len(t, fb.ByMeal, 2)

	ca, err := svc.Complaints(ctx, admin, april)
	require.NoError(t, err)
	assert.Equal(t, 1.5, ca.AverageResolutionDays)
	assert.Equal(t, 1, ca.Resolved)

	pop, err := svc.MealPopularity(ctx, admin, april)
	require.NoError(t, err)
	assert.Equal(t, []analytics.MealCount{
		{MealType: core.Lunch, Count: 1},
		{MealType: core.Dinner, Count: 1},
		{MealType: core.Breakfast, Count: 0},
	}, pop)
}
