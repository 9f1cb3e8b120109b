package inmemdb

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/user"
)

// analyticsSource computes rollups by scanning the in-memory tables.
type analyticsSource struct {
	db *DB
}

var _ analytics.Source = (*analyticsSource)(nil) // interface compliance check

func NewAnalyticsSource(db *DB) *analyticsSource {
	return &analyticsSource{db: db}
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (src *analyticsSource) records(from, to time.Time) []attendance.Record {
	src.db.attendance.RLock()
	defer src.db.attendance.RUnlock()

	records := make([]attendance.Record, 0)
	for _, r := range src.db.attendance.table {
		if within(r.Date, from, to) {
			records = append(records, *r)
		}
	}
	return records
}

func (src *analyticsSource) feedback(from, to time.Time) []analytics.FeedbackEntry {
	src.db.feedback.RLock()
	defer src.db.feedback.RUnlock()
	return lo.Filter(src.db.feedback.rows, func(f analytics.FeedbackEntry, _ int) bool { return within(f.Date, from, to) })
}

func (src *analyticsSource) complaints(from, to time.Time) []analytics.Complaint {
	src.db.complaint.RLock()
	defer src.db.complaint.RUnlock()
	return lo.Filter(src.db.complaint.rows, func(c analytics.Complaint, _ int) bool { return within(c.CreatedAt, from, to) })
}

func (src *analyticsSource) CountActiveStudents(_ context.Context) (int, error) {
	src.db.user.RLock()
	defer src.db.user.RUnlock()
	return lo.CountBy(lo.Values(src.db.user.table), func(u *user.User) bool { return u.IsActiveStudent() }), nil
}

func (src *analyticsSource) CountPresent(_ context.Context, from, to time.Time) (int, error) {
	return lo.CountBy(src.records(from, to), func(r attendance.Record) bool { return r.Present }), nil
}

func (src *analyticsSource) SumRevenue(_ context.Context, p core.Period) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, b := range NewBillRepository(src.db).allBills() {
		if b.Year == p.Year && (!p.IsMonth() || b.Month == p.Month) {
			sum = sum.Add(b.TotalAmount)
		}
	}
	return sum, nil
}

func (src *analyticsSource) AverageRating(_ context.Context, from, to time.Time) (float64, int, error) {
	fbs := src.feedback(from, to)
	if len(fbs) == 0 {
		return 0, 0, nil
	}
	total := lo.SumBy(fbs, func(f analytics.FeedbackEntry) int { return f.Rating })
	return float64(total) / float64(len(fbs)), len(fbs), nil
}

func (src *analyticsSource) CountComplaintsByStatus(_ context.Context, statuses ...string) (int, error) {
	src.db.complaint.RLock()
	defer src.db.complaint.RUnlock()
	return lo.CountBy(src.db.complaint.rows, func(c analytics.Complaint) bool { return lo.Contains(statuses, c.Status) }), nil
}

func (src *analyticsSource) CountMenus(_ context.Context, from, to time.Time) (int, error) {
	src.db.menu.RLock()
	defer src.db.menu.RUnlock()
	return lo.CountBy(src.db.menu.rows, func(m analytics.MenuEntry) bool { return within(m.CreatedAt, from, to) }), nil
}

func (src *analyticsSource) AttendanceByDayMeal(_ context.Context, from, to time.Time) ([]analytics.AttendanceTrend, error) {
	type slot struct {
		day  time.Time
		meal core.MealType
	}
	groups := lo.GroupBy(src.records(from, to), func(r attendance.Record) slot {
		return slot{day: r.Date.UTC(), meal: r.MealType}
	})

	trends := make([]analytics.AttendanceTrend, 0, len(groups))
	for k, rs := range groups {
		trends = append(trends, analytics.AttendanceTrend{
			Date:     k.day,
			MealType: k.meal,
			Present:  lo.CountBy(rs, func(r attendance.Record) bool { return r.Present }),
			Total:    len(rs),
		})
	}
	return trends, nil
}

func (src *analyticsSource) RevenueByMonth(_ context.Context, year int) ([]analytics.RevenueTrend, error) {
	bills := lo.Filter(NewBillRepository(src.db).allBills(), func(b billing.Bill, _ int) bool { return b.Year == year })
	byMonth := lo.GroupBy(bills, func(b billing.Bill) int { return b.Month })

	trends := make([]analytics.RevenueTrend, 0, len(byMonth))
	for month, bs := range byMonth {
		rt := analytics.RevenueTrend{Month: month, Revenue: decimal.Zero, Bills: len(bs)}
		for _, b := range bs {
			rt.Revenue = rt.Revenue.Add(b.TotalAmount)
		}
		trends = append(trends, rt)
	}
	return trends, nil
}

func (src *analyticsSource) RatingHistogram(_ context.Context, from, to time.Time) (map[int]int, error) {
	return lo.CountValuesBy(src.feedback(from, to), func(f analytics.FeedbackEntry) int { return f.Rating }), nil
}

func meanRating(fbs []analytics.FeedbackEntry) float64 {
	if len(fbs) == 0 {
		return 0
	}
	return float64(lo.SumBy(fbs, func(f analytics.FeedbackEntry) int { return f.Rating })) / float64(len(fbs))
}

func (src *analyticsSource) RatingByMeal(_ context.Context, from, to time.Time) ([]analytics.MealRating, error) {
	groups := lo.GroupBy(src.feedback(from, to), func(f analytics.FeedbackEntry) core.MealType { return f.MealType })
	res := make([]analytics.MealRating, 0, len(groups))
	for mt, fbs := range groups {
		res = append(res, analytics.MealRating{MealType: mt, Average: meanRating(fbs), Count: len(fbs)})
	}
	return res, nil
}

func (src *analyticsSource) RatingByDay(_ context.Context, from, to time.Time) ([]analytics.DailyRating, error) {
	groups := lo.GroupBy(src.feedback(from, to), func(f analytics.FeedbackEntry) time.Time { return core.Day(f.Date).UTC() })
	res := make([]analytics.DailyRating, 0, len(groups))
	for day, fbs := range groups {
		res = append(res, analytics.DailyRating{Date: day, Average: meanRating(fbs), Count: len(fbs)})
	}
	return res, nil
}

func (src *analyticsSource) ComplaintsByStatus(_ context.Context, from, to time.Time) (map[string]int, error) {
	return lo.CountValuesBy(src.complaints(from, to), func(c analytics.Complaint) string { return c.Status }), nil
}

func (src *analyticsSource) ComplaintsByCategory(_ context.Context, from, to time.Time) (map[string]int, error) {
	return lo.CountValuesBy(src.complaints(from, to), func(c analytics.Complaint) string { return c.Category }), nil
}

func (src *analyticsSource) ResolutionDays(_ context.Context, from, to time.Time) (float64, int, error) {
	resolved := lo.Filter(src.complaints(from, to), func(c analytics.Complaint, _ int) bool {
		return c.Status == analytics.ComplaintResolved
	})
	if len(resolved) == 0 {
		return 0, 0, nil
	}
	total := lo.SumBy(resolved, func(c analytics.Complaint) float64 { return c.UpdatedAt.Sub(c.CreatedAt).Hours() / 24 })
	return total / float64(len(resolved)), len(resolved), nil
}

func (src *analyticsSource) PresentByMeal(_ context.Context, from, to time.Time) (map[core.MealType]int, error) {
	present := lo.Filter(src.records(from, to), func(r attendance.Record, _ int) bool { return r.Present })
	return lo.CountValuesBy(present, func(r attendance.Record) core.MealType { return r.MealType }), nil
}

// InsertFeedback, InsertComplaint and InsertMenu stand in for the CRUD features owning those stores.

func (db *DB) InsertFeedback(entries ...analytics.FeedbackEntry) {
	db.feedback.Lock()
	defer db.feedback.Unlock()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		db.feedback.rows = append(db.feedback.rows, e)
	}
}

func (db *DB) InsertComplaint(complaints ...analytics.Complaint) {
	db.complaint.Lock()
	defer db.complaint.Unlock()
	for _, c := range complaints {
		if c.ID == "" {
			c.ID = newID()
		}
		db.complaint.rows = append(db.complaint.rows, c)
	}
}

func (db *DB) InsertMenu(menus ...analytics.MenuEntry) {
	db.menu.Lock()
	defer db.menu.Unlock()
	for _, m := range menus {
		if m.ID == "" {
			m.ID = newID()
		}
		db.menu.rows = append(db.menu.rows, m)
	}
}
