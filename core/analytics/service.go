package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/user"
)

type (
	// Source computes raw rollups over the stores. Windows are inclusive [from, to].
	// No method fails on an empty window.
	Source interface {
		CountActiveStudents(ctx context.Context) (int, error)
		CountPresent(ctx context.Context, from, to time.Time) (int, error)
		// SumRevenue sums bill totals for a month, or a whole year when p.Month is 0.
		SumRevenue(ctx context.Context, p core.Period) (decimal.Decimal, error)
		// AverageRating returns the mean rating and the number of feedback entries.
		AverageRating(ctx context.Context, from, to time.Time) (float64, int, error)
		CountComplaintsByStatus(ctx context.Context, statuses ...string) (int, error)
		CountMenus(ctx context.Context, from, to time.Time) (int, error)

		// AttendanceByDayMeal groups attendance by (day, meal type), in any order.
		AttendanceByDayMeal(ctx context.Context, from, to time.Time) ([]AttendanceTrend, error)
		// RevenueByMonth returns only the months of year that have bills.
		RevenueByMonth(ctx context.Context, year int) ([]RevenueTrend, error)
		RatingHistogram(ctx context.Context, from, to time.Time) (map[int]int, error)
		RatingByMeal(ctx context.Context, from, to time.Time) ([]MealRating, error)
		RatingByDay(ctx context.Context, from, to time.Time) ([]DailyRating, error)
		ComplaintsByStatus(ctx context.Context, from, to time.Time) (map[string]int, error)
		ComplaintsByCategory(ctx context.Context, from, to time.Time) (map[string]int, error)
		// ResolutionDays returns the mean (UpdatedAt - CreatedAt) in days of resolved complaints.
		ResolutionDays(ctx context.Context, from, to time.Time) (float64, int, error)
		PresentByMeal(ctx context.Context, from, to time.Time) (map[core.MealType]int, error)
	}

	Service struct {
		src Source
		loc *time.Location
	}
)

func NewService(src Source, loc *time.Location) *Service {
	return &Service{src: src, loc: loc}
}

func (svc *Service) window(actor user.User, p core.Period) (time.Time, time.Time, error) {
	if !actor.CanManage() {
		return time.Time{}, time.Time{}, core.ErrPermissionDenied
	}
	if err := p.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to := p.Range(svc.loc)
	return from, to, nil
}

// Overview computes the headline figures of the period. Open complaints are counted
// regardless of the period.
func (svc *Service) Overview(ctx context.Context, actor user.User, p core.Period) (Overview, error) {
	from, to, err := svc.window(actor, p)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{Period: p}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ov.ActiveStudents, err = svc.src.CountActiveStudents(gctx)
		return errors.Wrap(err, "counting active students")
	})
	g.Go(func() (err error) {
		ov.PresentAttendance, err = svc.src.CountPresent(gctx, from, to)
		return errors.Wrap(err, "counting attendance")
	})
	g.Go(func() (err error) {
		ov.TotalRevenue, err = svc.src.SumRevenue(gctx, p)
		return errors.Wrap(err, "summing revenue")
	})
	g.Go(func() error {
		avg, _, err := svc.src.AverageRating(gctx, from, to)
		ov.AverageRating = round2(avg)
		return errors.Wrap(err, "averaging ratings")
	})
	g.Go(func() (err error) {
		ov.OpenComplaints, err = svc.src.CountComplaintsByStatus(gctx, OpenComplaintStatuses...)
		return errors.Wrap(err, "counting open complaints")
	})
	g.Go(func() (err error) {
		ov.MenusCreated, err = svc.src.CountMenus(gctx, from, to)
		return errors.Wrap(err, "counting menus")
	})
	if err = g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}

// AttendanceTrends returns per day and meal counts, ascending by day then serving order.
func (svc *Service) AttendanceTrends(ctx context.Context, actor user.User, p core.Period) ([]AttendanceTrend, error) {
	from, to, err := svc.window(actor, p)
	if err != nil {
		return nil, err
	}
	trends, err := svc.src.AttendanceByDayMeal(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "grouping attendance")
	}
	if trends == nil {
		trends = []AttendanceTrend{}
	}
	for i := range trends {
		trends[i].Date = core.Day(trends[i].Date.In(svc.loc))
		trends[i].Absent = trends[i].Total - trends[i].Present
	}
	sort.SliceStable(trends, func(i, j int) bool {
		if !trends[i].Date.Equal(trends[j].Date) {
			return trends[i].Date.Before(trends[j].Date)
		}
		return trends[i].MealType.Order() < trends[j].MealType.Order()
	})
	return trends, nil
}

// RevenueTrends returns the twelve months of p.Year, zero filled. p.Month is validated but ignored.
func (svc *Service) RevenueTrends(ctx context.Context, actor user.User, p core.Period) ([]RevenueTrend, error) {
	if _, _, err := svc.window(actor, p); err != nil {
		return nil, err
	}
	byMonth, err := svc.src.RevenueByMonth(ctx, p.Year)
	if err != nil {
		return nil, errors.Wrap(err, "grouping revenue")
	}

	trends := make([]RevenueTrend, 12)
	for i := range trends {
		trends[i] = RevenueTrend{Month: i + 1, Revenue: decimal.Zero}
	}
	for _, rt := range byMonth {
		if rt.Month >= 1 && rt.Month <= 12 {
			trends[rt.Month-1] = rt
		}
	}
	return trends, nil
}

func (svc *Service) Feedback(ctx context.Context, actor user.User, p core.Period) (FeedbackAnalytics, error) {
	from, to, err := svc.window(actor, p)
	if err != nil {
		return FeedbackAnalytics{}, err
	}

	var (
		hist  map[int]int
		res   FeedbackAnalytics
		g     errgroup.Group
		daily []DailyRating
	)
	g.Go(func() (err error) {
		hist, err = svc.src.RatingHistogram(ctx, from, to)
		return errors.Wrap(err, "rating histogram")
	})
	g.Go(func() (err error) {
		res.ByMeal, err = svc.src.RatingByMeal(ctx, from, to)
		return errors.Wrap(err, "rating by meal")
	})
	g.Go(func() (err error) {
		daily, err = svc.src.RatingByDay(ctx, from, to)
		return errors.Wrap(err, "rating by day")
	})
	if err = g.Wait(); err != nil {
		return FeedbackAnalytics{}, err
	}

	res.Histogram = make([]RatingBucket, 0, 5)
	for r := 1; r <= 5; r++ {
		res.Histogram = append(res.Histogram, RatingBucket{Rating: r, Count: hist[r]})
	}

	if res.ByMeal == nil {
		res.ByMeal = []MealRating{}
	}
	for i := range res.ByMeal {
		res.ByMeal[i].Average = round2(res.ByMeal[i].Average)
	}
	sort.SliceStable(res.ByMeal, func(i, j int) bool {
		return res.ByMeal[i].MealType.Order() < res.ByMeal[j].MealType.Order()
	})

	if daily == nil {
		daily = []DailyRating{}
	}
	for i := range daily {
		daily[i].Date = core.Day(daily[i].Date.In(svc.loc))
		daily[i].Average = round2(daily[i].Average)
	}
	sort.SliceStable(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date) })
	res.Daily = daily
	return res, nil
}

func (svc *Service) Complaints(ctx context.Context, actor user.User, p core.Period) (ComplaintAnalytics, error) {
	from, to, err := svc.window(actor, p)
	if err != nil {
		return ComplaintAnalytics{}, err
	}

	var (
		res ComplaintAnalytics
		avg float64
		g   errgroup.Group
	)
	g.Go(func() (err error) {
		res.ByStatus, err = svc.src.ComplaintsByStatus(ctx, from, to)
		return errors.Wrap(err, "complaints by status")
	})
	g.Go(func() (err error) {
		res.ByCategory, err = svc.src.ComplaintsByCategory(ctx, from, to)
		return errors.Wrap(err, "complaints by category")
	})
	g.Go(func() (err error) {
		avg, res.Resolved, err = svc.src.ResolutionDays(ctx, from, to)
		return errors.Wrap(err, "resolution time")
	})
	if err = g.Wait(); err != nil {
		return ComplaintAnalytics{}, err
	}

	if res.ByStatus == nil {
		res.ByStatus = map[string]int{}
	}
	if res.ByCategory == nil {
		res.ByCategory = map[string]int{}
	}
	res.AverageResolutionDays = round2(avg)
	return res, nil
}

// MealPopularity returns present counts per meal type, most popular first.
func (svc *Service) MealPopularity(ctx context.Context, actor user.User, p core.Period) ([]MealCount, error) {
	from, to, err := svc.window(actor, p)
	if err != nil {
		return nil, err
	}
	counts, err := svc.src.PresentByMeal(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "counting meals")
	}

	res := make([]MealCount, 0, len(core.MealTypes))
	for _, mt := range core.MealTypes {
		res = append(res, MealCount{MealType: mt, Count: counts[mt]})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Count > res[j].Count })
	return res, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
