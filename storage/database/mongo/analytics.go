package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/user"
)

type (
	feedbackDoc struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		StudentID string             `bson:"student_id"`
		MealType  string             `bson:"meal_type"`
		Rating    int                `bson:"rating"`
		Comment   string             `bson:"comment,omitempty"`
		Date      time.Time          `bson:"date"`
		CreatedAt time.Time          `bson:"created_at"`
	}

	complaintDoc struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		StudentID string             `bson:"student_id"`
		Category  string             `bson:"category"`
		Title     string             `bson:"title"`
		Status    string             `bson:"status"`
		CreatedAt time.Time          `bson:"created_at"`
		UpdatedAt time.Time          `bson:"updated_at"`
	}

	menuDoc struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		Date      time.Time          `bson:"date"`
		MealType  string             `bson:"meal_type"`
		Items     []string           `bson:"items"`
		CreatedAt time.Time          `bson:"created_at"`
	}
)

// analyticsSource computes rollups with aggregation pipelines.
type analyticsSource struct {
	db  *mongo.Database
	loc *time.Location
}

var _ analytics.Source = (*analyticsSource)(nil) // interface compliance check

func NewAnalyticsSource(db *mongo.Database, loc *time.Location) *analyticsSource {
	return &analyticsSource{db: db, loc: loc}
}

func match(q bson.M) bson.D    { return bson.D{{Key: "$match", Value: q}} }
func group(spec bson.M) bson.D { return bson.D{{Key: "$group", Value: spec}} }

func (src *analyticsSource) aggregate(ctx context.Context, coll string, results interface{}, stages ...bson.D) error {
	if err := aggregate(ctx, src.db.Collection(coll), stages, results); err != nil {
		return errors.Wrapf(err, "aggregating %s", coll)
	}
	return nil
}

func (src *analyticsSource) count(ctx context.Context, coll string, q bson.M) (int, error) {
	n, err := src.db.Collection(coll).CountDocuments(ctx, q)
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", coll)
	}
	return int(n), nil
}

func (src *analyticsSource) CountActiveStudents(ctx context.Context) (int, error) {
	return src.count(ctx, usersColl, bson.M{"role": user.RoleStudent, "is_active": true})
}

func (src *analyticsSource) CountPresent(ctx context.Context, from, to time.Time) (int, error) {
	return src.count(ctx, attendancesColl, bson.M{"present": true, "date": dateRange(from, to)})
}

type revenueRow struct {
	Month   int                  `bson:"_id"`
	Revenue primitive.Decimal128 `bson:"revenue"`
	Bills   int                  `bson:"bills"`
}

func (src *analyticsSource) SumRevenue(ctx context.Context, p core.Period) (decimal.Decimal, error) {
	q := bson.M{"year": p.Year}
	if p.IsMonth() {
		q["month"] = p.Month
	}
	var rows []revenueRow
	err := src.aggregate(ctx, billsColl, &rows,
		match(q),
		group(bson.M{"_id": nil, "revenue": bson.M{"$sum": "$total_amount"}, "bills": bson.M{"$sum": 1}}),
	)
	if err != nil || len(rows) == 0 {
		return decimal.Zero, err
	}
	return fromDecimal128(rows[0].Revenue), nil
}

type ratingRow struct {
	Key     interface{} `bson:"_id"`
	Average float64     `bson:"average"`
	Count   int         `bson:"count"`
}

var ratingGroup = bson.M{"average": bson.M{"$avg": "$rating"}, "count": bson.M{"$sum": 1}}

func ratingGroupBy(key interface{}) bson.D {
	spec := bson.M{"_id": key}
	for k, v := range ratingGroup {
		spec[k] = v
	}
	return group(spec)
}

func (src *analyticsSource) AverageRating(ctx context.Context, from, to time.Time) (float64, int, error) {
	var rows []ratingRow
	err := src.aggregate(ctx, feedbacksColl, &rows, match(bson.M{"date": dateRange(from, to)}), ratingGroupBy(nil))
	if err != nil || len(rows) == 0 {
		return 0, 0, err
	}
	return rows[0].Average, rows[0].Count, nil
}

func (src *analyticsSource) CountComplaintsByStatus(ctx context.Context, statuses ...string) (int, error) {
	return src.count(ctx, complaintsColl, bson.M{"status": bson.M{"$in": statuses}})
}

func (src *analyticsSource) CountMenus(ctx context.Context, from, to time.Time) (int, error) {
	return src.count(ctx, menusColl, bson.M{"created_at": dateRange(from, to)})
}

func (src *analyticsSource) AttendanceByDayMeal(ctx context.Context, from, to time.Time) ([]analytics.AttendanceTrend, error) {
	var rows []struct {
		Key struct {
			Date     time.Time `bson:"date"`
			MealType string    `bson:"meal_type"`
		} `bson:"_id"`
		Present int `bson:"present"`
		Total   int `bson:"total"`
	}
	err := src.aggregate(ctx, attendancesColl, &rows,
		match(bson.M{"date": dateRange(from, to)}),
		group(bson.M{
			"_id":     bson.M{"date": "$date", "meal_type": "$meal_type"},
			"present": bson.M{"$sum": bson.M{"$cond": bson.A{"$present", 1, 0}}},
			"total":   bson.M{"$sum": 1},
		}),
	)
	if err != nil {
		return nil, err
	}
	trends := make([]analytics.AttendanceTrend, 0, len(rows))
	for _, row := range rows {
		trends = append(trends, analytics.AttendanceTrend{
			Date:     row.Key.Date.In(src.loc),
			MealType: core.MealType(row.Key.MealType),
			Present:  row.Present,
			Total:    row.Total,
		})
	}
	return trends, nil
}

func (src *analyticsSource) RevenueByMonth(ctx context.Context, year int) ([]analytics.RevenueTrend, error) {
	var rows []revenueRow
	err := src.aggregate(ctx, billsColl, &rows,
		match(bson.M{"year": year}),
		group(bson.M{"_id": "$month", "revenue": bson.M{"$sum": "$total_amount"}, "bills": bson.M{"$sum": 1}}),
	)
	if err != nil {
		return nil, err
	}
	trends := make([]analytics.RevenueTrend, 0, len(rows))
	for _, row := range rows {
		trends = append(trends, analytics.RevenueTrend{Month: row.Month, Revenue: fromDecimal128(row.Revenue), Bills: row.Bills})
	}
	return trends, nil
}

type keyCount struct {
	Key   interface{} `bson:"_id"`
	Count int         `bson:"count"`
}

func (src *analyticsSource) countBy(ctx context.Context, coll string, q bson.M, field string) ([]keyCount, error) {
	var rows []keyCount
	err := src.aggregate(ctx, coll, &rows, match(q), group(bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}))
	return rows, err
}

func (src *analyticsSource) RatingHistogram(ctx context.Context, from, to time.Time) (map[int]int, error) {
	rows, err := src.countBy(ctx, feedbacksColl, bson.M{"date": dateRange(from, to)}, "rating")
	if err != nil {
		return nil, err
	}
	hist := make(map[int]int, len(rows))
	for _, row := range rows {
		if rating, ok := asInt(row.Key); ok {
			hist[rating] = row.Count
		}
	}
	return hist, nil
}

func (src *analyticsSource) RatingByMeal(ctx context.Context, from, to time.Time) ([]analytics.MealRating, error) {
	var rows []ratingRow
	err := src.aggregate(ctx, feedbacksColl, &rows, match(bson.M{"date": dateRange(from, to)}), ratingGroupBy("$meal_type"))
	if err != nil {
		return nil, err
	}
	res := make([]analytics.MealRating, 0, len(rows))
	for _, row := range rows {
		mt, _ := row.Key.(string)
		res = append(res, analytics.MealRating{MealType: core.MealType(mt), Average: row.Average, Count: row.Count})
	}
	return res, nil
}

// timezone returns the zone day bucketing is done in, or "" for UTC.
// An unnamed local zone falls back to its current UTC offset.
func (src *analyticsSource) timezone() string {
	switch src.loc {
	case nil, time.UTC:
		return ""
	case time.Local:
		return time.Now().In(src.loc).Format("-07:00")
	}
	return src.loc.String()
}

func (src *analyticsSource) RatingByDay(ctx context.Context, from, to time.Time) ([]analytics.DailyRating, error) {
	day := bson.M{"format": "%Y-%m-%d", "date": "$date"}
	if tz := src.timezone(); tz != "" {
		day["timezone"] = tz
	}
	var rows []ratingRow
	err := src.aggregate(ctx, feedbacksColl, &rows,
		match(bson.M{"date": dateRange(from, to)}),
		ratingGroupBy(bson.M{"$dateToString": day}),
	)
	if err != nil {
		return nil, err
	}
	res := make([]analytics.DailyRating, 0, len(rows))
	for _, row := range rows {
		s, _ := row.Key.(string)
		date, err := core.ParseDate(s, src.loc)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing rating day %q", s)
		}
		res = append(res, analytics.DailyRating{Date: date, Average: row.Average, Count: row.Count})
	}
	return res, nil
}

func (src *analyticsSource) complaintsBy(ctx context.Context, from, to time.Time, field string) (map[string]int, error) {
	rows, err := src.countBy(ctx, complaintsColl, bson.M{"created_at": dateRange(from, to)}, field)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		k, _ := row.Key.(string)
		counts[k] = row.Count
	}
	return counts, nil
}

func (src *analyticsSource) ComplaintsByStatus(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return src.complaintsBy(ctx, from, to, "status")
}

func (src *analyticsSource) ComplaintsByCategory(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return src.complaintsBy(ctx, from, to, "category")
}

func (src *analyticsSource) ResolutionDays(ctx context.Context, from, to time.Time) (float64, int, error) {
	var rows []ratingRow
	err := src.aggregate(ctx, complaintsColl, &rows,
		match(bson.M{"status": analytics.ComplaintResolved, "created_at": dateRange(from, to)}),
		group(bson.M{
			"_id": nil,
			"average": bson.M{"$avg": bson.M{"$divide": bson.A{
				bson.M{"$subtract": bson.A{"$updated_at", "$created_at"}},
				int64(24 * time.Hour / time.Millisecond),
			}}},
			"count": bson.M{"$sum": 1},
		}),
	)
	if err != nil || len(rows) == 0 {
		return 0, 0, err
	}
	return rows[0].Average, rows[0].Count, nil
}

func (src *analyticsSource) PresentByMeal(ctx context.Context, from, to time.Time) (map[core.MealType]int, error) {
	rows, err := src.countBy(ctx, attendancesColl, bson.M{"present": true, "date": dateRange(from, to)}, "meal_type")
	if err != nil {
		return nil, err
	}
	counts := make(map[core.MealType]int, len(rows))
	for _, row := range rows {
		mt, _ := row.Key.(string)
		counts[core.MealType(mt)] = row.Count
	}
	return counts, nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// InsertFeedback, InsertComplaints and InsertMenus write the documents owned by the
// feedback, complaint and menu features, which only the analytics read here.

func InsertFeedback(ctx context.Context, db *mongo.Database, entries ...analytics.FeedbackEntry) error {
	docs := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, feedbackDoc{
			StudentID: e.StudentID, MealType: string(e.MealType), Rating: e.Rating,
			Comment: e.Comment, Date: e.Date, CreatedAt: e.CreatedAt,
		})
	}
	return insertMany(ctx, db.Collection(feedbacksColl), docs)
}

func InsertComplaints(ctx context.Context, db *mongo.Database, complaints ...analytics.Complaint) error {
	docs := make([]interface{}, 0, len(complaints))
	for _, c := range complaints {
		docs = append(docs, complaintDoc{
			StudentID: c.StudentID, Category: c.Category, Title: c.Title,
			Status: c.Status, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
		})
	}
	return insertMany(ctx, db.Collection(complaintsColl), docs)
}

func InsertMenus(ctx context.Context, db *mongo.Database, menus ...analytics.MenuEntry) error {
	docs := make([]interface{}, 0, len(menus))
	for _, m := range menus {
		docs = append(docs, menuDoc{Date: m.Date, MealType: string(m.MealType), Items: m.Items, CreatedAt: m.CreatedAt})
	}
	return insertMany(ctx, db.Collection(menusColl), docs)
}

func insertMany(ctx context.Context, coll *mongo.Collection, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return errors.Wrapf(err, "inserting into %s", coll.Name())
	}
	return nil
}
