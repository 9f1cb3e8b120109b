package mongodb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/attendance"
)

type recordDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	StudentID  string             `bson:"student_id"`
	Date       time.Time          `bson:"date"`
	MealType   string             `bson:"meal_type"`
	Present    bool               `bson:"present"`
	Approved   bool               `bson:"approved"`
	MarkedBy   string             `bson:"marked_by"`
	ApprovedBy string             `bson:"approved_by,omitempty"`
	ApprovedAt *time.Time         `bson:"approved_at,omitempty"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

type attendanceRepository struct {
	coll *mongo.Collection
	loc  *time.Location
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *mongo.Database, loc *time.Location) *attendanceRepository {
	return &attendanceRepository{coll: db.Collection(attendancesColl), loc: loc}
}

func (repo *attendanceRepository) boil(r attendance.Record) recordDoc {
	oid, _ := objectIDFromHex(r.ID)
	return recordDoc{
		ID:         oid,
		StudentID:  r.StudentID,
		Date:       r.Date,
		MealType:   string(r.MealType),
		Present:    r.Present,
		Approved:   r.Approved,
		MarkedBy:   r.MarkedBy,
		ApprovedBy: r.ApprovedBy,
		ApprovedAt: r.ApprovedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func (repo *attendanceRepository) unboil(doc recordDoc) attendance.Record {
	return attendance.Record{
		ID:         doc.ID.Hex(),
		StudentID:  doc.StudentID,
		Date:       doc.Date.In(repo.loc),
		MealType:   core.MealType(doc.MealType),
		Present:    doc.Present,
		Approved:   doc.Approved,
		MarkedBy:   doc.MarkedBy,
		ApprovedBy: doc.ApprovedBy,
		ApprovedAt: doc.ApprovedAt,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func keyFilter(r attendance.Record) bson.M {
	return bson.M{"student_id": r.StudentID, "date": r.Date, "meal_type": string(r.MealType)}
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	set := bson.M{
		"present":    r.Present,
		"approved":   r.Approved,
		"marked_by":  r.MarkedBy,
		"updated_at": r.UpdatedAt,
	}
	if r.Approved {
		set["approved_by"] = r.ApprovedBy
		set["approved_at"] = r.ApprovedAt
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": r.CreatedAt},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc recordDoc
	err := repo.coll.FindOneAndUpdate(ctx, keyFilter(r), update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on insert; the loser now updates the winner's document
		err = repo.coll.FindOneAndUpdate(ctx, keyFilter(r), update, opts).Decode(&doc)
	}
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance")
	}
	return repo.unboil(doc), nil
}

func (repo *attendanceRepository) InsertRecord(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	doc := repo.boil(r)
	doc.ID = primitive.NilObjectID
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return attendance.Record{}, attendance.ErrAlreadyMarked
		}
		return attendance.Record{}, errors.Wrap(err, "inserting attendance")
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return repo.unboil(doc), nil
}

func (repo *attendanceRepository) ApproveRecord(ctx context.Context, id, approvedBy string, at time.Time) (attendance.Record, error) {
	oid, ok := objectIDFromHex(id)
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	update := bson.M{"$set": bson.M{
		"approved":    true,
		"approved_by": approvedBy,
		"approved_at": at,
		"updated_at":  at,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc recordDoc
	if err := repo.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "approving attendance")
	}
	return repo.unboil(doc), nil
}

func recordQuery(f attendance.Filter) bson.M {
	q := bson.M{}
	if f.StudentID != "" {
		q["student_id"] = f.StudentID
	}
	if r := dateRange(f.From, f.To); len(r) > 0 {
		q["date"] = r
	}
	if f.MealType != "" {
		q["meal_type"] = string(f.MealType)
	}
	if f.Present != nil {
		q["present"] = *f.Present
	}
	if f.Approved != nil {
		q["approved"] = *f.Approved
	}
	return q
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, f attendance.Filter) ([]attendance.Record, error) {
	cur, err := repo.coll.Find(ctx, recordQuery(f), options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	var docs []recordDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding attendance")
	}

	records := make([]attendance.Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, repo.unboil(doc))
	}
	// meal order is not lexical, so the tail of the sort happens here
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		if records[i].MealType != records[j].MealType {
			return records[i].MealType.Order() < records[j].MealType.Order()
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}

type mealCount struct {
	MealType string `bson:"_id"`
	Count    int    `bson:"count"`
}

func (repo *attendanceRepository) CountPresentByMeal(ctx context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error) {
	present := true
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: recordQuery(attendance.Filter{StudentID: studentID, From: from, To: to, Present: &present})}},
		{{Key: "$group", Value: bson.M{"_id": "$meal_type", "count": bson.M{"$sum": 1}}}},
	}
	var rows []mealCount
	if err := aggregate(ctx, repo.coll, pipeline, &rows); err != nil {
		return nil, errors.Wrap(err, "counting present meals")
	}
	counts := make(map[core.MealType]int, len(rows))
	for _, row := range rows {
		counts[core.MealType(row.MealType)] = row.Count
	}
	return counts, nil
}

func aggregate(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, results interface{}) error {
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, results)
}
