package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/hostelmess/core"
)

// Collections
const (
	usersColl       = "users"
	attendancesColl = "attendances"
	billsColl       = "bills"
	settingsColl    = "settings"
	feedbacksColl   = "feedbacks"
	complaintsColl  = "complaints"
	menusColl       = "menus"
	auditLogsColl   = "auditlogs"
)

// Open connects to the configured server and waits for it to answer.
func Open(ctx context.Context, conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(conf.Database.URI).
		SetConnectTimeout(conf.Database.Timeout).
		SetServerSelectionTimeout(conf.Database.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to database")
	}
	if err = ping(ctx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return client, client.Database(conf.Database.Name), nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, client *mongo.Client) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = client.Ping(ctx, nil); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "DB ping timeout")
}

// EnsureIndexes creates the unique keys the stores rely on for concurrency control.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersColl: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		attendancesColl: {
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "date", Value: 1}, {Key: "meal_type", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "present", Value: 1}}},
		},
		billsColl: {
			{
				Keys:    bson.D{{Key: "student_id", Value: 1}, {Key: "month", Value: 1}, {Key: "year", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}}},
		},
		feedbacksColl:  {{Keys: bson.D{{Key: "date", Value: 1}}}},
		complaintsColl: {{Keys: bson.D{{Key: "created_at", Value: 1}}}, {Keys: bson.D{{Key: "status", Value: 1}}}},
		menusColl:      {{Keys: bson.D{{Key: "created_at", Value: 1}}}},
		auditLogsColl:  {{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "at", Value: -1}}}},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

// trapNoDocsErr maps the driver's "no documents" error to notFound.
func trapNoDocsErr(err, notFound error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound
	}
	return err
}

func objectIDFromHex(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	dec, ok := primitive.ParseDecimal128FromBigInt(d.Coefficient(), int(d.Exponent()))
	if !ok {
		dec, _ = primitive.ParseDecimal128(d.String())
	}
	return dec
}

func fromDecimal128(dec primitive.Decimal128) decimal.Decimal {
	bi, exp, err := dec.BigInt()
	if err != nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(bi, int32(exp))
}

// dateRange is the inclusive [from, to] filter on a date field; zero bounds are open.
func dateRange(from, to time.Time) bson.M {
	r := bson.M{}
	if !from.IsZero() {
		r["$gte"] = from
	}
	if !to.IsZero() {
		r["$lte"] = to
	}
	return r
}
