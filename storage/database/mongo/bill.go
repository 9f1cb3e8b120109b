package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/billing"
)

type (
	chargeDoc struct {
		Count int                  `bson:"count"`
		Rate  primitive.Decimal128 `bson:"rate"`
		Total primitive.Decimal128 `bson:"total"`
	}

	billDoc struct {
		ID            primitive.ObjectID   `bson:"_id,omitempty"`
		StudentID     string               `bson:"student_id"`
		Month         int                  `bson:"month"`
		Year          int                  `bson:"year"`
		Breakdown     map[string]chargeDoc `bson:"breakdown"`
		TotalAmount   primitive.Decimal128 `bson:"total_amount"`
		Status        string               `bson:"status"`
		PaidAt        *time.Time           `bson:"paid_at,omitempty"`
		PaymentMethod string               `bson:"payment_method,omitempty"`
		TransactionID string               `bson:"transaction_id,omitempty"`
		GeneratedBy   string               `bson:"generated_by"`
		CreatedAt     time.Time            `bson:"created_at"`
		UpdatedAt     time.Time            `bson:"updated_at"`
	}
)

func boilBill(b billing.Bill) billDoc {
	oid, _ := objectIDFromHex(b.ID)
	bd := make(map[string]chargeDoc, len(b.Breakdown))
	for mt, c := range b.Breakdown {
		bd[string(mt)] = chargeDoc{Count: c.Count, Rate: toDecimal128(c.Rate), Total: toDecimal128(c.Total)}
	}
	return billDoc{
		ID:            oid,
		StudentID:     b.StudentID,
		Month:         b.Month,
		Year:          b.Year,
		Breakdown:     bd,
		TotalAmount:   toDecimal128(b.TotalAmount),
		Status:        string(b.Status),
		PaidAt:        b.PaidAt,
		PaymentMethod: b.PaymentMethod,
		TransactionID: b.TransactionID,
		GeneratedBy:   b.GeneratedBy,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

func unboilBill(doc billDoc) billing.Bill {
	bd := make(billing.Breakdown, len(doc.Breakdown))
	for mt, c := range doc.Breakdown {
		bd[core.MealType(mt)] = billing.MealCharge{Count: c.Count, Rate: fromDecimal128(c.Rate), Total: fromDecimal128(c.Total)}
	}
	return billing.Bill{
		ID:            doc.ID.Hex(),
		StudentID:     doc.StudentID,
		Month:         doc.Month,
		Year:          doc.Year,
		Breakdown:     bd,
		TotalAmount:   fromDecimal128(doc.TotalAmount),
		Status:        billing.Status(doc.Status),
		PaidAt:        doc.PaidAt,
		PaymentMethod: doc.PaymentMethod,
		TransactionID: doc.TransactionID,
		GeneratedBy:   doc.GeneratedBy,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

type billRepository struct {
	coll *mongo.Collection
}

var _ billing.Repository = (*billRepository)(nil) // interface compliance check

func NewBillRepository(db *mongo.Database) *billRepository {
	return &billRepository{coll: db.Collection(billsColl)}
}

func (repo *billRepository) BillExists(ctx context.Context, studentID string, month, year int) (bool, error) {
	q := bson.M{"student_id": studentID, "month": month, "year": year}
	n, err := repo.coll.CountDocuments(ctx, q, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "counting bills")
	}
	return n > 0, nil
}

func (repo *billRepository) CreateBill(ctx context.Context, b billing.Bill) (billing.Bill, error) {
	doc := boilBill(b)
	doc.ID = primitive.NilObjectID
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return billing.Bill{}, billing.ErrBillExists
		}
		return billing.Bill{}, errors.Wrap(err, "inserting bill")
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return unboilBill(doc), nil
}

func (repo *billRepository) GetBill(ctx context.Context, id string) (billing.Bill, error) {
	oid, ok := objectIDFromHex(id)
	if !ok {
		return billing.Bill{}, billing.ErrNotFound
	}
	var doc billDoc
	if err := repo.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return billing.Bill{}, billing.ErrNotFound
		}
		return billing.Bill{}, errors.Wrap(err, "getting bill")
	}
	return unboilBill(doc), nil
}

func (repo *billRepository) QueryBills(ctx context.Context, f billing.Filter) ([]billing.Bill, error) {
	q := bson.M{}
	if f.StudentID != "" {
		q["student_id"] = f.StudentID
	}
	if f.Month != 0 {
		q["month"] = f.Month
	}
	if f.Year != 0 {
		q["year"] = f.Year
	}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	sort := bson.D{{Key: "year", Value: -1}, {Key: "month", Value: -1}, {Key: "student_id", Value: 1}}

	cur, err := repo.coll.Find(ctx, q, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Wrap(err, "querying bills")
	}
	var docs []billDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding bills")
	}
	bills := make([]billing.Bill, 0, len(docs))
	for _, doc := range docs {
		bills = append(bills, unboilBill(doc))
	}
	return bills, nil
}

func (repo *billRepository) MarkBillPaid(ctx context.Context, id string, p billing.Payment) (billing.Bill, error) {
	oid, ok := objectIDFromHex(id)
	if !ok {
		return billing.Bill{}, billing.ErrNotFound
	}
	set := bson.M{
		"status":         string(billing.StatusPaid),
		"paid_at":        p.PaidAt,
		"payment_method": p.Method,
		"updated_at":     p.PaidAt,
	}
	if p.TransactionID != "" {
		set["transaction_id"] = p.TransactionID
	}
	filter := bson.M{"_id": oid, "status": string(billing.StatusPending)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc billDoc
	err := repo.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil {
		return unboilBill(doc), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return billing.Bill{}, errors.Wrap(err, "marking bill paid")
	}
	// either the bill does not exist or it is no longer pending
	n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return billing.Bill{}, errors.Wrap(err, "counting bills")
	}
	if n == 0 {
		return billing.Bill{}, billing.ErrNotFound
	}
	return billing.Bill{}, billing.ErrAlreadyPaid
}
