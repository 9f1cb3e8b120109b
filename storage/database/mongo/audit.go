package mongodb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/hostelmess/core/audit"
)

type auditDoc struct {
	ID         string    `bson:"_id"`
	EntityType string    `bson:"entity_type"`
	EntityID   string    `bson:"entity_id"`
	Action     string    `bson:"action"`
	Actor      string    `bson:"actor"`
	Before     bson.M    `bson:"before,omitempty"`
	After      bson.M    `bson:"after,omitempty"`
	At         time.Time `bson:"at"`
}

type auditRepository struct {
	coll *mongo.Collection
}

var _ audit.Auditor = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *mongo.Database) *auditRepository {
	return &auditRepository{coll: db.Collection(auditLogsColl)}
}

// snapshot stores v through its JSON form so decimals keep their exact string value.
func snapshot(v interface{}) (bson.M, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err = bson.UnmarshalExtJSON(data, false, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (repo *auditRepository) Record(ctx context.Context, entry audit.Entry) error {
	before, err := snapshot(entry.Before)
	if err != nil {
		return errors.Wrap(err, "encoding audit before")
	}
	after, err := snapshot(entry.After)
	if err != nil {
		return errors.Wrap(err, "encoding audit after")
	}
	doc := auditDoc{
		ID:         entry.ID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Actor:      entry.Actor,
		Before:     before,
		After:      after,
		At:         entry.At,
	}
	if _, err = repo.coll.InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "inserting audit entry")
	}
	return nil
}
