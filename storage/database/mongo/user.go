package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/hostelmess/core/user"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	Role         string             `bson:"role"`
	IsActive     bool               `bson:"is_active"`
	RoomNumber   string             `bson:"room_number,omitempty"`
	PasswordHash []byte             `bson:"password_hash"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func boilUser(usr user.User) userDoc {
	oid, _ := objectIDFromHex(usr.ID)
	return userDoc{
		ID:           oid,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		RoomNumber:   usr.RoomNumber,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}
}

func unboilUser(doc userDoc) user.User {
	return user.User{
		ID:           doc.ID.Hex(),
		Name:         doc.Name,
		Email:        doc.Email,
		Role:         doc.Role,
		IsActive:     doc.IsActive,
		RoomNumber:   doc.RoomNumber,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

type userRepository struct {
	coll *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{coll: db.Collection(usersColl)}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string) error {
	n, err := repo.coll.CountDocuments(ctx, bson.M{"email": email}, options.Count().SetLimit(1))
	if err != nil {
		return errors.Wrap(err, "counting users")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	doc := boilUser(usr)
	doc.ID = primitive.NilObjectID
	res, err := repo.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return unboilUser(doc), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	q := bson.M{}
	switch {
	case filter.ID != "":
		oid, ok := objectIDFromHex(filter.ID)
		if !ok {
			return user.User{}, user.ErrNotFound
		}
		q["_id"] = oid
	case filter.Email != "":
		q["email"] = filter.Email
	default:
		return user.User{}, user.ErrNotFound
	}

	var doc userDoc
	if err := repo.coll.FindOne(ctx, q).Decode(&doc); err != nil {
		return user.User{}, trapNoDocsErr(err, user.ErrNotFound)
	}
	return unboilUser(doc), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	q := bson.M{}
	if filter.Role != "" {
		q["role"] = filter.Role
	}
	if filter.IsActive != nil {
		q["is_active"] = *filter.IsActive
	}

	cur, err := repo.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var docs []userDoc
	if err = cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decoding users")
	}
	users := make([]user.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, unboilUser(doc))
	}
	return users, nil
}
