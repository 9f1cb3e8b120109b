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
	"github.com/trezcool/hostelmess/core/settings"
)

// settingsID is the _id of the only document of the settings collection.
const settingsID = "settings"

type (
	ratesDoc struct {
		Breakfast primitive.Decimal128 `bson:"breakfast"`
		Lunch     primitive.Decimal128 `bson:"lunch"`
		Dinner    primitive.Decimal128 `bson:"dinner"`
	}

	holidayDoc struct {
		ID     string    `bson:"id"`
		Date   time.Time `bson:"date"`
		Reason string    `bson:"reason"`
	}

	settingsFields struct {
		MealRates        ratesDoc     `bson:"meal_rates"`
		CutoffTime       string       `bson:"cutoff_time"`
		CutoffDaysBefore int          `bson:"cutoff_days_before"`
		Holidays         []holidayDoc `bson:"holidays"`
		MessName         string       `bson:"mess_name"`
		MessAddress      string       `bson:"mess_address"`
		ContactEmail     string       `bson:"contact_email"`
		ContactPhone     string       `bson:"contact_phone"`
		UpdatedBy        string       `bson:"updated_by"`
		UpdatedAt        time.Time    `bson:"updated_at"`
	}

	settingsDoc struct {
		ID             string `bson:"_id"`
		settingsFields `bson:",inline"`
	}
)

func boilHoliday(h settings.Holiday) holidayDoc {
	return holidayDoc{ID: h.ID, Date: h.Date, Reason: h.Reason}
}

func boilSettings(s settings.Settings) settingsFields {
	holidays := make([]holidayDoc, 0, len(s.Holidays))
	for _, h := range s.Holidays {
		holidays = append(holidays, boilHoliday(h))
	}
	return settingsFields{
		MealRates: ratesDoc{
			Breakfast: toDecimal128(s.MealRates.Breakfast),
			Lunch:     toDecimal128(s.MealRates.Lunch),
			Dinner:    toDecimal128(s.MealRates.Dinner),
		},
		CutoffTime:       s.CutoffTime,
		CutoffDaysBefore: s.CutoffDaysBefore,
		Holidays:         holidays,
		MessName:         s.MessName,
		MessAddress:      s.MessAddress,
		ContactEmail:     s.ContactEmail,
		ContactPhone:     s.ContactPhone,
		UpdatedBy:        s.UpdatedBy,
		UpdatedAt:        s.UpdatedAt,
	}
}

func unboilSettings(doc settingsDoc) settings.Settings {
	holidays := make([]settings.Holiday, 0, len(doc.Holidays))
	for _, h := range doc.Holidays {
		holidays = append(holidays, settings.Holiday{ID: h.ID, Date: h.Date, Reason: h.Reason})
	}
	settings.SortHolidays(holidays)
	return settings.Settings{
		MealRates: settings.MealRates{
			Breakfast: fromDecimal128(doc.MealRates.Breakfast),
			Lunch:     fromDecimal128(doc.MealRates.Lunch),
			Dinner:    fromDecimal128(doc.MealRates.Dinner),
		},
		CutoffTime:       doc.CutoffTime,
		CutoffDaysBefore: doc.CutoffDaysBefore,
		Holidays:         holidays,
		MessName:         doc.MessName,
		MessAddress:      doc.MessAddress,
		ContactEmail:     doc.ContactEmail,
		ContactPhone:     doc.ContactPhone,
		UpdatedBy:        doc.UpdatedBy,
		UpdatedAt:        doc.UpdatedAt,
	}
}

type settingsRepository struct {
	coll *mongo.Collection
}

var _ settings.Repository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *mongo.Database) *settingsRepository {
	return &settingsRepository{coll: db.Collection(settingsColl)}
}

func (repo *settingsRepository) findOneAndUpdate(ctx context.Context, filter, update interface{}, upsert bool) (settingsDoc, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(upsert)
	var doc settingsDoc
	err := repo.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	return doc, err
}

func (repo *settingsRepository) GetOrCreateSettings(ctx context.Context, defaults settings.Settings) (settings.Settings, error) {
	filter := bson.M{"_id": settingsID}
	update := bson.M{"$setOnInsert": boilSettings(defaults)}

	doc, err := repo.findOneAndUpdate(ctx, filter, update, true)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent caller created the document first
		doc, err = repo.findOneAndUpdate(ctx, filter, update, true)
	}
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "getting settings")
	}
	return unboilSettings(doc), nil
}

func (repo *settingsRepository) UpdateSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	fields := boilSettings(s)
	set := bson.M{
		"meal_rates":         fields.MealRates,
		"cutoff_time":        fields.CutoffTime,
		"cutoff_days_before": fields.CutoffDaysBefore,
		"mess_name":          fields.MessName,
		"mess_address":       fields.MessAddress,
		"contact_email":      fields.ContactEmail,
		"contact_phone":      fields.ContactPhone,
		"updated_by":         fields.UpdatedBy,
		"updated_at":         fields.UpdatedAt,
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"holidays": bson.A{}},
	}
	doc, err := repo.findOneAndUpdate(ctx, bson.M{"_id": settingsID}, update, true)
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "updating settings")
	}
	return unboilSettings(doc), nil
}

func (repo *settingsRepository) AddHoliday(ctx context.Context, h settings.Holiday, updatedBy string, at time.Time) (settings.Settings, error) {
	filter := bson.M{"_id": settingsID, "holidays.date": bson.M{"$ne": h.Date}}
	update := bson.M{
		"$push": bson.M{"holidays": bson.M{
			"$each": bson.A{boilHoliday(h)},
			"$sort": bson.M{"date": 1},
		}},
		"$set": bson.M{"updated_by": updatedBy, "updated_at": at},
	}
	doc, err := repo.findOneAndUpdate(ctx, filter, update, false)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return settings.Settings{}, repo.missReason(ctx)
		}
		return settings.Settings{}, errors.Wrap(err, "adding holiday")
	}
	return unboilSettings(doc), nil
}

// missReason tells apart a missing settings document from a holiday date conflict.
func (repo *settingsRepository) missReason(ctx context.Context) error {
	n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": settingsID})
	if err != nil {
		return errors.Wrap(err, "counting settings")
	}
	if n == 0 {
		return core.NewNotFoundError("settings not found")
	}
	return settings.ErrHolidayExists
}

func (repo *settingsRepository) RemoveHoliday(ctx context.Context, id string, updatedBy string, at time.Time) (settings.Settings, error) {
	filter := bson.M{"_id": settingsID, "holidays.id": id}
	update := bson.M{
		"$pull": bson.M{"holidays": bson.M{"id": id}},
		"$set":  bson.M{"updated_by": updatedBy, "updated_at": at},
	}
	doc, err := repo.findOneAndUpdate(ctx, filter, update, false)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return settings.Settings{}, settings.ErrHolidayNotFound
		}
		return settings.Settings{}, errors.Wrap(err, "removing holiday")
	}
	return unboilSettings(doc), nil
}
