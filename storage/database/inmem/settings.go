package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/settings"
)

type settingsRepository struct {
	db *settingsTable
}

var _ settings.Repository = (*settingsRepository)(nil) // interface compliance check

func NewSettingsRepository(db *DB) *settingsRepository {
	return &settingsRepository{db: db.settings}
}

func copySettings(s settings.Settings) settings.Settings {
	hs := make([]settings.Holiday, len(s.Holidays))
	copy(hs, s.Holidays)
	s.Holidays = hs
	return s
}

func (repo *settingsRepository) getOrCreate(defaults settings.Settings) *settings.Settings {
	if repo.db.doc == nil {
		s := copySettings(defaults)
		repo.db.doc = &s
	}
	return repo.db.doc
}

func (repo *settingsRepository) GetOrCreateSettings(_ context.Context, defaults settings.Settings) (settings.Settings, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	return copySettings(*repo.getOrCreate(defaults)), nil
}

func (repo *settingsRepository) UpdateSettings(_ context.Context, s settings.Settings) (settings.Settings, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	doc := repo.getOrCreate(s)
	holidays := doc.Holidays // holidays are only changed individually
	*doc = copySettings(s)
	doc.Holidays = holidays
	return copySettings(*doc), nil
}

func (repo *settingsRepository) AddHoliday(_ context.Context, h settings.Holiday, updatedBy string, at time.Time) (settings.Settings, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	doc := repo.db.doc
	if doc == nil {
		return settings.Settings{}, core.NewNotFoundError("settings not found")
	}
	for _, existing := range doc.Holidays {
		if existing.Date.Equal(h.Date) {
			return settings.Settings{}, settings.ErrHolidayExists
		}
	}
	doc.Holidays = append(doc.Holidays, h)
	settings.SortHolidays(doc.Holidays)
	doc.UpdatedBy = updatedBy
	doc.UpdatedAt = at
	return copySettings(*doc), nil
}

func (repo *settingsRepository) RemoveHoliday(_ context.Context, id string, updatedBy string, at time.Time) (settings.Settings, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	doc := repo.db.doc
	if doc == nil {
		return settings.Settings{}, settings.ErrHolidayNotFound
	}
	idx := -1
	for i, h := range doc.Holidays {
		if h.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return settings.Settings{}, settings.ErrHolidayNotFound
	}
	doc.Holidays = append(doc.Holidays[:idx], doc.Holidays[idx+1:]...)
	doc.UpdatedBy = updatedBy
	doc.UpdatedAt = at
	return copySettings(*doc), nil
}
