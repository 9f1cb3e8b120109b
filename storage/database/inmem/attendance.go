package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func keyOf(r attendance.Record) attendance.Key {
	k := r.Key()
	k.Date = k.Date.UTC()
	return k
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if id, ok := repo.db.keys[keyOf(r)]; ok {
		rec := repo.db.table[id]
		rec.Present = r.Present
		rec.Approved = r.Approved
		rec.MarkedBy = r.MarkedBy
		if r.Approved {
			rec.ApprovedBy = r.ApprovedBy
			rec.ApprovedAt = r.ApprovedAt
		}
		rec.UpdatedAt = r.UpdatedAt
		return *rec, nil
	}
	r.ID = newID()
	repo.db.table[r.ID] = &r
	repo.db.keys[keyOf(r)] = r.ID
	return r, nil
}

func (repo *attendanceRepository) InsertRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.keys[keyOf(r)]; ok {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	r.ID = newID()
	repo.db.table[r.ID] = &r
	repo.db.keys[keyOf(r)] = r.ID
	return r, nil
}

func (repo *attendanceRepository) ApproveRecord(_ context.Context, id, approvedBy string, at time.Time) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.table[id]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	rec.Approved = true
	rec.ApprovedBy = approvedBy
	rec.ApprovedAt = &at
	rec.UpdatedAt = at
	return *rec, nil
}

func matchRecord(r attendance.Record, f attendance.Filter) bool {
	switch {
	case f.StudentID != "" && r.StudentID != f.StudentID:
		return false
	case !f.From.IsZero() && r.Date.Before(f.From):
		return false
	case !f.To.IsZero() && r.Date.After(f.To):
		return false
	case f.MealType != "" && r.MealType != f.MealType:
		return false
	case f.Present != nil && r.Present != *f.Present:
		return false
	case f.Approved != nil && r.Approved != *f.Approved:
		return false
	}
	return true
}

func (repo *attendanceRepository) filter(f attendance.Filter) []attendance.Record {
	records := make([]attendance.Record, 0)
	for _, r := range repo.db.table {
		if matchRecord(*r, f) {
			records = append(records, *r)
		}
	}
	return records
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, f attendance.Filter) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	records := repo.filter(f)
	sort.Slice(records, func(i, j int) bool {
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

func (repo *attendanceRepository) CountPresentByMeal(_ context.Context, studentID string, from, to time.Time) (map[core.MealType]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	present := true
	records := repo.filter(attendance.Filter{StudentID: studentID, From: from, To: to, Present: &present})
	return lo.CountValuesBy(records, func(r attendance.Record) core.MealType { return r.MealType }), nil
}
