package inmemdb

import (
	"context"

	"github.com/trezcool/hostelmess/core/audit"
)

type auditRepository struct {
	db *auditTable
}

var _ audit.Auditor = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) Record(_ context.Context, entry audit.Entry) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.rows = append(repo.db.rows, entry)
	return nil
}

// Entries returns the recorded entries, oldest first.
func (repo *auditRepository) Entries() []audit.Entry {
	repo.db.Lock()
	defer repo.db.Unlock()
	entries := make([]audit.Entry, len(repo.db.rows))
	copy(entries, repo.db.rows)
	return entries
}
