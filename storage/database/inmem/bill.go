package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/hostelmess/core/billing"
)

type billRepository struct {
	db *billTable
}

var _ billing.Repository = (*billRepository)(nil) // interface compliance check

func NewBillRepository(db *DB) *billRepository {
	return &billRepository{db: db.bill}
}

func copyBill(b billing.Bill) billing.Bill {
	bd := make(billing.Breakdown, len(b.Breakdown))
	for k, v := range b.Breakdown {
		bd[k] = v
	}
	b.Breakdown = bd
	return b
}

func (repo *billRepository) exists(studentID string, month, year int) bool {
	for _, b := range repo.db.table {
		if b.StudentID == studentID && b.Month == month && b.Year == year {
			return true
		}
	}
	return false
}

func (repo *billRepository) BillExists(_ context.Context, studentID string, month, year int) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.exists(studentID, month, year), nil
}

func (repo *billRepository) CreateBill(_ context.Context, b billing.Bill) (billing.Bill, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.exists(b.StudentID, b.Month, b.Year) {
		return billing.Bill{}, billing.ErrBillExists
	}
	b = copyBill(b)
	b.ID = newID()
	repo.db.table[b.ID] = &b
	return copyBill(b), nil
}

func (repo *billRepository) GetBill(_ context.Context, id string) (billing.Bill, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.table[id]; ok {
		return copyBill(*b), nil
	}
	return billing.Bill{}, billing.ErrNotFound
}

func (repo *billRepository) QueryBills(_ context.Context, f billing.Filter) ([]billing.Bill, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	bills := make([]billing.Bill, 0)
	for _, b := range repo.db.table {
		switch {
		case f.StudentID != "" && b.StudentID != f.StudentID:
		case f.Month != 0 && b.Month != f.Month:
		case f.Year != 0 && b.Year != f.Year:
		case f.Status != "" && b.Status != f.Status:
		default:
			bills = append(bills, copyBill(*b))
		}
	}
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].Year != bills[j].Year {
			return bills[i].Year > bills[j].Year
		}
		if bills[i].Month != bills[j].Month {
			return bills[i].Month > bills[j].Month
		}
		return bills[i].StudentID < bills[j].StudentID
	})
	return bills, nil
}

func (repo *billRepository) MarkBillPaid(_ context.Context, id string, p billing.Payment) (billing.Bill, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	b, ok := repo.db.table[id]
	if !ok {
		return billing.Bill{}, billing.ErrNotFound
	}
	if b.IsPaid() {
		return billing.Bill{}, billing.ErrAlreadyPaid
	}
	paidAt := p.PaidAt
	b.Status = billing.StatusPaid
	b.PaidAt = &paidAt
	b.PaymentMethod = p.Method
	b.TransactionID = p.TransactionID
	b.UpdatedAt = paidAt
	return copyBill(*b), nil
}

// allBills is used by the analytics source.
func (repo *billRepository) allBills() []billing.Bill {
	repo.db.RLock()
	defer repo.db.RUnlock()

	bills := make([]billing.Bill, 0, len(repo.db.table))
	for _, b := range repo.db.table {
		bills = append(bills, *b)
	}
	return bills
}
