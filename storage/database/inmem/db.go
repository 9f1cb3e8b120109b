package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/audit"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
)

type (
	DB struct {
		user       *userTable
		attendance *attendanceTable
		bill       *billTable
		settings   *settingsTable
		feedback   *feedbackTable
		complaint  *complaintTable
		menu       *menuTable
		audit      *auditTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	attendanceTable struct {
		sync.RWMutex
		table map[string]*attendance.Record
		keys  map[attendance.Key]string // natural key -> id
	}

	billTable struct {
		sync.RWMutex
		table map[string]*billing.Bill
	}

	settingsTable struct {
		sync.Mutex
		doc *settings.Settings
	}

	feedbackTable struct {
		sync.RWMutex
		rows []analytics.FeedbackEntry
	}

	complaintTable struct {
		sync.RWMutex
		rows []analytics.Complaint
	}

	menuTable struct {
		sync.RWMutex
		rows []analytics.MenuEntry
	}

	auditTable struct {
		sync.Mutex
		rows []audit.Entry
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		attendance: &attendanceTable{table: make(map[string]*attendance.Record), keys: make(map[attendance.Key]string)},
		bill:       &billTable{table: make(map[string]*billing.Bill)},
		settings:   &settingsTable{},
		feedback:   &feedbackTable{},
		complaint:  &complaintTable{},
		menu:       &menuTable{},
		audit:      &auditTable{},
	}
	return db, nil
}

func newID() string {
	return uuid.New().String()
}
