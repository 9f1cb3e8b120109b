// Package testutil wires in-memory stores and services for tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/audit"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
	"github.com/trezcool/hostelmess/services/email"
	"github.com/trezcool/hostelmess/services/logger"
	"github.com/trezcool/hostelmess/storage/database/inmem"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Env holds in-memory stores and the services built on them.
type Env struct {
	Conf      *core.Config
	DB        *inmemdb.DB
	Logger    core.Logger
	Mailer    *emailsvc.MockService
	Clock     *Clock
	Validate  *validator.Validate
	Trans     ut.Translator
	Auditor   interface{ Entries() []audit.Entry }
	UserRepo  user.Repository
	Users     *user.Service
	Settings  *settings.Service
	Ledger    *attendance.Service
	Billing   *billing.Service
	Analytics *analytics.Service
}

// NewEnv builds an Env around a fresh in-memory DB. The clock starts at now.
func NewEnv(t *testing.T, now time.Time) *Env {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	clock := NewClock(now)
	auditRepo := inmemdb.NewAuditRepository(db)
	mailer := emailsvc.NewMockService(conf, logger)
	validate, translator := NewTranslatedValidator()

	userRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(userRepo)
	setSvc := settings.NewService(inmemdb.NewSettingsRepository(db), conf, auditRepo, logger)
	setSvc.SetClock(clock.Now)
	ledger := attendance.NewService(inmemdb.NewAttendanceRepository(db), usrSvc, setSvc, conf.Location)
	ledger.SetClock(clock.Now)
	billSvc := billing.NewService(inmemdb.NewBillRepository(db), usrSvc, ledger, setSvc, nil, mailer, logger, conf.Location)

	return &Env{
		Conf:      conf,
		DB:        db,
		Logger:    logger,
		Mailer:    mailer,
		Clock:     clock,
		Validate:  validate,
		Trans:     translator,
		Auditor:   auditRepo,
		UserRepo:  userRepo,
		Users:     usrSvc,
		Settings:  setSvc,
		Ledger:    ledger,
		Billing:   billSvc,
		Analytics: analytics.NewService(inmemdb.NewAnalyticsSource(db), conf.Location),
	}
}

func NewValidator() *validator.Validate {
	validate, _ := NewTranslatedValidator()
	return validate
}

// NewTranslatedValidator returns a validator along with the translator its messages are registered on.
func NewTranslatedValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(t *testing.T, repo user.Repository, name, email, role string, isActive bool, pwd ...string) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(pwd) > 0 {
		if err := usr.SetPassword(pwd[0]); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func Bool(b bool) *bool { return &b }

// Date returns midnight of the given day in UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// PrepareMongo connects to MONGO_TEST_URI and returns a fresh database dropped at cleanup.
// The test is skipped when MONGO_TEST_URI is unset.
func PrepareMongo(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("PrepareMongo() failed: %v", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		t.Fatalf("PrepareMongo() failed: %v", err)
	}

	db := client.Database(core.NewTestConfig().Database.Name)
	if err = db.Drop(ctx); err != nil {
		t.Fatalf("PrepareMongo() failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}
