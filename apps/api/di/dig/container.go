package dig_container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/hostelmess/apps/api/echo"
	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/audit"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
	emailsvc "github.com/trezcool/hostelmess/services/email"
	locksvc "github.com/trezcool/hostelmess/services/lock"
	logsvc "github.com/trezcool/hostelmess/services/logger"
	schedulersvc "github.com/trezcool/hostelmess/services/scheduler"
	mongodb "github.com/trezcool/hostelmess/storage/database/mongo"
)

// ServerParams are the dependencies of the API server.
type ServerParams struct {
	dig.In
	Conf         *core.Config
	Logger       core.Logger
	Validate     *validator.Validate
	Translator   ut.Translator
	UserSvc      *user.Service
	Ledger       *attendance.Service
	BillingSvc   *billing.Service
	SettingsSvc  *settings.Service
	AnalyticsSvc *analytics.Service
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(conf)
}

func newDB(conf *core.Config, logger core.Logger) (*mongo.Client, *mongo.Database) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, db, err := mongodb.Open(ctx, conf)
	if err == nil {
		err = mongodb.EnsureIndexes(ctx, db)
	}
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return client, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newLocker returns a nil Locker when redis is not configured.
func newLocker(conf *core.Config, logger core.Logger) billing.Locker {
	client := locksvc.NewRedisClient(conf)
	if client == nil {
		return nil
	}
	return locksvc.NewRedisLocker(client, conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newUserService(db *mongo.Database) *user.Service {
	return user.NewService(mongodb.NewUserRepository(db))
}

func newSettingsService(conf *core.Config, db *mongo.Database, logger core.Logger) *settings.Service {
	var auditor audit.Auditor = mongodb.NewAuditRepository(db)
	return settings.NewService(mongodb.NewSettingsRepository(db), conf, auditor, logger)
}

func newLedger(conf *core.Config, db *mongo.Database, users *user.Service, setSvc *settings.Service) *attendance.Service {
	return attendance.NewService(mongodb.NewAttendanceRepository(db, conf.Location), users, setSvc, conf.Location)
}

func newBillingService(
	conf *core.Config,
	db *mongo.Database,
	users *user.Service,
	ledger *attendance.Service,
	setSvc *settings.Service,
	locker billing.Locker,
	mailer core.EmailService,
	logger core.Logger,
) *billing.Service {
	return billing.NewService(mongodb.NewBillRepository(db), users, ledger, setSvc, locker, mailer, logger, conf.Location)
}

func newAnalyticsService(conf *core.Config, db *mongo.Database) *analytics.Service {
	return analytics.NewService(mongodb.NewAnalyticsSource(db, conf.Location), conf.Location)
}

func newScheduler(conf *core.Config, billSvc *billing.Service, logger core.Logger) *schedulersvc.Scheduler {
	return schedulersvc.New(conf, billSvc, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf, echoapi.Deps{
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		UserSvc:      p.UserSvc,
		Ledger:       p.Ledger,
		BillingSvc:   p.BillingSvc,
		SettingsSvc:  p.SettingsSvc,
		AnalyticsSvc: p.AnalyticsSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newLocker))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newUserService))
	must(c.Provide(newSettingsService))
	must(c.Provide(newLedger))
	must(c.Provide(newBillingService))
	must(c.Provide(newAnalyticsService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
