package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
	"github.com/trezcool/hostelmess/core/attendance"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/settings"
	"github.com/trezcool/hostelmess/core/user"
)

// Deps holds the services the API is built on.
type Deps struct {
	Logger       core.Logger
	Validate     *validator.Validate
	Translator   ut.Translator
	UserSvc      *user.Service
	Ledger       *attendance.Service
	BillingSvc   *billing.Service
	SettingsSvc  *settings.Service
	AnalyticsSvc *analytics.Service
}

type Server struct {
	conf     *core.Config
	deps     Deps
	app      *echo.Echo
	auth     *authenticator
	shutdown chan os.Signal
	errors   chan error
}

func NewServer(conf *core.Config, deps Deps) *Server {
	s := &Server{
		conf:     conf,
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(conf, deps.UserSvc),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.auth, s.SignalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)

	registerUserAPI(v1, jwt, s.auth, s.deps.UserSvc, s.deps.Validate)
	registerAttendanceAPI(v1, jwt, s.auth, s.deps.Ledger, s.deps.Validate, s.conf.Location)
	registerBillingAPI(v1, jwt, s.auth, s.deps.BillingSvc, s.deps.Validate)
	registerSettingsAPI(v1, jwt, s.auth, s.deps.SettingsSvc, s.deps.Validate)
	registerAnalyticsAPI(v1, jwt, s.auth, s.deps.AnalyticsSvc, s.conf.Location)
}

// Start blocks serving requests; a listen failure is reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the process owning the Server to stop it.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
