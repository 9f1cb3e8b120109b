package logsvc

import (
	"io"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/user"
)

// RollbarLogger reports to rollbar and writes every event locally through logrus.
type RollbarLogger struct {
	std    *logrus.Logger
	report bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(!conf.Debug && conf.RollbarToken != "")

	std := logrus.New()
	std.SetOutput(os.Stdout)
	if conf.Debug {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetFormatter(&logrus.JSONFormatter{})
		std.SetLevel(logrus.InfoLevel)
	}
	return &RollbarLogger{std: std, report: true}
}

// NewNopLogger discards every event.
func NewNopLogger() *RollbarLogger {
	std := logrus.New()
	std.SetOutput(io.Discard)
	return &RollbarLogger{std: std}
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, *logrus.Entry) {
	var usrSet bool
	entry := logrus.NewEntry(l.std)
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			// set logged in User
			if !usrSet { // only set one User
				if l.report {
					rollbar.SetPerson(a.ID, a.Name, a.Email)
				}
				entry = entry.WithField("user", a.ID)
				usrSet = true
			}
			continue
		case error:
			entry = entry.WithError(a)
		case map[string]interface{}:
			entry = entry.WithFields(logrus.Fields(a))
		}
		newArgs = append(newArgs, arg)
	}
	if !usrSet && l.report {
		rollbar.ClearPerson()
	}
	return newArgs, entry
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rArgs, entry := l.prepare(msg, args)
	if l.report {
		rollbar.Debug(rArgs...)
	}
	entry.Debug(msg)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rArgs, entry := l.prepare(msg, args)
	if l.report {
		rollbar.Info(rArgs...)
	}
	entry.Info(msg)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rArgs, entry := l.prepare(msg, args)
	if l.report {
		rollbar.Warning(rArgs...)
	}
	entry.Warn(msg)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rArgs, entry := l.prepare(msg, args)
	if l.report {
		rollbar.Error(rArgs...)
	}
	entry.Error(msg)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rArgs, entry := l.prepare(msg, args)
	if l.report {
		rollbar.Critical(rArgs...)
		rollbar.Wait()
	}
	entry.Fatal(msg)
}
