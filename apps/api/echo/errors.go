package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// errorResponse maps a handled error to its status code and JSON body.
// ok is false for errors that must be reported as server errors.
func errorResponse(err error, translator ut.Translator) (code int, body interface{}, ok bool) {
	switch e := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if e == middleware.ErrJWTMissing { // echo answers 400 for a missing token
			return http.StatusUnauthorized, e.Message, true
		}
		if inner, isHTTP := e.Internal.(*echo.HTTPError); isHTTP {
			e = inner
		}
		return e.Code, e.Message, true
	case validator.ValidationErrors:
		fields := make(map[string]string, len(e))
		for _, fe := range e {
			fields[fe.Field()] = fe.Translate(translator)
		}
		return http.StatusBadRequest, fields, true
	case *core.ValidationError:
		if len(e.Fields) == 0 {
			return http.StatusBadRequest, e.Error(), true
		}
		fields := make(map[string]string, len(e.Fields))
		for _, fe := range e.Fields {
			fields[fe.Field] = fe.Error
		}
		return http.StatusBadRequest, fields, true
	case *core.PolicyDeniedError:
		return http.StatusForbidden, e.Reason, true
	case *core.PermissionError:
		return http.StatusForbidden, e.Error(), true
	case *core.NotFoundError:
		return http.StatusNotFound, e.Error(), true
	case *core.ConflictError:
		return http.StatusConflict, e.Error(), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, auth *authenticator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, body, ok := errorResponse(err, translator)
		if !ok {
			var usr user.User
			if claims, cErr := auth.getContextClaims(ctx); cErr == nil {
				usr = user.User{ID: claims.Subject, Name: claims.Name, Email: claims.Email, Role: claims.Role}
			}
			logger.Error(
				"request failed",
				errors.Wrap(err, "request failed"),
				usr,
				map[string]interface{}{"method": ctx.Request().Method, "path": ctx.Path()},
			)
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				body = err.Error()
			}
		}
		if msg, isStr := body.(string); isStr {
			body = echo.Map{"error": msg}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, body)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
