package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/hostelmess/core/user"
)

// roleMiddleware loads the context User and lets the request through if allow accepts them.
func (a *authenticator) roleMiddleware(allow func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := a.getContextUser(ctx)
			if err != nil {
				return err
			}
			if allow(usr) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func (a *authenticator) authed() echo.MiddlewareFunc {
	return a.roleMiddleware(func(user.User) bool { return true })
}

func (a *authenticator) adminOnly() echo.MiddlewareFunc {
	return a.roleMiddleware(user.User.IsAdmin)
}

func (a *authenticator) managersOnly() echo.MiddlewareFunc {
	return a.roleMiddleware(user.User.CanManage)
}

func (a *authenticator) studentsOnly() echo.MiddlewareFunc {
	return a.roleMiddleware(user.User.IsStudent)
}

// contextUser returns the User stored by one of the role middlewares.
func contextUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}
