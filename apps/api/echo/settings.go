package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/settings"
)

type settingsApi struct {
	svc      *settings.Service
	validate *validator.Validate
}

func registerSettingsAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *settings.Service, validate *validator.Validate) {
	api := settingsApi{svc: svc, validate: validate}

	sg := g.Group("/settings", jwt, auth.authed())
	sg.GET("", api.retrieve)
	sg.PUT("", api.update, auth.adminOnly())
	sg.POST("/holidays", api.addHoliday, auth.adminOnly())
	sg.DELETE("/holidays/:id", api.removeHoliday, auth.adminOnly())
	sg.GET("/meal-confirmation", api.mealConfirmation)
}

// Handlers

func (api *settingsApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) update(ctx echo.Context) error {
	var data settings.UpdateSettings
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) addHoliday(ctx echo.Context) error {
	var data settings.NewHoliday
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewHoliday")
	}
	if err := data.Validate(api.validate, api.svc.Location()); err != nil {
		return err
	}

	s, err := api.svc.AddHoliday(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "adding holiday")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *settingsApi) removeHoliday(ctx echo.Context) error {
	s, err := api.svc.RemoveHoliday(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "removing holiday")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) mealConfirmation(ctx echo.Context) error {
	date, err := core.ParseDate(ctx.QueryParam("date"), api.svc.Location())
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "date", Error: err.Error()})
	}

	d, err := api.svc.CanConfirmMeal(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "checking meal confirmation")
	}
	return ctx.JSON(http.StatusOK, d)
}
