package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/analytics"
)

type analyticsApi struct {
	svc *analytics.Service
	loc *time.Location
}

func registerAnalyticsAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *analytics.Service, loc *time.Location) {
	api := analyticsApi{svc: svc, loc: loc}

	ag := g.Group("/analytics", jwt, auth.managersOnly())
	ag.GET("/overview", api.overview)
	ag.GET("/attendance-trends", api.attendanceTrends)
	ag.GET("/revenue-trends", api.revenueTrends)
	ag.GET("/feedback", api.feedback)
	ag.GET("/complaints", api.complaints)
	ag.GET("/meal-popularity", api.mealPopularity)
}

// period binds ?month&year, defaulting to the current year.
func (api *analyticsApi) period(ctx echo.Context) (core.Period, error) {
	var p core.Period
	if err := ctx.Bind(&p); err != nil {
		return core.Period{}, errors.Wrap(err, "binding to Period")
	}
	if p.Year == 0 {
		p.Year = time.Now().In(api.loc).Year()
	}
	return p, nil
}

// Handlers

func (api *analyticsApi) overview(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Overview(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing overview")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) attendanceTrends(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.AttendanceTrends(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing attendance trends")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) revenueTrends(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.RevenueTrends(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing revenue trends")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) feedback(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Feedback(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing feedback analytics")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) complaints(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.Complaints(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing complaint analytics")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *analyticsApi) mealPopularity(ctx echo.Context) error {
	p, err := api.period(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.MealPopularity(ctx.Request().Context(), contextUser(ctx), p)
	if err != nil {
		return errors.Wrap(err, "computing meal popularity")
	}
	return ctx.JSON(http.StatusOK, res)
}
