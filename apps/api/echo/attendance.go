package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
	loc      *time.Location
}

func registerAttendanceAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *attendance.Service,
	validate *validator.Validate,
	loc *time.Location,
) {
	api := attendanceApi{svc: svc, validate: validate, loc: loc}

	ag := g.Group("/attendance", jwt)
	ag.POST("", api.mark, auth.managersOnly())
	ag.POST("/bulk", api.markBulk, auth.managersOnly())
	ag.POST("/self", api.selfMark, auth.studentsOnly())
	ag.POST("/:id/approve", api.approve, auth.managersOnly())
	ag.GET("/report", api.report, auth.authed())
}

// Handlers

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.Mark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Mark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Mark(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) markBulk(ctx echo.Context) error {
	var data attendance.BulkMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.MarkBulk(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "bulk marking attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attendanceApi) selfMark(ctx echo.Context) error {
	var data attendance.SelfMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SelfMark")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.SelfMark(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "self marking attendance")
	}
	return ctx.JSON(http.StatusCreated, rec)
}

func (api *attendanceApi) approve(ctx echo.Context) error {
	rec, err := api.svc.Approve(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) report(ctx echo.Context) error {
	var query attendance.ReportQuery
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to ReportQuery")
	}
	filter, err := query.Filter(api.loc)
	if err != nil {
		return err
	}

	report, err := api.svc.Report(ctx.Request().Context(), contextUser(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "building attendance report")
	}
	return ctx.JSON(http.StatusOK, report)
}
