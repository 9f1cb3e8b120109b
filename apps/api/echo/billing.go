package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core/billing"
)

type billingApi struct {
	svc      *billing.Service
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *billing.Service, validate *validator.Validate) {
	api := billingApi{svc: svc, validate: validate}

	bg := g.Group("/bills", jwt, auth.authed())
	bg.POST("/generate", api.generate, auth.adminOnly())
	bg.GET("", api.query)
	bg.GET("/:id", api.retrieve)
	bg.POST("/:id/pay", api.pay, auth.adminOnly())
}

// Handlers

func (api *billingApi) generate(ctx echo.Context) error {
	var data billing.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	run, err := api.svc.Generate(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "generating bills")
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *billingApi) query(ctx echo.Context) error {
	var filter billing.Filter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to Filter")
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	bills, err := api.svc.Query(ctx.Request().Context(), contextUser(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying bills")
	}
	if bills == nil {
		bills = []billing.Bill{}
	}
	return ctx.JSON(http.StatusOK, bills)
}

func (api *billingApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.GetByID(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting bill")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *billingApi) pay(ctx echo.Context) error {
	var data billing.Payment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Payment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.MarkPaid(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "marking bill paid")
	}
	return ctx.JSON(http.StatusOK, b)
}
