package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/contact"
)

type contactApi struct {
	svc      contact.Service
	validate *validator.Validate
}

func registerContactAPI(g *echo.Group, limit echo.MiddlewareFunc, deps ServerDeps) {
	api := contactApi{svc: deps.ContactSvc, validate: deps.Validate}
	g.POST("/contact", api.submit, limit)
}

func (api *contactApi) submit(ctx echo.Context) error {
	var data contact.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting contact form")
	}
	return ctx.JSON(http.StatusCreated, sub)
}
