package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/progress"
)

type progressApi struct {
	svc      progress.Service
	validate *validator.Validate
}

func registerProgressAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := progressApi{svc: deps.ProgressSvc, validate: deps.Validate}

	pg := g.Group("/progress", chain(authed, onboardedMiddleware)...)
	pg.GET("", api.state)
	pg.PATCH("", api.update)
	pg.GET("/summary", api.summary, premiumMiddleware)
	pg.GET("/revisions", api.revisions)
	pg.POST("/revisions", api.logRevision)
}

func (api *progressApi) state(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	state, err := api.svc.Get(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading progress")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *progressApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data ProgressUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressUpdate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cp, err := api.svc.Update(ctx.Request().Context(), usr, data.Subject, data.Chapter, data.Patch)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, cp)
}

func (api *progressApi) summary(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.Summary(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "summarizing progress")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *progressApi) revisions(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	logs, err := api.svc.Revisions(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading revisions")
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *progressApi) logRevision(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data progress.NewRevisionLog
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRevisionLog")
	}
	data.Subject = core.CleanString(data.Subject, true /* lower */)
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	log, err := api.svc.LogRevision(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "logging revision")
	}
	return ctx.JSON(http.StatusCreated, log)
}

// ProgressUpdate is a partial update of one chapter's progress.
type ProgressUpdate struct {
	Subject string `json:"subject" validate:"required,subject"`
	Chapter string `json:"chapter" validate:"required,max=200"`
	progress.Patch
}

func (pu *ProgressUpdate) Validate(validate *validator.Validate) error {
	pu.Subject = core.CleanString(pu.Subject, true /* lower */)
	pu.Chapter = core.CleanString(pu.Chapter)
	return validate.Struct(pu)
}
