package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/revision"
)

type revisionApi struct {
	svc      revision.Service
	validate *validator.Validate
}

func registerRevisionAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := revisionApi{svc: deps.RevisionSvc, validate: deps.Validate}

	rg := g.Group("/revision", chain(authed, onboardedMiddleware, premiumMiddleware)...)
	rg.GET("/unlocked", api.unlocked)
	rg.POST("/timetable", api.timetable)
}

func (api *revisionApi) unlocked(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.Unlocked(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing unlocked subjects")
	}
	return ctx.JSON(http.StatusOK, map[string][]string{"subjects": subjects})
}

func (api *revisionApi) timetable(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data revision.NewTimetable
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTimetable")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tt, err := api.svc.GenerateTimetable(ctx.Request().Context(), usr, data.Subject)
	if err != nil {
		return errors.Wrap(err, "generating timetable")
	}
	return ctx.JSON(http.StatusOK, tt)
}
