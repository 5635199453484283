package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/mistake"
)

type mistakeApi struct {
	svc      mistake.Service
	validate *validator.Validate
}

func registerMistakeAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := mistakeApi{svc: deps.MistakeSvc, validate: deps.Validate}

	mg := g.Group("/mistakes", chain(authed, onboardedMiddleware, premiumMiddleware)...)
	mg.GET("", api.query)
	mg.POST("", api.create)
	mg.GET("/tags", api.tags)
	mg.POST("/:id/toggle", api.toggle)
	mg.DELETE("/:id", api.destroy)
}

func (api *mistakeApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var filter mistake.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []mistake.Mistake{})
	}

	mistakes, err := api.svc.List(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying mistakes")
	}
	return ctx.JSON(http.StatusOK, mistakes)
}

func (api *mistakeApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data mistake.NewMistake
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMistake")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating mistake")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *mistakeApi) tags(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	tags, err := api.svc.Tags(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading tags")
	}
	return ctx.JSON(http.StatusOK, tags)
}

func (api *mistakeApi) toggle(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.ToggleStatus(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling mistake")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *mistakeApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting mistake")
	}
	return ctx.NoContent(http.StatusNoContent)
}
