package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/syllabus"
)

type syllabusApi struct {
	svc      syllabus.Service
	validate *validator.Validate
}

func registerSyllabusAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := syllabusApi{svc: deps.SyllabusSvc, validate: deps.Validate}

	sg := g.Group("/syllabus", chain(authed, onboardedMiddleware)...)
	sg.GET("", api.tree)
	sg.GET("/search", api.search)
	sg.GET("/:subject", api.subject)
}

// tree returns the syllabus of the user's exam.
func (api *syllabusApi) tree(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	tree, err := api.svc.Tree(ctx.Request().Context(), usr.Exam)
	if err != nil {
		return errors.Wrap(err, "loading syllabus")
	}
	return ctx.JSON(http.StatusOK, tree)
}

func (api *syllabusApi) subject(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	subject, err := api.svc.Get(ctx.Request().Context(), usr.Exam, ctx.Param("subject"))
	if err != nil {
		return errors.Wrap(err, "loading subject")
	}
	return ctx.JSON(http.StatusOK, subject)
}

func (api *syllabusApi) search(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	matches, err := api.svc.SearchChapters(ctx.Request().Context(), usr.Exam, ctx.QueryParam("q"))
	if err != nil {
		return errors.Wrap(err, "searching chapters")
	}
	return ctx.JSON(http.StatusOK, matches)
}
