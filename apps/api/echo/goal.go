package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/services/metrics"
)

type goalApi struct {
	svc      goal.Service
	validate *validator.Validate
}

func registerGoalAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := goalApi{svc: deps.GoalSvc, validate: deps.Validate}

	gg := g.Group("/goals", chain(authed, onboardedMiddleware)...)
	gg.GET("", api.calendar)
	gg.PUT("", api.setGoals)
	gg.GET("/:date", api.retrieve)
	gg.POST("/:date/complete/:index", api.complete)
}

// calendar returns the goal days between the `from` and `to` query params (inclusive).
func (api *goalApi) calendar(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	goals, err := api.svc.Calendar(ctx.Request().Context(), usr, ctx.QueryParam("from"), ctx.QueryParam("to"))
	if err != nil {
		return errors.Wrap(err, "loading calendar")
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *goalApi) setGoals(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data goal.SetGoals
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetGoals")
	}
	if data.Date == "" {
		data.Date = api.svc.Today()
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	dg, err := api.svc.SetGoals(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "setting goals")
	}
	return ctx.JSON(http.StatusOK, dg)
}

// dateParam returns the :date path param. "today" is the current calendar day.
func (api *goalApi) dateParam(ctx echo.Context) string {
	if date := ctx.Param("date"); date != "today" {
		return date
	}
	return api.svc.Today()
}

func (api *goalApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	dg, err := api.svc.Get(ctx.Request().Context(), usr, api.dateParam(ctx))
	if err != nil {
		return errors.Wrap(err, "loading goals")
	}
	return ctx.JSON(http.StatusOK, dg)
}

func (api *goalApi) complete(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		return errHttpNotFound
	}

	res, err := api.svc.CompleteSubGoal(ctx.Request().Context(), usr, api.dateParam(ctx), index)
	if err != nil {
		return errors.Wrap(err, "completing goal")
	}
	if res.AllCompleted {
		metrics.GoalsCompleted.Inc()
	}
	return ctx.JSON(http.StatusOK, res)
}
