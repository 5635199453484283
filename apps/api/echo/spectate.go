package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/mistake"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/user"
)

const spectatedUserKey = "spectated"

type spectateApi struct {
	svc         spectate.Service
	progressSvc progress.Service
	goalSvc     goal.Service
	mistakeSvc  mistake.Service
	validate    *validator.Validate
}

func registerSpectateAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := spectateApi{
		svc:         deps.SpectateSvc,
		progressSvc: deps.ProgressSvc,
		goalSvc:     deps.GoalSvc,
		mistakeSvc:  deps.MistakeSvc,
		validate:    deps.Validate,
	}

	sg := g.Group("/spectate", authed...)

	// the spectated user's consent
	sg.GET("/permission", api.permission)
	sg.PUT("/permission", api.grant)
	sg.DELETE("/permission", api.revoke)

	// admin sessions
	ag := sg.Group("", staffMiddleware(false))
	ag.POST("/sessions/:logID/stop", api.stop)
	ag.POST("/:id/start", api.start)

	// read-only views of the spectated user
	vg := ag.Group("/:id", api.spectatedUserMiddleware)
	vg.GET("/profile", api.profile)
	vg.GET("/progress", api.progress)
	vg.GET("/summary", api.summary)
	vg.GET("/goals", api.calendar)
	vg.GET("/goals/:date", api.goal)
	vg.GET("/mistakes", api.mistakes)
}

func (api *spectateApi) permission(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	perm, err := api.svc.Get(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "loading spectate permission")
	}
	return ctx.JSON(http.StatusOK, perm)
}

func (api *spectateApi) grant(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data spectate.Grant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Grant")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	perm, err := api.svc.Grant(ctx.Request().Context(), usr, data.Hours)
	if err != nil {
		return errors.Wrap(err, "granting spectate permission")
	}
	return ctx.JSON(http.StatusOK, perm)
}

func (api *spectateApi) revoke(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	perm, err := api.svc.Revoke(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "revoking spectate permission")
	}
	return ctx.JSON(http.StatusOK, perm)
}

func (api *spectateApi) start(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	session, err := api.svc.Start(ctx.Request().Context(), admin, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting spectate session")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (api *spectateApi) stop(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	log, err := api.svc.Stop(ctx.Request().Context(), admin, ctx.Param("logID"))
	if err != nil {
		return errors.Wrap(err, "stopping spectate session")
	}
	return ctx.JSON(http.StatusOK, log)
}

// spectatedUserMiddleware loads the user the admin is spectating. Views are refused without an open session.
func (api *spectateApi) spectatedUserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		admin, err := getContextUser(ctx)
		if err != nil {
			return err
		}
		target, err := api.svc.CanView(ctx.Request().Context(), admin, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "checking spectate session")
		}
		ctx.Set(spectatedUserKey, target)
		return next(ctx)
	}
}

func spectatedUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(spectatedUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errHttpNotFound
}

func (api *spectateApi) profile(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, target)
}

func (api *spectateApi) progress(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	state, err := api.progressSvc.Get(ctx.Request().Context(), target)
	if err != nil {
		return errors.Wrap(err, "loading progress")
	}
	return ctx.JSON(http.StatusOK, state)
}

func (api *spectateApi) summary(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	summary, err := api.progressSvc.Summary(ctx.Request().Context(), target)
	if err != nil {
		return errors.Wrap(err, "summarizing progress")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *spectateApi) calendar(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	goals, err := api.goalSvc.Calendar(ctx.Request().Context(), target, ctx.QueryParam("from"), ctx.QueryParam("to"))
	if err != nil {
		return errors.Wrap(err, "loading calendar")
	}
	return ctx.JSON(http.StatusOK, goals)
}

func (api *spectateApi) goal(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	date := ctx.Param("date")
	if date == "today" {
		date = api.goalSvc.Today()
	}
	dg, err := api.goalSvc.Get(ctx.Request().Context(), target, date)
	if err != nil {
		return errors.Wrap(err, "loading goals")
	}
	return ctx.JSON(http.StatusOK, dg)
}

func (api *spectateApi) mistakes(ctx echo.Context) error {
	target, err := spectatedUser(ctx)
	if err != nil {
		return err
	}
	var filter mistake.QueryFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []mistake.Mistake{})
	}
	mistakes, err := api.mistakeSvc.List(ctx.Request().Context(), target, filter)
	if err != nil {
		return errors.Wrap(err, "querying mistakes")
	}
	return ctx.JSON(http.StatusOK, mistakes)
}
