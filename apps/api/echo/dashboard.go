package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
)

type dashboardApi struct {
	progressSvc progress.Service
	goalSvc     goal.Service
	spectateSvc spectate.Service
}

func registerDashboardAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := dashboardApi{
		progressSvc: deps.ProgressSvc,
		goalSvc:     deps.GoalSvc,
		spectateSvc: deps.SpectateSvc,
	}
	g.GET("/dashboard", api.dashboard, chain(authed, onboardedMiddleware)...)
}

// Dashboard gathers what the home screen shows in one round trip.
// Summary is only computed for premium users.
type Dashboard struct {
	User       user.User           `json:"user"`
	Summary    *progress.Summary   `json:"summary"`
	TodayGoal  *goal.DailyGoal     `json:"today_goal"`
	Permission spectate.Permission `json:"spectate_permission"`
	Countdown  []syllabus.ExamDate `json:"exam_countdown"`
}

func (api *dashboardApi) dashboard(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	data := Dashboard{
		User:      usr,
		Countdown: syllabus.Countdown(usr.Exam, usr.TargetYear, api.goalSvc.Today()),
	}
	g, gctx := errgroup.WithContext(ctx.Request().Context())

	if usr.EffectivePremium() {
		g.Go(func() error {
			summary, err := api.progressSvc.Summary(gctx, usr)
			if err != nil {
				return errors.Wrap(err, "summarizing progress")
			}
			data.Summary = &summary
			return nil
		})
	}
	g.Go(func() error {
		dg, err := api.goalSvc.Get(gctx, usr, api.goalSvc.Today())
		switch {
		case err == nil:
			data.TodayGoal = &dg
		case errors.Cause(err) != goal.ErrNotFound:
			return errors.Wrap(err, "loading today's goals")
		}
		return nil
	})
	g.Go(func() error {
		perm, err := api.spectateSvc.Get(gctx, usr)
		if err != nil {
			return errors.Wrap(err, "loading spectate permission")
		}
		data.Permission = perm
		return nil
	})

	if err = g.Wait(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, data)
}
