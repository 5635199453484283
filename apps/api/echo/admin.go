package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/contact"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
)

var errNoPermsToSetRole = core.NewValidationError(user.ErrInvalidRole, core.FieldError{Field: "role", Error: user.ErrInvalidRole.Error()})

type adminApi struct {
	userSvc     user.Service
	premiumSvc  premium.Service
	contactSvc  contact.Service
	syllabusSvc syllabus.Service
	spectateSvc spectate.Service
	validate    *validator.Validate
}

func registerAdminAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := adminApi{
		userSvc:     deps.UserSvc,
		premiumSvc:  deps.PremiumSvc,
		contactSvc:  deps.ContactSvc,
		syllabusSvc: deps.SyllabusSvc,
		spectateSvc: deps.SpectateSvc,
		validate:    deps.Validate,
	}
	adminOnly := staffMiddleware(true)

	ag := g.Group("/admin", chain(authed, staffMiddleware(false))...)

	// users
	ag.GET("/roles", api.userQueryRoles)
	ag.GET("/users", api.userQuery)
	ag.POST("/users", api.userCreate, adminOnly)
	ag.DELETE("/users", api.userDestroyMultiple, adminOnly)
	ag.GET("/users/:id", api.userRetrieve)
	ag.PUT("/users/:id", api.userUpdate, adminOnly)
	ag.DELETE("/users/:id", api.userDestroy, adminOnly)
	ag.PUT("/users/:id/role", api.userSetRole, adminOnly)
	ag.POST("/users/:id/ban", api.userBan)
	ag.POST("/users/:id/unban", api.userUnban)

	// unban requests
	ag.GET("/unban-requests", api.unbanRequestQuery)
	ag.POST("/unban-requests/:id/approve", api.unbanRequestApprove)
	ag.POST("/unban-requests/:id/reject", api.unbanRequestReject)

	// premium
	pg := ag.Group("", adminOnly)
	pg.GET("/codes", api.codeQuery)
	pg.POST("/codes", api.codeGenerate)
	pg.DELETE("/codes/:code", api.codeDestroy)
	pg.POST("/activate", api.activateDemoUser)

	// contact form
	ag.GET("/contact", api.contactQuery)
	ag.POST("/contact/:id/toggle-read", api.contactToggleRead)
	ag.DELETE("/contact/:id", api.contactDestroy)

	// syllabus editor
	ag.GET("/syllabus/:exam", api.syllabusRetrieve)
	ag.PUT("/syllabus/:exam/:subject", api.syllabusUpdate, adminOnly)
	ag.POST("/syllabus/seed", api.syllabusSeed, adminOnly)

	// spectating audit
	ag.GET("/spectate/logs", api.spectateLogs)
}

// Users

func (api *adminApi) userQueryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *adminApi) userQuery(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	users, err := api.userSvc.Query(ctx.Request().Context(), bindUserFilter(ctx), ord.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) userRetrieve(ctx echo.Context) error {
	usr, err := api.userSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userCreate(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.NewUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.userSvc); err != nil {
		return err
	}
	// admins cannot create users with a role above their own
	if user.RolePriority(data.Role) > user.RolePriority(admin.Role) {
		return errNoPermsToSetRole
	}

	usr, err := api.userSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *adminApi) userUpdate(ctx echo.Context) error {
	usr, err := api.userSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(ctx.Request().Context(), usr, api.validate, api.userSvc); err != nil {
		return err
	}

	if usr, err = api.userSvc.Update(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userSetRole(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data SetRoleRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetRoleRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.userSvc.SetRole(ctx.Request().Context(), admin, ctx.Param("id"), data.Role)
	if err != nil {
		return errors.Wrap(err, "setting role")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userBan(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.BanUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BanUser")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.userSvc.Ban(ctx.Request().Context(), admin, ctx.Param("id"), data.Hours)
	if err != nil {
		return errors.Wrap(err, "banning user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userUnban(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	usr, err := api.userSvc.Unban(ctx.Request().Context(), admin, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unbanning user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) userDestroy(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	// Say No to Suicide! admins cannot delete themselves
	if id == admin.ID {
		return errHttpForbidden
	}
	if _, err = api.userSvc.GetByID(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "finding user by ID")
	}

	if err = api.userSvc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *adminApi) userDestroyMultiple(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	ids := ctx.QueryParams()["id"]
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}
	for _, id := range ids {
		if id == admin.ID {
			return errHttpForbidden
		}
	}

	if err = api.userSvc.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Unban requests

func (api *adminApi) unbanRequestQuery(ctx echo.Context) error {
	pendingOnly := true
	if p := queryBool(ctx, "pending"); p != nil {
		pendingOnly = *p
	}
	reqs, err := api.userSvc.ListUnbanRequests(ctx.Request().Context(), pendingOnly)
	if err != nil {
		return errors.Wrap(err, "querying unban requests")
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *adminApi) unbanRequestApprove(ctx echo.Context) error {
	return api.resolveUnbanRequest(ctx, true)
}

func (api *adminApi) unbanRequestReject(ctx echo.Context) error {
	return api.resolveUnbanRequest(ctx, false)
}

func (api *adminApi) resolveUnbanRequest(ctx echo.Context, approve bool) error {
	reviewer, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	req, err := api.userSvc.ResolveUnbanRequest(ctx.Request().Context(), reviewer, ctx.Param("id"), approve)
	if err != nil {
		return errors.Wrap(err, "resolving unban request")
	}
	return ctx.JSON(http.StatusOK, req)
}

// Premium

func (api *adminApi) codeQuery(ctx echo.Context) error {
	codes, err := api.premiumSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying codes")
	}
	return ctx.JSON(http.StatusOK, codes)
}

func (api *adminApi) codeGenerate(ctx echo.Context) error {
	admin, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data premium.GenerateCodes
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateCodes")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	codes, err := api.premiumSvc.Generate(ctx.Request().Context(), admin, data.Count)
	if err != nil {
		return errors.Wrap(err, "generating codes")
	}
	metrics.CodesGenerated.Add(float64(len(codes)))
	return ctx.JSON(http.StatusCreated, codes)
}

func (api *adminApi) codeDestroy(ctx echo.Context) error {
	if err := api.premiumSvc.Delete(ctx.Request().Context(), ctx.Param("code")); err != nil {
		return errors.Wrap(err, "deleting code")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// activateDemoUser upgrades the demo account matching an access code.
func (api *adminApi) activateDemoUser(ctx echo.Context) error {
	var data premium.ActivateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ActivateUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.premiumSvc.ActivateByAccessCode(ctx.Request().Context(), data.AccessCode)
	if err != nil {
		return errors.Wrap(err, "activating demo user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// Contact form

func (api *adminApi) contactQuery(ctx echo.Context) error {
	subs, err := api.contactSvc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *adminApi) contactToggleRead(ctx echo.Context) error {
	sub, err := api.contactSvc.ToggleRead(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling read status")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *adminApi) contactDestroy(ctx echo.Context) error {
	if err := api.contactSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Syllabus

func (api *adminApi) syllabusRetrieve(ctx echo.Context) error {
	tree, err := api.syllabusSvc.Tree(ctx.Request().Context(), ctx.Param("exam"))
	if err != nil {
		return errors.Wrap(err, "loading syllabus")
	}
	return ctx.JSON(http.StatusOK, tree)
}

func (api *adminApi) syllabusUpdate(ctx echo.Context) error {
	var data syllabus.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	subject, err := api.syllabusSvc.Update(ctx.Request().Context(), ctx.Param("exam"), ctx.Param("subject"), data)
	if err != nil {
		return errors.Wrap(err, "updating syllabus")
	}
	return ctx.JSON(http.StatusOK, subject)
}

func (api *adminApi) syllabusSeed(ctx echo.Context) error {
	force := false
	if f := queryBool(ctx, "force"); f != nil {
		force = *f
	}
	n, err := api.syllabusSvc.Seed(ctx.Request().Context(), force)
	if err != nil {
		return errors.Wrap(err, "seeding syllabus")
	}
	return ctx.JSON(http.StatusOK, SeedResponse{Subjects: n})
}

// Spectating

func (api *adminApi) spectateLogs(ctx echo.Context) error {
	logs, err := api.spectateSvc.Logs(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying spectate logs")
	}
	return ctx.JSON(http.StatusOK, logs)
}

type (
	SetRoleRequest struct {
		Role string `json:"role" validate:"required,role"`
	}

	SeedResponse struct {
		Subjects int `json:"subjects"`
	}
)

func (sr *SetRoleRequest) Validate(validate *validator.Validate) error {
	sr.Role = core.CleanString(sr.Role, true /* lower */)
	return validate.Struct(sr)
}
