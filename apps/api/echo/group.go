package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
)

type groupApi struct {
	svc      group.Service
	validate *validator.Validate
}

func registerGroupAPI(g *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := groupApi{svc: deps.GroupSvc, validate: deps.Validate}

	gg := g.Group("/groups", chain(authed, premiumMiddleware)...)
	gg.GET("", api.query)
	gg.POST("", api.create)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.DELETE("", api.destroy)
	dg.GET("/users", api.searchUsers)
	dg.POST("/members", api.addMember)
	dg.DELETE("/members/:userID", api.removeMember)
	dg.GET("/messages", api.messages)
	dg.POST("/messages", api.sendMessage)
}

func (api *groupApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	groups, err := api.svc.ListForUser(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data group.NewGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	grp, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding group")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *groupApi) searchUsers(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	users, err := api.svc.SearchUsers(ctx.Request().Context(), usr, ctx.Param("id"), ctx.QueryParam("name"))
	if err != nil {
		return errors.Wrap(err, "searching users")
	}
	return ctx.JSON(http.StatusOK, memberInfos(users...))
}

func (api *groupApi) addMember(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data AddMemberRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddMemberRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	grp, err := api.svc.AddMember(ctx.Request().Context(), usr, ctx.Param("id"), data.UserID)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) removeMember(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	grp, err := api.svc.RemoveMember(ctx.Request().Context(), usr, ctx.Param("id"), ctx.Param("userID"))
	if err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.JSON(http.StatusOK, grp)
}

// messages pages through the group's messages with the `since` (RFC 3339) and `after` (message ID) cursor
// of the last message seen, and the `limit` query params.
func (api *groupApi) messages(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var q group.MessageQuery
	if since := ctx.QueryParam("since"); since != "" {
		if q.Since, err = time.Parse(time.RFC3339Nano, since); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "since", Error: "invalid timestamp"})
		}
	}
	q.After = ctx.QueryParam("after")
	if limit := ctx.QueryParam("limit"); limit != "" {
		if q.Limit, err = strconv.Atoi(limit); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "limit", Error: "invalid number"})
		}
	}

	msgs, err := api.svc.ListMessages(ctx.Request().Context(), usr, ctx.Param("id"), q)
	if err != nil {
		return errors.Wrap(err, "querying messages")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *groupApi) sendMessage(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data group.NewMessage
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.SendMessage(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	metrics.MessagesSent.Inc()
	return ctx.JSON(http.StatusCreated, msg)
}

type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

// MemberInfo is what students see of each other.
type MemberInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Exam string `json:"exam"`
}

func memberInfos(users ...user.User) []MemberInfo {
	infos := make([]MemberInfo, 0, len(users))
	for _, usr := range users {
		infos = append(infos, MemberInfo{ID: usr.ID, Name: usr.Name, Exam: usr.Exam})
	}
	return infos
}
