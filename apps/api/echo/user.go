package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
)

type userApi struct {
	svc        user.Service
	premiumSvc premium.Service
	auth       authenticator
	validate   *validator.Validate
	logger     core.Logger
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, limit echo.MiddlewareFunc, deps ServerDeps) {
	api := userApi{
		svc:        deps.UserSvc,
		premiumSvc: deps.PremiumSvc,
		auth:       authenticator{conf: deps.Conf, svc: deps.UserSvc},
		validate:   deps.Validate,
		logger:     deps.Logger,
	}

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/signup", api.signup, limit)
	ug.POST("/login", api.login, limit)
	ug.POST("/login/pattern", api.loginWithPattern, limit)
	ug.POST("/password-reset", api.resetPassword, limit)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset, limit)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.PUT("/me", api.updateSettings)
	ag.POST("/me/onboarding", api.completeOnboarding)
	ag.PUT("/me/pattern", api.setPattern)
	ag.DELETE("/me/pattern", api.clearPattern)
	ag.POST("/me/unban-request", api.requestUnban)
	ag.POST("/me/redeem", api.redeemCode, limit)
}

// Handlers

func (api *userApi) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	// role, status & premium can only be set by admins
	data.Role, data.AccountStatus, data.IsPremium = "", "", false
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	token, err := GenerateToken(api.auth.conf, GetUserClaims(api.auth.conf, usr, methodPassword))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, SignupResponse{User: usr, Token: token})
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, err := api.auth.authenticate(ctx, data.Email, methodPassword, func(usr *user.User) error {
		return usr.CheckPassword(data.Password)
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) loginWithPattern(ctx echo.Context) error {
	var data PatternLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PatternLoginRequest")
	}
	pattern, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	token, err := api.auth.authenticate(ctx, data.Email, methodPattern, func(usr *user.User) error {
		return usr.CheckPattern(pattern)
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateSettings(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateSettings
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if usr, err = api.svc.UpdateSettings(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) completeOnboarding(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.Onboarding
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Onboarding")
	}
	if err = data.Validate(api.validate, time.Now().Year()); err != nil {
		return err
	}

	if usr, err = api.svc.CompleteOnboarding(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "completing onboarding")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) setPattern(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.SetPattern
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetPattern")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if usr.CheckPassword(data.Password) != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: "invalid password"})
	}

	if usr, err = api.svc.SetPattern(ctx.Request().Context(), usr, data.Pattern); err != nil {
		return errors.Wrap(err, "setting pattern")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) clearPattern(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	if usr, err = api.svc.ClearPattern(ctx.Request().Context(), usr); err != nil {
		return errors.Wrap(err, "clearing pattern")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) requestUnban(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.NewUnbanRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUnbanRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	req, err := api.svc.RequestUnban(ctx.Request().Context(), usr, data.Reason)
	if err != nil {
		return errors.Wrap(err, "requesting unban")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *userApi) redeemCode(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data premium.RedeemCode
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RedeemCode")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if usr, err = api.premiumSvc.Redeem(ctx.Request().Context(), usr, data.Code); err != nil {
		return errors.Wrap(err, "redeeming code")
	}
	metrics.CodesRedeemed.Inc()
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	// PatternLoginRequest carries either a pattern ("1-5-9-6") or the pointer trace drawn on a canvas of Size units.
	PatternLoginRequest struct {
		Email   string       `json:"email" validate:"required,email"`
		Pattern string       `json:"pattern" validate:"omitempty,pattern"`
		Points  []user.Point `json:"points" validate:"omitempty,max=1000"`
		Size    float64      `json:"size" validate:"gte=0"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	SignupResponse struct {
		User  user.User `json:"user"`
		Token string    `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

// Validate returns the pattern to check, traced from the points when no pattern is given.
func (pr *PatternLoginRequest) Validate(validate *validator.Validate) (string, error) {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	pr.Pattern = core.CleanString(pr.Pattern)
	if err := validate.Struct(pr); err != nil {
		return "", err
	}
	switch {
	case pr.Pattern != "" && len(pr.Points) == 0:
		return pr.Pattern, nil
	case pr.Pattern == "" && len(pr.Points) > 0:
		return user.FormatPattern(user.TracePattern(pr.Points, pr.Size)), nil
	default:
		return "", errInvalidPatternRequest
	}
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
