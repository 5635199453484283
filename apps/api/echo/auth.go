package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
)

const (
	tokenContextKey = "userToken"
	contextUserKey  = "user"

	// login methods
	methodPassword = "password"
	methodPattern  = "pattern"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
	Method       string `json:"method,omitempty"` // password | pattern
}

func newJWTConfig(conf *core.Config, tokenLookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		Claims:        new(Claims),
		TokenLookup:   tokenLookup,
	}
}

func GetUserClaims(conf *core.Config, usr user.User, method string, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  "Students",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		Role:         usr.Role,
		Method:       method,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

type authenticator struct {
	conf *core.Config
	svc  user.Service
}

// authenticate checks the credentials of the user with this email and returns a signed token.
// Banned and pending users may log in: the access guard decides what they can do.
func (a authenticator) authenticate(ctx echo.Context, email, method string, check func(usr *user.User) error) (string, error) {
	rctx := ctx.Request().Context()
	usr, err := a.svc.GetByEmail(rctx, email)
	if err != nil {
		if err == user.ErrNotFound {
			metrics.Logins.WithLabelValues(method, metrics.LoginFailure).Inc()
			return "", errAuthenticationFailed
		}
		return "", errors.Wrap(err, "finding user by email")
	}
	if usr.IsDeleted || check(&usr) != nil {
		metrics.Logins.WithLabelValues(method, metrics.LoginFailure).Inc()
		return "", errAuthenticationFailed
	}

	if usr, err = a.svc.SetLastLogin(rctx, usr); err != nil {
		return "", errors.Wrap(err, "setting lastLogin")
	}
	if usr.BanActive(core.Now()) {
		metrics.Logins.WithLabelValues(method, metrics.LoginBanned).Inc()
	} else {
		metrics.Logins.WithLabelValues(method, metrics.LoginSuccess).Inc()
	}
	return GenerateToken(a.conf, GetUserClaims(a.conf, usr, method))
}

func (a authenticator) refreshToken(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return "", err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(a.conf, GetUserClaims(a.conf, usr, claims.Method, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser returns the user loaded by userMiddleware.
func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errUnauthorized
}
