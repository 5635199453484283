package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/contact"
	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/core/mistake"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/revision"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/metrics"
	"github.com/trezcool/examtrack/services/realtime"
)

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Broker     realtime.Broker

	UserSvc     user.Service
	SyllabusSvc syllabus.Service
	ProgressSvc progress.Service
	GoalSvc     goal.Service
	MistakeSvc  mistake.Service
	GroupSvc    group.Service
	PremiumSvc  premium.Service
	SpectateSvc spectate.Service
	ContactSvc  contact.Service
	RevisionSvc revision.Service

	DisableReqLogs bool
}

type Server struct {
	deps     ServerDeps
	app      *echo.Echo
	shutdown chan os.Signal
	errors   chan error
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(metricsMiddleware)
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Debug {
		s.app.Logger.SetLevel(log.DEBUG)
	} else {
		s.app.Logger.SetLevel(log.WARN)
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf, "header:"+echo.HeaderAuthorization))
	authed := []echo.MiddlewareFunc{
		jwt,
		userMiddleware(s.deps.UserSvc),
		accessMiddleware(
			http.MethodGet+" /v1/users/me",
			http.MethodPost+" /v1/users/token-refresh",
			http.MethodPost+" /v1/users/me/unban-request",
		),
	}
	limit := rateLimitMiddleware(conf)

	registerUserAPI(v1, authed, limit, s.deps)
	registerSyllabusAPI(v1, authed, s.deps)
	registerProgressAPI(v1, authed, s.deps)
	registerGoalAPI(v1, authed, s.deps)
	registerMistakeAPI(v1, authed, s.deps)
	registerGroupAPI(v1, authed, s.deps)
	registerSpectateAPI(v1, authed, s.deps)
	registerContactAPI(v1, limit, s.deps)
	registerRevisionAPI(v1, authed, s.deps)
	registerDashboardAPI(v1, authed, s.deps)
	registerAdminAPI(v1, authed, s.deps)

	// the websocket handshake cannot carry headers from browsers: the token comes in the query string
	wsJWT := middleware.JWTWithConfig(newJWTConfig(conf, "query:token"))
	registerWebsocketAPI(v1, []echo.MiddlewareFunc{wsJWT, authed[1], authed[2]}, s.deps)
}

// Start blocks until the server stops. Failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
