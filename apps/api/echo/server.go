package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/soma/core"
	"github.com/trezcool/soma/core/analytics"
	"github.com/trezcool/soma/core/gamification"
	"github.com/trezcool/soma/core/plan"
	"github.com/trezcool/soma/core/session"
	"github.com/trezcool/soma/core/syllabus"
	"github.com/trezcool/soma/core/timer"
	"github.com/trezcool/soma/core/user"
	"github.com/trezcool/soma/services/live"
)

type (
	Deps struct {
		Conf         *core.Config
		Logger       core.Logger
		Validate     *validator.Validate
		Translator   ut.Translator
		RateLimiter  core.RateLimiter
		Hub          *live.Hub
		UserSvc      *user.Service
		PlanSvc      *plan.Service
		SyllabusSvc  *syllabus.Service
		TimerSvc     *timer.Service
		SessionSvc   *session.Service
		GameSvc      *gamification.Service
		AnalyticsSvc *analytics.Service
	}

	Server struct {
		address  string
		shutdown chan os.Signal
		deps     *Deps
		auth     *Auth
		app      *echo.Echo
	}
)

var _ http.Handler = (*Server)(nil)

// NewServer builds the API. A shutdown error raised by a handler is forwarded to `shutdown` (may be nil).
func NewServer(address string, shutdown chan os.Signal, deps *Deps) *Server {
	s := &Server{
		address:  address,
		shutdown: shutdown,
		deps:     deps,
		auth:     NewAuth(deps.Conf, deps.UserSvc),
		app:      echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableRequestLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := s.auth.Middleware()
	limit := func(scope string) echo.MiddlewareFunc {
		return rateLimitMiddleware(s.deps.RateLimiter, scope, conf.Server.LoginRateLimit, conf.Server.LoginRateWindow, s.deps.Logger)
	}

	registerUserAPI(v1, s.auth, jwt, limit, s.deps)
	registerPlanAPI(v1.Group("", jwt, s.auth.LoadUser), s.deps)
	registerTimerAPI(v1.Group("/timer", jwt, s.auth.LoadUser), s.deps)
	registerSessionAPI(v1.Group("/sessions", jwt, s.auth.LoadUser), s.deps)
	registerProgressAPI(v1.Group("", jwt, s.auth.LoadUser), s.deps)
	registerAnalyticsAPI(v1.Group("", jwt, s.auth.LoadUser), s.deps)
	registerLiveAPI(v1.Group("/live", s.auth.Middleware(tokenQueryParam), s.auth.LoadUser), s.deps)
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	if err := s.app.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	if s.shutdown == nil {
		return
	}
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
