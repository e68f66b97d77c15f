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

	"github.com/edecs/academy/core"
	"github.com/edecs/academy/core/course"
	"github.com/edecs/academy/core/identity"
	"github.com/edecs/academy/core/quiz"
	"github.com/edecs/academy/core/report"
	"github.com/edecs/academy/core/task"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Identity       *identity.Service
		Provider       identity.Provider
		Courses        *course.Service
		Quiz           *quiz.Engine
		Tasks          *task.Ledger
		Reports        *report.Service
		Validate       *validator.Validate
		Translator     ut.Translator
		MediaDir       string // served under /uploads when blobs are kept locally
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	if s.deps.MediaDir != "" {
		s.app.Static("/uploads", s.deps.MediaDir)
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)

	registerAuthAPI(v1, jwt, s.auth, s.deps.Identity, s.deps.Provider, s.deps.Validate)
	registerUserAPI(v1, jwt, s.deps.Identity, s.deps.Validate)
	registerCourseAPI(v1, jwt, s.deps.Courses, s.deps.Validate)
	registerQuizAPI(v1, jwt, s.deps.Quiz, s.deps.Validate)
	registerTaskAPI(v1, jwt, s.deps.Tasks, s.deps.Validate)
	registerReportAPI(v1, jwt, s.deps.Identity, s.deps.Reports)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors is where fatal listener errors are sent.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives OS interrupts and the shutdown requested by the error handler.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the Academy API!")
}
