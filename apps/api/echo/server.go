package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/result"
)

type (
	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		SecretKey      string
		MaxUploadSize  int64
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
	}

	Deps struct {
		Logger          core.Logger
		Translator      ut.Translator
		ResultSvc       *result.Service
		RegistrationSvc *registration.Service
		Exporter        *export.Streamer

		// optional
		Metrics        RequestObserver
		MetricsHandler http.Handler
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		deps     *Deps
		app      *echo.Echo
		shutdown chan<- os.Signal
	}
)

var _ Server = (*server)(nil)

// NewServer builds the API. shutdown (optional) receives a signal when a handler hits an integrity error.
func NewServer(opts *Options, shutdown chan<- os.Signal, deps *Deps) Server {
	s := &server{
		opts:     opts,
		deps:     deps,
		app:      echo.New(),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(metricsMiddleware(s.deps.Metrics))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", home)
	if s.deps.MetricsHandler != nil {
		s.app.GET("/metrics", echo.WrapHandler(s.deps.MetricsHandler))
	}

	v1 := s.app.Group("/v1")
	auth := jwtMiddleware(s.opts.SecretKey)

	registerResultAPI(v1, auth, s.deps.ResultSvc, s.deps.Logger, s.opts.MaxUploadSize)
	registerRegistrationAPI(v1, auth, s.deps.RegistrationSvc, s.deps.Logger, s.opts.MaxUploadSize)
	registerExportAPI(v1, auth, s.deps.Exporter, s.deps.Logger)
}

func (s *server) signalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- syscall.SIGTERM
	}
}

func (s *server) Start() error {
	s.app.Server.ReadTimeout = s.opts.ReadTimeout
	s.app.Server.WriteTimeout = s.opts.WriteTimeout
	if err := s.app.Start(s.opts.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to ExamReg API!")
}
