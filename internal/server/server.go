// Package server is the HTTP front end: the URL form with its chat widget and
// a small JSON API over the same submission and chat flows.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mfenderov/pagechat/internal/chat"
	"github.com/mfenderov/pagechat/internal/submission"
	"github.com/mfenderov/pagechat/pkg/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config holds HTTP server configuration.
type Config struct {
	Address           string
	CookieName        string
	IssueCookie       bool
	CookieSecure      bool
	ReadHeaderTimeout time.Duration
}

// Submitter runs submissions and reports whether a token has one running.
type Submitter interface {
	Submit(ctx context.Context, rawURL, token string) (*submission.Result, error)
	InFlight(token string) bool
}

// HistoryReader reads session messages.
type HistoryReader interface {
	GetMessages(ctx context.Context, sessionID string, amount int) ([]models.Message, error)
}

// Chatter answers questions within a session.
type Chatter interface {
	Chat(ctx context.Context, sessionKey, pageURL, question string) (*chat.Answer, error)
}

// Deps are the services behind the routes. Chat may be nil, which disables
// the chat widget and /api/chat. Metrics may be nil.
type Deps struct {
	Submitter Submitter
	History   HistoryReader
	Chat      Chatter
	Metrics   *Metrics
}

// Server wraps the echo instance.
type Server struct {
	echo    *echo.Echo
	config  Config
	deps    Deps
	metrics *Metrics
}

type templateRenderer struct {
	templates *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// New creates the server and registers its routes.
func New(config Config, deps Deps) (*Server, error) {
	if deps.Submitter == nil || deps.History == nil {
		return nil, errors.New("server: submitter and history are required")
	}
	if config.CookieName == "" {
		return nil, errors.New("server: cookie name is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templateRenderer{templates: tmpl}
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "remote_ip", v.RemoteIP}
			if v.Error != nil {
				slog.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			slog.Debug("request", attrs...)
			return nil
		},
	}))

	s := &Server{echo: e, config: config, deps: deps, metrics: deps.Metrics}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	session := sessionMiddleware(config)
	e.GET("/", s.indexPage, session)
	e.POST("/", s.submitForm, session)

	api := e.Group("/api", session)
	api.POST("/submit", s.submitAPI)
	api.GET("/history", s.historyAPI)
	if deps.Chat != nil {
		api.POST("/chat", s.chatAPI)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Metrics returns the collectors the server exposes on /metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.config.Address)
	err := s.echo.StartServer(&http.Server{
		Addr:              s.config.Address,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// errorHandler writes API errors as JSON and logs them.
func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}

	req := c.Request()
	if code >= http.StatusInternalServerError {
		slog.Error("request error", "status", code, "method", req.Method, "path", req.URL.Path, "error", err)
	} else {
		slog.Debug("request error", "status", code, "method", req.Method, "path", req.URL.Path, "error", err)
	}

	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
