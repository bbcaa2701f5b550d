// Package server exposes the session controller over HTTP for local
// front-ends. It is a thin adapter: all semantics live in the session,
// gateway and planner packages.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/suda-labs/suda/internal/config"
	"github.com/suda-labs/suda/internal/gateway"
	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/provider"
	"github.com/suda-labs/suda/internal/redact"
	"github.com/suda-labs/suda/internal/session"
	"github.com/suda-labs/suda/internal/telemetry"
)

// Server hosts sessions over the local HTTP API.
type Server struct {
	Config  *config.Config
	Catalog *item.Catalog
	Store   *telemetry.SQLiteStore
	Logger  *zap.Logger
	// Provider overrides the configured provider for every session when set.
	Provider provider.Provider

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

// Router builds the echo instance with all routes registered.
func (s *Server) Router() *echo.Echo {
	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]*session.Controller)
	}
	s.mu.Unlock()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/topics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, item.DefaultTopics)
	})
	e.GET("/stats", s.getStats)
	e.GET("/export", s.getExport)

	e.POST("/sessions", s.createSession)
	e.POST("/sessions/:id/turns", s.submitTurn)
	e.POST("/sessions/:id/events", s.logEvent)
	e.POST("/sessions/:id/end", s.endSession)

	return e
}

// Listen runs the server until it fails.
func (s *Server) Listen(addr string) error {
	return s.Router().Start(addr)
}

func (s *Server) lookup(id string) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

type createSessionRequest struct {
	TopicID string `json:"topic_id"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	ctrl, err := session.Start(c.Request().Context(), session.Options{
		Config:   s.Config,
		Catalog:  s.Catalog,
		Store:    s.Store,
		TopicID:  req.TopicID,
		Logger:   s.Logger,
		Provider: s.Provider,
	})
	if err != nil {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": ce.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	s.mu.Lock()
	s.sessions[ctrl.ID()] = ctrl
	s.mu.Unlock()

	return c.JSON(http.StatusCreated, map[string]string{
		"session_id": ctrl.ID(),
		"topic_id":   req.TopicID,
	})
}

func (s *Server) submitTurn(c echo.Context) error {
	ctrl := s.lookup(c.Param("id"))
	if ctrl == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	var in session.TurnInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if in.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	out, err := ctrl.SubmitTurn(c.Request().Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTurnInFlight):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, session.ErrNotActive):
			return c.JSON(http.StatusGone, map[string]string{"error": err.Error()})
		case gateway.Recoverable(err):
			// The client may resubmit the same input.
			return c.JSON(http.StatusBadGateway, map[string]any{
				"error":       err.Error(),
				"recoverable": true,
			})
		default:
			return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) logEvent(c echo.Context) error {
	ctrl := s.lookup(c.Param("id"))
	if ctrl == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	var ev session.Event
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := ctrl.LogEvent(c.Request().Context(), ev); err != nil {
		if errors.Is(err, session.ErrNotActive) {
			return c.JSON(http.StatusGone, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) endSession(c echo.Context) error {
	ctrl := s.lookup(c.Param("id"))
	if ctrl == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	wrap, err := ctrl.End(c.Request().Context())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotActive):
			return c.JSON(http.StatusGone, map[string]string{"error": err.Error()})
		case errors.Is(err, session.ErrTurnInFlight):
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, wrap)
}

func (s *Server) getStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) getExport(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	level := redact.Level(s.Config.Redaction)
	if raw := c.QueryParam("redaction"); raw != "" {
		parsed, err := redact.ParseLevel(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		level = parsed
	}
	if level == "" {
		level = redact.LevelMinimal
	}

	export, err := s.Store.Export(c.Request().Context(), telemetry.ExportParams{
		LimitSessions: limit,
		Redaction:     level,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, export)
}
