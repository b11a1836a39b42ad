// Package http exposes the twind core over a thin HTTP API.
//
// The core offers two operations to callers: trigger ingestion for a user,
// and ask a question for a user. Persona building is a convenience on top
// of ingestion. Authentication and session handling are out of scope here;
// callers identify the user explicitly.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/altailabs/twind/internal/chat"
	"github.com/altailabs/twind/internal/config"
	"github.com/altailabs/twind/internal/ingest"
	"github.com/altailabs/twind/internal/llm"
	"github.com/altailabs/twind/internal/memory"
	"github.com/altailabs/twind/internal/summarizer"
	"github.com/altailabs/twind/internal/transcribe"
)

// Ingester runs the ingestion pipeline for a user.
type Ingester interface {
	IngestUserResponses(ctx context.Context, userID int64) (*ingest.Result, error)
}

// PortraitBuilder builds and stores a user's persona.
type PortraitBuilder interface {
	BuildPortrait(ctx context.Context, userID int64) (*summarizer.Persona, error)
}

// Chatter answers a question as the user.
type Chatter interface {
	Ask(ctx context.Context, userID int64, question string, topK int) (*chat.Answer, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Port        int
	DefaultTopK int
}

// Server provides the twind HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	ingester Ingester
	portrait PortraitBuilder
	chatter  Chatter
	logger   *zap.Logger
	config   Config
}

// NewServer creates the HTTP server and registers routes.
func NewServer(ingester Ingester, portrait PortraitBuilder, chatter Chatter, logger *zap.Logger, cfg Config) (*Server, error) {
	if ingester == nil || portrait == nil || chatter == nil {
		return nil, fmt.Errorf("ingester, portrait builder, and chatter are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		ingester: ingester,
		portrait: portrait,
		chatter:  chatter,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/persona", s.handlePersona)
	v1.POST("/chat", s.handleChat)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestRequest identifies the user whose responses to ingest.
type IngestRequest struct {
	UserID int64 `json:"user_id"`
}

// IngestResponse reports how many items one ingestion run produced.
type IngestResponse struct {
	Message     string `json:"message"`
	AudioItems  int    `json:"audio_items"`
	LikertItems int    `json:"likert_items"`
}

// ChatRequest is one question asked as the user.
type ChatRequest struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
	TopK    int    `json:"top_k"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	result, err := s.ingester.IngestUserResponses(c.Request().Context(), req.UserID)
	if err != nil {
		return s.mapError(c, err)
	}

	return c.JSON(http.StatusOK, IngestResponse{
		Message:     "ingestion completed",
		AudioItems:  len(result.AudioItems),
		LikertItems: len(result.LikertItems),
	})
}

func (s *Server) handlePersona(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	p, err := s.portrait.BuildPortrait(c.Request().Context(), req.UserID)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if req.TopK <= 0 {
		req.TopK = s.config.DefaultTopK
	}

	answer, err := s.chatter.Ask(c.Request().Context(), req.UserID, req.Message, req.TopK)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

// mapError maps the core error taxonomy to HTTP status codes.
func (s *Server) mapError(c echo.Context, err error) error {
	s.logger.Error("request failed", zap.Error(err))

	switch {
	case errors.Is(err, transcribe.ErrNotImplemented):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, memory.ErrInvalidConfig),
		errors.Is(err, memory.ErrVectorSizeMismatch):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case llm.Classify(err) == llm.KindQuota:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "model quota exceeded and fallbacks failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
