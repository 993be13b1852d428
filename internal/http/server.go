// Package http provides the control API for pland. Executing agents drive
// the task lifecycle through it and the daemon answers with state,
// classification, and validation evidence.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pland/internal/analyzer"
	"github.com/fyrsmithlabs/pland/internal/events"
	"github.com/fyrsmithlabs/pland/internal/task"
	"github.com/fyrsmithlabs/pland/internal/taskmgr"
	"github.com/fyrsmithlabs/pland/internal/validator"
)

// Server exposes the execution state and task lifecycle over HTTP.
type Server struct {
	echo      *echo.Echo
	manager   *taskmgr.Manager
	broker    *events.Broker
	validator *validator.Service
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxAttempts is the correction budget reported by the fail endpoint.
	MaxAttempts int
}

// NewServer creates the control server.
func NewServer(manager *taskmgr.Manager, broker *events.Broker, val *validator.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("task manager is required")
	}
	if broker == nil {
		return nil, fmt.Errorf("event broker is required")
	}
	if val == nil {
		return nil, fmt.Errorf("validation service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8390}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
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
		echo:      e,
		manager:   manager,
		broker:    broker,
		validator: val,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/state", s.handleState)
	v1.GET("/tasks", s.handleTasks)
	v1.GET("/events", s.handleEvents)

	v1.POST("/tasks/next", s.handleNextTask)
	v1.POST("/tasks/:id/start", s.handleStartTask)
	v1.POST("/tasks/:id/complete", s.handleCompleteTask)
	v1.POST("/tasks/:id/fail", s.handleFailTask)
	v1.POST("/tasks/:id/skip", s.handleSkipTask)

	v1.GET("/validate/file", s.handleValidateFile)
	v1.GET("/validate/http", s.handleValidateHTTP)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// TaskView is one task in the GET /api/v1/tasks listing.
type TaskView struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Status      task.Status `json:"status"`
	Optional    bool        `json:"optional,omitempty"`
	ParentID    string      `json:"parent_id,omitempty"`
}

// TasksResponse is the response body for GET /api/v1/tasks.
type TasksResponse struct {
	Tasks  []TaskView          `json:"tasks"`
	Counts map[task.Status]int `json:"counts"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleState returns the current execution snapshot.
func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.State())
}

// handleTasks returns the task graph in depth-first document order.
func (s *Server) handleTasks(c echo.Context) error {
	var views []TaskView
	s.manager.Graph().Walk(func(t *task.Task) bool {
		views = append(views, TaskView{
			ID:          t.ID,
			Description: t.Description,
			Status:      t.Status,
			Optional:    t.IsOptional,
			ParentID:    t.ParentID,
		})
		return true
	})
	return c.JSON(http.StatusOK, TasksResponse{
		Tasks:  views,
		Counts: s.manager.Graph().CountByStatus(),
	})
}

// NextTaskResponse is the response body for POST /api/v1/tasks/next. Task
// is null when nothing is eligible.
type NextTaskResponse struct {
	Task *TaskView `json:"task"`
}

// CompleteResponse is the response body for POST /api/v1/tasks/:id/complete.
type CompleteResponse struct {
	Completed string    `json:"completed"`
	Next      *TaskView `json:"next"`
}

// FailRequest is the request body for POST /api/v1/tasks/:id/fail.
type FailRequest struct {
	ErrorMessage string `json:"error_message"`
	StackTrace   string `json:"stack_trace,omitempty"`
	FailedTest   string `json:"failed_test,omitempty"`
}

// FailResponse carries the captured failure, its classification, and the
// remaining correction budget.
type FailResponse struct {
	ErrorContext      *analyzer.ErrorContext  `json:"error_context"`
	Analysis          *analyzer.ErrorAnalysis `json:"analysis"`
	Attempts          int                     `json:"attempts"`
	RemainingAttempts int                     `json:"remaining_attempts"`
	Exhausted         bool                    `json:"exhausted"`
}

func taskView(t *task.Task) *TaskView {
	if t == nil {
		return nil
	}
	return &TaskView{
		ID:          t.ID,
		Description: t.Description,
		Status:      t.Status,
		Optional:    t.IsOptional,
		ParentID:    t.ParentID,
	}
}

// handleNextTask selects and queues the next eligible task. A null task
// means nothing is runnable, either because a task is in flight or the
// plan is finished.
func (s *Server) handleNextTask(c echo.Context) error {
	includeOptional := c.QueryParam("include_optional") == "true"

	next := s.manager.SelectNextTask(includeOptional)
	if next == nil {
		return c.JSON(http.StatusOK, NextTaskResponse{})
	}
	if next.Status == task.StatusNotStarted {
		if err := s.manager.QueueTask(next.ID); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, NextTaskResponse{Task: taskView(next)})
}

func (s *Server) handleStartTask(c echo.Context) error {
	if err := s.manager.StartTask(c.Param("id")); err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusOK, map[string]task.Status{"status": task.StatusInProgress})
}

func (s *Server) handleCompleteTask(c echo.Context) error {
	id := c.Param("id")
	next, err := s.manager.CompleteAndQueueNext(id)
	if err != nil {
		return taskError(err)
	}
	return c.JSON(http.StatusOK, CompleteResponse{Completed: id, Next: taskView(next)})
}

// handleFailTask captures a failure report, halts execution, and returns
// the classified analysis together with the correction budget.
func (s *Server) handleFailTask(c echo.Context) error {
	var req FailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ErrorMessage == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "error_message field is required")
	}

	id := c.Param("id")
	ec, err := s.manager.HaltOnFailure(id, req.ErrorMessage, req.StackTrace, req.FailedTest)
	if err != nil {
		return taskError(err)
	}

	attempts := s.manager.AttemptCount(id)
	remaining := s.config.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(http.StatusOK, FailResponse{
		ErrorContext:      ec,
		Analysis:          analyzer.Analyze(ec),
		Attempts:          attempts,
		RemainingAttempts: remaining,
		Exhausted:         attempts >= s.config.MaxAttempts,
	})
}

func (s *Server) handleSkipTask(c echo.Context) error {
	if err := s.manager.SkipTask(c.Param("id")); err != nil {
		return taskError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleValidateFile answers GET /api/v1/validate/file?path=... with cached
// proof-of-completion evidence.
func (s *Server) handleValidateFile(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path query parameter is required")
	}
	return c.JSON(http.StatusOK, s.validator.ValidateFileExists(c.Request().Context(), path))
}

// handleValidateHTTP answers GET /api/v1/validate/http?url=... by probing
// the endpoint. Any status below 500 counts as reachable.
func (s *Server) handleValidateHTTP(c echo.Context) error {
	url := c.QueryParam("url")
	if url == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url query parameter is required")
	}
	return c.JSON(http.StatusOK, s.validator.ValidateHTTPEndpoint(c.Request().Context(), url, 0))
}

// taskError maps manager errors onto HTTP status codes.
func taskError(err error) error {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, task.ErrInvalidTransition),
		errors.Is(err, task.ErrTaskInFlight),
		errors.Is(err, taskmgr.ErrNotQueued):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
}

// handleEvents streams transition events as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	ch, cancel := s.broker.Subscribe()
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to marshal event for sse", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting status server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down status server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
