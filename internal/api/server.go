// Package api serves the batch and decision endpoints over HTTP
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ppiankov/resubmit/internal/ledger"
	"github.com/ppiankov/resubmit/internal/model"
	"github.com/ppiankov/resubmit/internal/pipeline"
	"github.com/ppiankov/resubmit/internal/source"
)

// Runner runs batches and exposes the decision log
type Runner interface {
	Run(ctx context.Context, batch []model.RawRecord) (*pipeline.Report, error)
	Ledger() *ledger.Ledger
}

// Server is the HTTP surface over a pipeline
type Server struct {
	e      *echo.Echo
	runner Runner
	log    zerolog.Logger
}

// NewServer builds the echo instance and registers every route
func NewServer(runner Runner, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recovery(log))
	e.Use(requestID())
	e.Use(requestLogger(log))

	s := &Server{e: e, runner: runner, log: log}
	s.RegisterRoutes(e.Group(""))
	return s
}

// RegisterRoutes mounts the API on g
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/healthz", s.handleHealth)
	g.POST("/v1/batches", s.handleBatch)
	g.GET("/v1/decisions/:claim_id", s.handleCurrent)
	g.GET("/v1/decisions/:claim_id/history", s.handleHistory)
}

// Handler exposes the server for httptest and custom listeners
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("api listening")
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBatch(c echo.Context) error {
	records, err := source.DecodeRecords(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if len(records) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "empty batch"})
	}

	report, err := s.runner.Run(c.Request().Context(), records)
	if err != nil {
		status := http.StatusInternalServerError
		var pe *pipeline.PipelineError
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		case errors.As(err, &pe) && pe.Phase == pipeline.PhaseConfig:
			status = http.StatusUnprocessableEntity
		}
		body := map[string]any{"error": err.Error()}
		if report != nil {
			body["summary"] = report.Summary
		}
		return c.JSON(status, body)
	}

	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleCurrent(c echo.Context) error {
	d, ok := s.runner.Ledger().Current(c.Param("claim_id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no decision for claim"})
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleHistory(c echo.Context) error {
	history := s.runner.Ledger().History(c.Param("claim_id"))
	if len(history) == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no decision for claim"})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": history, "total": len(history)})
}
