package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yycnik/json-log-parser/internal/hub"
	"github.com/yycnik/json-log-parser/internal/model"
)

// MaxAnalyzeBody bounds the body of POST /api/analyze.
const MaxAnalyzeBody = 64 << 20

// Analyzer runs one pass over a request body.
type Analyzer interface {
	AnalyzeReader(name string, body io.Reader) (model.Report, error)
}

// Server holds the Gin engine and dependencies for the report API.
type Server struct {
	engine   *gin.Engine
	hub      *hub.Hub
	analyzer Analyzer
	metrics  http.Handler
	log      zerolog.Logger
	addr     string
	inputs   []string
	started  time.Time
}

// New creates the report server. metrics may be nil.
func New(h *hub.Hub, a Analyzer, metrics http.Handler, log zerolog.Logger, addr string, inputs []string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:   engine,
		hub:      h,
		analyzer: a,
		metrics:  metrics,
		log:      log,
		addr:     addr,
		inputs:   inputs,
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check.
	s.engine.GET("/healthz", func(c *gin.Context) {
		_, ready := s.hub.Latest()
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"uptime":          time.Since(s.started).Round(time.Second).String(),
			"inputs":          s.inputs,
			"report_ready":    ready,
			"subscribers":     s.hub.Subscribers(),
			"dropped_reports": s.hub.Dropped(),
		})
	})

	// Report API.
	s.engine.GET("/api/report", s.handleReport)
	s.engine.POST("/api/analyze", s.handleAnalyze)

	// WebSocket.
	s.engine.GET("/ws", s.handleWebSocket)

	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleReport(c *gin.Context) {
	report, ok := s.hub.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no report yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxAnalyzeBody)
	name := c.DefaultQuery("name", "request")

	report, err := s.analyzer.AnalyzeReader(name, body)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.log.Warn().Err(err).Str("source", name).Msg("Analyze request failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the server until ctx is cancelled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
