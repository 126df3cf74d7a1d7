// Package server exposes fleet health over HTTP for dashboards and scrapers.
package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Server serves /health, /api/status, /api/status/stream and /metrics.
// Every request probes the fleet fresh.
type Server struct {
	agg      *status.Aggregator
	registry fleet.Registry
	opts     status.Options
	log      logger.Logger
	started  time.Time
	engine   *gin.Engine
}

// New builds the router. gin runs in release mode; requests are logged
// through log at debug level.
func New(agg *status.Aggregator, registry fleet.Registry, opts status.Options, log logger.Logger) *Server {
	if log == nil {
		log = logger.Noop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		agg:      agg,
		registry: registry,
		opts:     opts,
		log:      log,
		started:  time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	api := r.Group("/api")
	{
		api.GET("/status", s.fleetStatus)
		api.GET("/status/stream", s.streamStatus)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = r
	return s
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("status server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return dherrors.WrapWithCode(err, dherrors.ErrServer,
				"Status server stopped unexpectedly",
				"Check that "+addr+" is free, or set server.addr in deckhand.yaml")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("status server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return dherrors.WrapWithCode(err, dherrors.ErrServer, "Status server did not shut down cleanly", "")
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) fleetStatus(c *gin.Context) {
	fs, err := s.agg.Collect(c.Request.Context(), s.opts)
	if err != nil {
		s.log.Error("collect fleet status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "fleet status unavailable"})
		return
	}
	c.JSON(http.StatusOK, fs)
}

// streamStatus sends one "node" event per probe as it completes and a final
// "summary" event with the disclosed FleetStatus. Per-node events are only
// sent when individual nodes are shown.
func (s *Server) streamStatus(c *gin.Context) {
	ctx := c.Request.Context()
	nodes, err := s.registry.Nodes(ctx)
	if err != nil {
		s.log.Error("list nodes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "node registry unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	results := make([]status.NodeResult, 0, len(nodes))
	for r := range s.agg.Stream(ctx, nodes) {
		results = append(results, r)
		if s.opts.ShowIndividualNodes {
			c.SSEvent("node", r.Status())
			c.Writer.Flush()
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Node.ID < results[j].Node.ID })
	c.SSEvent("summary", status.Disclose(results, status.Summarize(results), s.opts))
	c.Writer.Flush()
}
