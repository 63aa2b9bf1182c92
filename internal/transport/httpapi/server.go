// Package httpapi exposes the engine, stored reports, the desk book and the event stream to the
// dashboard over JSON.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bruno-portfolio/basismind/internal/decision"
	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/pipeline"
	"github.com/bruno-portfolio/basismind/internal/portfolio"
	"github.com/bruno-portfolio/basismind/internal/store"
	"github.com/bruno-portfolio/basismind/internal/transport"
)

// Runner triggers a pipeline run for one date.
type Runner interface {
	Run(ctx context.Context, date time.Time) (pipeline.Result, error)
}

// Config lists the server dependencies. Pipeline and Hub are optional.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Engine       *decision.Engine
	Store        *store.Store
	Book         *portfolio.Manager
	Pipeline     Runner
	Hub          *transport.Hub
}

type Server struct {
	cfg    Config
	router *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil || cfg.Store == nil || cfg.Book == nil {
		return nil, errors.New("http server requires engine, store and book")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Hub == nil {
		cfg.Hub = transport.NewHub(100)
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", gin.WrapH(observ.HealthHandler()))
	router.GET("/metrics", gin.WrapH(observ.Handler()))

	h := &handlers{cfg: cfg}
	h.register(router.Group("/api/v1"))
	return &Server{cfg: cfg, router: router}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.cfg.Addr }

// Hub returns the event hub the server streams from.
func (s *Server) Hub() *transport.Hub { return s.cfg.Hub }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		observ.Log("http_listening", map[string]any{"addr": s.cfg.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		observ.RecordDuration("http_request", time.Since(start), map[string]string{"route": route})
		observ.IncCounter("http_requests_total", map[string]string{"route": route, "code": strconv.Itoa(status)})
		observ.Debug("http_request", map[string]any{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"ip":          c.ClientIP(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
