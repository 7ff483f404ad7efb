// Package server exposes similar-item search over HTTP.
//
//	POST /search   body: a JSON item   -> {"similar_items": [metadata, ...]}
//	GET  /healthz                      -> {"status": "ok", ...}
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/itemvec/config"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/search"
)

// Searcher answers similar-item queries. *search.Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query core.RawItem) ([]core.Metadata, error)
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	SimilarItems []core.Metadata `json:"similar_items"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	searcher Searcher
	cfg      config.ServerConfig
	index    string
	router   *gin.Engine
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIndexName reports the served index on the health endpoint.
func WithIndexName(name string) Option {
	return func(s *Server) {
		s.index = name
	}
}

// New creates a server. The router uses gin's current mode; callers set
// gin.SetMode before calling New.
func New(searcher Searcher, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	s := &Server{
		searcher: searcher,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "http-server")

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.POST("/search", s.handleSearch)
	r.GET("/healthz", s.handleHealth)
	s.router = r
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding in another mux.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully
// within cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSearch(c *gin.Context) {
	var query core.RawItem
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must be a JSON object: " + err.Error()})
		return
	}

	results, err := s.searcher.Search(c.Request.Context(), query)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", "error", err)
		}
		c.JSON(status, ErrorResponse{Error: err.Error()})
		return
	}
	if results == nil {
		results = []core.Metadata{}
	}
	c.JSON(http.StatusOK, SearchResponse{SimilarItems: results})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "index": s.index})
}

// statusFor maps search errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrSearchUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
