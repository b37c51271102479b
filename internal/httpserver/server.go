package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/linkvault/internal/config"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/routes"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	http    *http.Server
	logger  logger.Logger
	started time.Time
	closing chan struct{}
	once    sync.Once
}

// NewRouter builds the router with global middlewares and every registered route.
// Request timeouts are applied per route so the event stream is not cut off.
func NewRouter(loggerClient logger.Logger, d deps.Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(loggerClient))
	r.Use(mw.CORS(d.CORSOrigins))

	routes.RegisterAll(r, d)
	return r
}

// New builds the HTTP server (router, middlewares, route registration).
func New(cfg *config.Config, loggerClient logger.Logger, d deps.Deps) *Server {
	closing := make(chan struct{})
	d.Closing = closing

	s := &http.Server{
		Addr:              cfg.ListenPort,
		Handler:           NewRouter(loggerClient, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{
		http:    s,
		logger:  loggerClient,
		started: d.StartTime,
		closing: closing,
	}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	s.logger.Infof("HTTP server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	// http.ErrServerClosed is expected on graceful shutdown.
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
// Open event streams are told to end first, since Shutdown waits for them.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down...")
	s.once.Do(func() { close(s.closing) })
	return s.http.Shutdown(ctx)
}
