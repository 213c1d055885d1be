package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP/WebSocket server that receives trial streams.
type Server struct {
	// Session management
	sessions *SessionManager

	// Persistence
	sink Sink

	// Configuration
	config *ServerConfig

	// Metrics
	metrics  *Metrics
	registry *prometheus.Registry

	// HTTP routing
	router   chi.Router
	upgrader websocket.Upgrader

	// HTTP server
	httpServer *http.Server
	httpMu     sync.Mutex

	// Session goroutines
	wg sync.WaitGroup

	// Logger
	logger *slog.Logger
}

// New creates a new Server that persists through sink.
func New(config *ServerConfig, sink Sink) (*Server, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if config == nil {
		config = DefaultServerConfig()
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := config.Registry
	if registry == nil {
		registry = newRegistry()
	}
	metrics := NewMetrics(registry)
	logger := slog.Default().With("component", "server")

	s := &Server{
		sessions: NewSessionManager(sink, config, metrics, logger),
		sink:     sink,
		config:   config,
		metrics:  metrics,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleStatus)
	r.Get("/health", s.handleHealth)
	if s.config.EnableMetrics {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
	r.Get(s.config.Route, s.HandleWebSocket)
	return r
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Status is the document served on "/".
type Status struct {
	Status   string `json:"status"`
	Route    string `json:"route"`
	SaveDir  string `json:"save_dir"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Status:   "ok",
		Route:    s.config.Route,
		SaveDir:  s.DataDir(),
		Sessions: s.sessions.Count(),
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DataDir returns the sink's data directory when it exposes one.
func (s *Server) DataDir() string {
	if d, ok := s.sink.(interface{ DataDir() string }); ok {
		return d.DataDir()
	}
	return ""
}

// HandleWebSocket upgrades the request and serves one session until the
// connection ends.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	session := s.sessions.Create(conn)
	defer s.sessions.Remove(session.ID)

	go session.HeartbeatLoop()
	session.ReadLoop(context.WithoutCancel(r.Context()))
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listen error.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.RunListener(ln)
}

// RunListener is like Run but serves on an existing listener.
func (s *Server) RunListener(ln net.Listener) error {
	s.httpMu.Lock()
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.httpMu.Unlock()

	// Set up graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			"address", ln.Addr().String(),
			"route", s.config.Route,
			"save_dir", s.DataDir())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case sig := <-shutdown:
		s.logger.Info("shutting down...", "signal", sig.String())
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes all sessions, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.sessions.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("sessions still draining at shutdown deadline")
	}

	s.httpMu.Lock()
	srv := s.httpServer
	s.httpMu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Registry returns the Prometheus registry holding the server metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger replaces the server logger. Call before serving.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "server")
	s.sessions.logger = s.logger
}
