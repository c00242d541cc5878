// Package control exposes the command surface and the event stream to a local
// UI over HTTP and WebSocket.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/xkilldash9x/snapclick/api/schemas"
	"github.com/xkilldash9x/snapclick/internal/config"
	"github.com/xkilldash9x/snapclick/internal/events"
	"github.com/xkilldash9x/snapclick/internal/service"
)

// Executor runs commands. *service.Controller satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd service.Command) service.Result
	Commands() []string
}

// Subscriber hands out event streams. *events.Bus satisfies it.
type Subscriber interface {
	Subscribe(types ...schemas.EventType) (<-chan events.Event, func())
}

// Server is the local control bridge.
type Server struct {
	cfg      config.ControlConfig
	exec     Executor
	bus      Subscriber
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients sync.WaitGroup
	closing chan struct{}
	closed  bool
}

// NewServer validates its dependencies and prepares the WebSocket upgrader.
func NewServer(cfg config.ControlConfig, exec Executor, bus Subscriber, logger *zap.Logger) (*Server, error) {
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event subscriber cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = sendChannelSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		exec:    exec,
		bus:     bus,
		logger:  logger.Named("control"),
		closing: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// checkOrigin admits non-browser clients, loopback pages and the configured
// origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// WebSocket routes stay outside the request timeout.
	r.Get("/ws/v1/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(s.requestLogger)
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Get("/healthz", s.handleHealthCheck)
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/command", s.handleCommand)
			r.Get("/commands", s.handleListCommands)
		})
	})
	return r
}

// requestLogger logs each HTTP request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request served.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. At most control.max_connections connections are open at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Control server listening.", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		s.CloseClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down control server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.CloseClients()
	if err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	s.logger.Info("Control server stopped.")
	return nil
}

// track registers a WebSocket handler unless the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients.Add(1)
	return true
}

// CloseClients disconnects every WebSocket client and waits for their
// handlers to return. http.Server.Shutdown does not track hijacked
// connections.
func (s *Server) CloseClients() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.clients.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("WebSocket clients did not disconnect in time.")
	}
}
