// Package relay hosts the websocket channel server that connects browser
// clients to the conversation pipeline, plus the HTTP surface around it
// (metrics, health, static client assets).
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voicedesk/voicedesk/internal/health"
	"github.com/voicedesk/voicedesk/internal/observe"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// defaultMaxPortRetries is how many successive ports are tried when the
// configured one is already bound.
const defaultMaxPortRetries = 10

// maxFrameBytes is the read limit applied to client frames. Audio segments
// are far larger than the websocket library's 32 KiB default.
const maxFrameBytes = 16 << 20

// ServerConfig configures the relay's HTTP surface.
type ServerConfig struct {
	// Port is the first TCP port to try.
	Port int

	// MaxPortRetries bounds the port increment-and-retry loop. Zero means
	// the default of 10.
	MaxPortRetries int

	// StaticDir, when non-empty, is served for paths not claimed by the API,
	// with index.html as the fallback for client-side routes.
	StaticDir string
}

// Server owns the listener, the HTTP mux, and the per-connection read loops.
type Server struct {
	cfg     ServerConfig
	router  *Router
	health  *health.Handler
	metrics *observe.Metrics
}

// NewServer wires a Server. metrics may be nil, in which case the
// package-level default instruments are used.
func NewServer(cfg ServerConfig, router *Router, healthHandler *health.Handler, metrics *observe.Metrics) *Server {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Server{
		cfg:     cfg,
		router:  router,
		health:  healthHandler,
		metrics: metrics,
	}
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// When the configured port is already bound, successive ports are tried.
func (s *Server) Run(ctx context.Context) error {
	ln, port, err := s.listen()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler: s.handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	slog.Info("relay listening", "port", port)
	s.health.SetReady(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.health.SetReady(false)

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("relay: shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// listen binds the first free port starting at the configured one.
func (s *Server) listen() (net.Listener, int, error) {
	retries := s.cfg.MaxPortRetries
	if retries == 0 {
		retries = defaultMaxPortRetries
	}

	port := s.cfg.Port
	for attempt := 0; attempt <= retries; attempt++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("relay: listen on port %d: %w", port, err)
		}
		slog.Warn("port in use, trying next", "port", port)
		port++
	}
	return nil, 0, fmt.Errorf("relay: no free port in range %d-%d", s.cfg.Port, port-1)
}

// handler assembles the HTTP mux: websocket endpoint, metrics, health, and
// optional static client assets.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	if s.cfg.StaticDir != "" {
		mux.Handle("/", s.staticHandler())
	}

	return observe.Middleware(s.metrics)(mux)
}

// staticHandler serves the client asset bundle, falling back to index.html
// for unmatched paths so client-side routing works.
func (s *Server) staticHandler() http.Handler {
	fs := http.FileServer(http.Dir(s.cfg.StaticDir))
	index := filepath.Join(s.cfg.StaticDir, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(s.cfg.StaticDir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); err != nil {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// handleWebsocket upgrades the request and runs the connection's read loop
// until the peer goes away.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The reference deployment serves the client from any origin.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	ctx := r.Context()
	c := newConn(ws)
	s.metrics.ActiveConnections.Add(ctx, 1)
	slog.Info("channel connected", "conn_id", c.id)

	go c.writePump(ctx)

	defer func() {
		s.router.OnDisconnect(ctx, c)
		c.close()
		s.metrics.ActiveConnections.Add(ctx, -1)
		slog.Info("channel disconnected", "conn_id", c.id, "user_id", c.user())
	}()

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			slog.Warn("ignoring non-text frame", "conn_id", c.id)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("malformed envelope", "conn_id", c.id, "error", err)
			continue
		}
		s.router.HandleEnvelope(ctx, c, env)
	}
}
