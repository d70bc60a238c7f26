package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/SolGo/internal/debug"
)

// shutdownGrace bounds how long open SSE streams may delay shutdown.
const shutdownGrace = 5 * time.Second

// Server is the read-only status server: JSON snapshot, event stream and
// Prometheus metrics. It accepts no commands.
type Server struct {
	addr     string
	handlers *Handlers
}

func NewServer(addr string, broadcaster *StatusBroadcaster, status *StatusStore, metrics http.Handler) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, status, metrics),
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handlers.HandleStatus)
	mux.HandleFunc("GET /status/stream", s.handlers.HandleStatusStream)
	mux.HandleFunc("GET /metrics", s.handlers.HandleMetrics)
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// Streams still open after the grace period are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Status server listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	}
}
