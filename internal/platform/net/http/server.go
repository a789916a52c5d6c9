// Package http hosts the operational HTTP surface of a run
package http

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"sync"
	"time"

	perr "rhat/internal/platform/errors"
	"rhat/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *stdhttp.Server

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

// NewServer creates a server for addr. opts receive the *chi.Mux so callers
// can mount routes and middleware
func NewServer(addr string, opts ...func(*chi.Mux)) *Server {
	m := chi.NewRouter()
	m.Use(chimw.RequestID, Recover, AccessLog)
	for _, o := range opts {
		o(m)
	}
	return &Server{
		addr: addr,
		mux:  m,
		srv: &stdhttp.Server{
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Mux exposes the router, mainly for tests
func (s *Server) Mux() *chi.Mux { return s.mux }

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return perr.InvalidArgf("http server already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "listen %s", s.addr)
	}
	s.ln = ln
	s.done = make(chan error, 1)
	logger.Named("http").Info().Str("addr", ln.Addr().String()).Msg("http listening")
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, stdhttp.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return nil
}

// Run starts the server and blocks until ctx ends or serving fails
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	select {
	case err := <-s.done:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(sctx)
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.ln != nil
	s.mu.Unlock()
	if !started {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
