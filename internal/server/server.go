// Package server exposes the room registry and signaling router over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/vanish/internal/config"
	"github.com/BioHazard786/vanish/internal/room"
	"github.com/BioHazard786/vanish/internal/signaling"
	"github.com/BioHazard786/vanish/internal/utils"
)

// Server owns the registry, the router and the open connections.
type Server struct {
	cfg      *config.Server
	registry *room.Registry
	router   *signaling.Router
	log      *slog.Logger
	localIP  func() (string, error)

	mu       sync.Mutex
	conns    map[*signaling.Conn]struct{}
	draining bool
}

// New builds a Server from cfg.
func New(cfg *config.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	registry := room.NewRegistry(room.Options{
		Capacity:      cfg.MaxUsers,
		RemoveOnEmpty: !cfg.KeepEmptyRooms,
		Timeout:       cfg.RoomTimeout,
		Logger:        logger,
	})
	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   signaling.NewRouter(registry, logger),
		log:      logger.With("component", "server"),
		localIP:  utils.LocalIPv4,
		conns:    make(map[*signaling.Conn]struct{}),
	}
}

// Registry exposes the room table, mainly for the startup banner and tests.
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// within the configured timeout. The room sweeper runs alongside when empty
// rooms are kept.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("Signaling server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if !s.registry.RemoveOnEmpty() {
		g.Go(func() error {
			s.sweepLoop(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.closeConnections()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.log.Info("Signaling server stopped")
		return nil
	})

	return g.Wait()
}

func (s *Server) sweepLoop(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.registry.Sweep(now); len(removed) > 0 {
				s.log.Info("Swept expired rooms", "count", len(removed))
			}
		}
	}
}

func (s *Server) track(c *signaling.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *signaling.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// closeConnections stops accepting websockets and closes the open ones.
// Hijacked connections are not covered by http.Server.Shutdown.
func (s *Server) closeConnections() {
	s.mu.Lock()
	s.draining = true
	conns := make([]*signaling.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Shutdown()
	}
}
