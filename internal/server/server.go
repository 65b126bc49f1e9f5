// Package server exposes the query engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/san-kum/lazyfall/internal/config"
	"github.com/san-kum/lazyfall/internal/sim"
)

const shutdownGrace = 5 * time.Second

type Server struct {
	addr           string
	engine         *sim.Engine
	maxID          int
	origin         string
	streamInterval time.Duration
	log            *slog.Logger
	streams        *streamSet
}

func New(cfg *config.Config, engine *sim.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:           cfg.Addr(),
		engine:         engine,
		maxID:          cfg.Population.MaxID,
		origin:         cfg.Server.AllowedOrigin,
		streamInterval: cfg.StreamInterval(),
		log:            log,
		streams:        newStreamSet(),
	}
}

// Handler returns the routed handler wrapped in the CORS policy and the
// access log.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /GetPos/{id}", s.getPos)
	mux.HandleFunc("GET /StreamPos/{id}", s.streamPos)

	policy := cors.New(cors.Options{
		AllowedOrigins: []string{s.origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Accept", "Content-Type"},
	})

	return accessLog(s.log, policy.Handler(mux))
}

// Start serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server")
		s.streams.closeAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Server shutdown failed", "error", err)
		}
	}()

	s.log.Info("Starting server", "addr", ln.Addr().String(), "bodies", s.maxID+1, "origin", s.origin)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		s.log.Info("Server stopped")
		return nil
	}
	return err
}
