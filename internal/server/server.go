// Package server exposes the scheduler over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gensched/internal/auth"
	"github.com/watzon/gensched/internal/config"
	"github.com/watzon/gensched/internal/database"
	"github.com/watzon/gensched/internal/events"
	"github.com/watzon/gensched/internal/scheduler"
	"github.com/watzon/gensched/internal/store"
)

type Server struct {
	cfg        *config.Config
	db         *database.DB
	store      *store.Store
	launcher   *scheduler.Launcher
	bus        *events.EventBus
	tokens     *auth.TokenService
	version    string
	httpServer *http.Server
	router     *Router
}

type Option func(*Server)

// WithEventBus enables the websocket event stream.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

func New(cfg *config.Config, db *database.DB, st *store.Store, launcher *scheduler.Launcher, opts ...Option) *Server {
	srv := &Server{
		cfg:      cfg,
		db:       db,
		store:    st,
		launcher: launcher,
		version:  "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	if cfg.Server.Auth.Enabled() {
		srv.tokens = auth.NewTokenService(cfg.Server.Auth)
	} else {
		log.Warn().Msg("No server.auth.jwt_secret configured, the API is unauthenticated")
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.tokens != nil).
		Msg("Starting server")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}
