// Package server assembles the echo HTTP server for the MedCertify
// backend.
package server

import (
	"context"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Kr3yzi/medcertify/internal/api"
	"github.com/Kr3yzi/medcertify/internal/chain"
	"github.com/Kr3yzi/medcertify/internal/config"
	"github.com/Kr3yzi/medcertify/internal/storage"
)

var log = logging.Logger("server")

// Server is the HTTP server instance.
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	store    storage.Store
	registry chain.Registry
}

type Option func(*serverOptions)

// WithStore overrides the persistence backend.
func WithStore(store storage.Store) Option {
	return func(s *serverOptions) {
		s.store = store
	}
}

// WithRegistry overrides the certificate registry backend.
func WithRegistry(registry chain.Registry) Option {
	return func(s *serverOptions) {
		s.registry = registry
	}
}

type serverOptions struct {
	store    storage.Store
	registry chain.Registry
}

// New creates a new server instance with the provided configuration.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	options := &serverOptions{
		store:    storage.NewMemoryStore(),
		registry: chain.NewMemoryRegistry(),
	}
	for _, opt := range opts {
		opt(options)
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.ReadHeaderTimeout = cfg.Server.ReadTimeout
	e.Server.IdleTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	if err := api.RegisterRoutes(e, cfg, options.store, options.registry); err != nil {
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	return &Server{
		echo:     e,
		config:   cfg,
		store:    options.store,
		registry: options.registry,
	}, nil
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := s.config.Server.Address()
	log.Infow("starting HTTP server", "addr", addr)

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server start failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down server")

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Echo returns the underlying echo instance for advanced configuration
// and in-process tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Store returns the persistence backend the server was built with.
func (s *Server) Store() storage.Store {
	return s.store
}

// Registry returns the certificate registry the server was built with.
func (s *Server) Registry() chain.Registry {
	return s.registry
}
