// Package api provides the HTTP status API for c4bridge.
//
// It exposes the entity inventory with live state, Director connection
// status, and operational metrics for monitoring. Commands flow over
// MQTT, not HTTP; this surface is read-mostly.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/c4bridge/internal/bridge"
	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/entity"
	"github.com/nerrad567/c4bridge/internal/infrastructure/config"
	"github.com/nerrad567/c4bridge/internal/infrastructure/database"
	"github.com/nerrad567/c4bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EntitySource provides the entity inventory and bridge counters.
// *bridge.Bridge satisfies this.
type EntitySource interface {
	Registry() *entity.Registry
	GetMetrics() bridge.Metrics
}

// DirectorStatus exposes Director HTTPS client state and item detail
// lookups.
type DirectorStatus interface {
	Stats() director.ClientStats
	HealthCheck(ctx context.Context) error
	GetItemBindings(ctx context.Context, itemID int) (json.RawMessage, error)
	GetItemNetwork(ctx context.Context, itemID int) (json.RawMessage, error)
}

// EventStatus exposes Director websocket feed state.
type EventStatus interface {
	Stats() director.EventStats
}

// TokenStatus exposes bearer token state and refresh.
type TokenStatus interface {
	Status() director.TokenStatus
	Refresh(ctx context.Context) error
}

// ConnChecker reports a connection's liveness.
type ConnChecker interface {
	IsConnected() bool
}

// ItemStore exposes the persisted Director item snapshot. *registry.Store
// satisfies this; it serves the inventory even while the Director is
// unreachable.
type ItemStore interface {
	LoadItems(ctx context.Context, category string) ([]director.Item, error)
	ItemCount(ctx context.Context) (int, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   EntitySource
	Director DirectorStatus
	Events   EventStatus
	Tokens   TokenStatus
	MQTT     ConnChecker                 // optional
	Influx   ConnChecker                 // optional
	Items    ItemStore                   // optional, persisted item snapshot
	DB       *database.DB                // optional, for pool stats
	Reload   func(context.Context) error // optional, re-runs entity discovery
	Version  string
}

// Server is the HTTP status API server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    EntitySource
	director  DirectorStatus
	events    EventStatus
	tokens    TokenStatus
	mqtt      ConnChecker
	influx    ConnChecker
	items     ItemStore
	db        *database.DB
	reload    func(context.Context) error
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		director:  deps.Director,
		events:    deps.Events,
		tokens:    deps.Tokens,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		items:     deps.Items,
		db:        deps.DB,
		reload:    deps.Reload,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	_ = ctx
	return nil
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
