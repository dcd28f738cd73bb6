package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"pointcast/internal/api"
	"pointcast/internal/config"
	"pointcast/internal/hub"
	"pointcast/internal/presence"
	"pointcast/internal/session"
	"pointcast/internal/store"
	"pointcast/internal/websocket"
)

// Application wires every component and owns their lifecycle.
// Initialization order: store -> tracker -> service -> hub -> transport ->
// API -> HTTP.
type Application struct {
	config     *config.Config
	store      *store.SQLiteStore
	tracker    *presence.Tracker
	service    *session.Service
	commandHub *hub.Hub
	sweeper    *presence.Sweeper
	registry   *websocket.Registry
	httpServer *http.Server
}

// NewApplication builds a fully wired application. A store that cannot be
// opened aborts startup; running without persistence is not an option.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sessionStore, err := store.New(&store.Config{
		Path:    cfg.Store.Path,
		Timeout: cfg.Store.Timeout,
		TTL:     cfg.Session.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	tracker := presence.NewTracker()
	registry := websocket.NewRegistry()
	service := session.NewService(sessionStore, registry, tracker)
	commandHub := hub.NewHub(service, registry)
	sweeper := presence.NewSweeper(tracker, service, cfg.Session.SweepInterval, cfg.Session.InactivityThreshold)

	wsHandler := websocket.NewHandler(registry, commandHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteBuffer:  cfg.WebSocket.WriteBuffer,
	})
	apiServer := api.NewServer(sessionStore, service, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      sessionStore,
		tracker:    tracker,
		service:    service,
		commandHub: commandHub,
		sweeper:    sweeper,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Start verifies store connectivity, launches the background loops, and
// begins accepting connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting pointcast on %s", app.httpServer.Addr)

	if err := app.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("session store unreachable: %w", err)
	}

	if err := app.commandHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	if err := app.sweeper.Start(ctx); err != nil {
		app.commandHub.Stop()
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.sweeper.Stop()
		_ = app.commandHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("pointcast started")
		return nil
	case <-ctx.Done():
		_ = app.sweeper.Stop()
		_ = app.commandHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse dependency order:
// HTTP -> sweeper -> hub -> store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down pointcast")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.sweeper.Stop(); err != nil {
		log.Printf("Sweeper shutdown error: %v", err)
	}
	if err := app.commandHub.Stop(); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("pointcast shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
