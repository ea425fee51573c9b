// Package app wires the chat server together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"chatroom/internal/api"
	"chatroom/internal/config"
	"chatroom/internal/database"
	"chatroom/internal/hub"
	"chatroom/internal/metrics"
	"chatroom/internal/redisstore"
	"chatroom/internal/websocket"
	dbconfig "chatroom/pkg/database"
	"chatroom/pkg/interfaces"
)

// Application coordinates all system components.
// Initialization order: store → metrics → registry → hub → handlers → HTTP.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	store      interfaces.Store
	registry   *websocket.Registry
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
	gatherer   *prometheus.Registry

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication validates cfg and builds every component. A nil cfg means
// defaults; a nil logger discards output.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	registry := websocket.NewRegistry(logger.Named("registry"))

	chatHub := hub.NewHub(hubConfig(cfg.Chat), registry, store,
		hub.WithLogger(logger.Named("hub")),
		hub.WithMetrics(m),
	)

	wsHandler := websocket.NewHandler(registry, chatHub, websocketConfig(cfg.WebSocket), logger.Named("websocket"), m)

	apiServer := api.NewServer(chatHub, store,
		api.WithMetrics(reg),
		api.WithLogger(logger.Named("api")),
	)
	apiServer.Handle("/ws", wsHandler)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		store:      store,
		registry:   registry,
		hub:        chatHub,
		apiServer:  apiServer,
		httpServer: httpServer,
		gatherer:   reg,
	}, nil
}

// OpenStore opens the persistence backend selected by cfg.Storage.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interfaces.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger.Named("redis"))
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		return store, nil
	case config.DriverSQLite:
		dbCfg := dbconfig.DefaultConfig()
		dbCfg.DatabasePath = cfg.Database.Path
		dbCfg.MaxConnections = cfg.Database.MaxConnections
		dbCfg.WriteTimeout = cfg.Database.Timeout
		manager, err := database.NewManager(dbCfg, logger.Named("database"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		return manager, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func hubConfig(c *config.ChatConfig) hub.Config {
	hc := hub.DefaultConfig()
	hc.HistoryLimit = c.HistoryLimit
	hc.SearchLimit = c.SearchLimit
	hc.StoreTimeout = c.StoreTimeout
	hc.RateLimit = c.RateLimit
	hc.RateBurst = c.RateBurst
	return hc
}

func websocketConfig(c *config.WebSocketConfig) websocket.Config {
	return websocket.Config{
		PingInterval:   c.PingInterval,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		SendBuffer:     c.BufferSize,
		MaxMessageSize: c.MaxMessageSize,
	}
}

// Handler returns the root HTTP handler (API, health, metrics and /ws).
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// Hub exposes the chat coordinator.
func (app *Application) Hub() *hub.Hub {
	return app.hub
}

// Start runs the hub and begins serving HTTP. It returns once the listener
// is bound.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("chat server started",
			zap.String("addr", ln.Addr().String()),
			zap.String("storage", app.config.Storage.Driver),
		)
		return nil
	case <-ctx.Done():
		_ = app.httpServer.Close()
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: HTTP, sockets, hub, store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down chat server")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http shutdown", zap.Error(err))
		errs = append(errs, err)
	}

	// Hijacked websocket connections are not tracked by http.Server.
	app.registry.CloseAll()
	app.waitForSockets(ctx)

	if err := app.hub.Stop(); err != nil {
		app.logger.Warn("hub shutdown", zap.Error(err))
	}

	if err := app.store.Close(); err != nil {
		app.logger.Warn("store shutdown", zap.Error(err))
		errs = append(errs, err)
	}

	app.logger.Info("chat server stopped")
	return errors.Join(errs...)
}

func (app *Application) waitForSockets(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for app.registry.Count() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetAddr returns the bound address once started, otherwise the configured one.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
