package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redbco/redb-sqlgateway/internal/cache"
	"github.com/redbco/redb-sqlgateway/internal/config"
	"github.com/redbco/redb-sqlgateway/internal/database"
	"github.com/redbco/redb-sqlgateway/internal/prompts"
	"github.com/redbco/redb-sqlgateway/internal/protocol"
	"github.com/redbco/redb-sqlgateway/internal/tools"
	"github.com/redbco/redb-sqlgateway/pkg/health"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// ServiceName identifies the gateway in logs and MCP server info.
const ServiceName = "redb-sqlgateway"

const healthCheckInterval = 30 * time.Second

// Engine wires the configuration, connection manager, query cache and
// protocol handler together and drives the selected transport.
type Engine struct {
	config     *config.Config
	logger     *logger.Logger
	version    string
	instanceID string

	manager *database.Manager
	cache   *cache.QueryCache
	checker *health.Checker
	handler *protocol.Handler
	tools   *tools.Handler

	httpServer *protocol.HTTPServer

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	errCh   chan error
}

// NewEngine creates a gateway engine from a validated configuration.
func NewEngine(cfg *config.Config, log *logger.Logger, version string) *Engine {
	return &Engine{
		config:     cfg,
		logger:     log,
		version:    version,
		instanceID: uuid.New().String(),
		checker:    health.NewChecker(),
		stopCh:     make(chan struct{}),
		errCh:      make(chan error, 1),
	}
}

// Start brings up the connection manager, the optional query cache and
// the transport named in the configuration. It returns once the
// transport is serving; runtime failures arrive on Err.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}

	e.logger.Infof("Starting gateway instance %s (transport: %s)", e.instanceID, e.config.Server.Transport)

	e.manager = database.NewManager(e.config.Descriptors, database.GlobalRegistry(), e.logger)
	e.logger.Infof("Registered %d database connection(s)", len(e.config.Descriptors))

	if e.config.Cache.Enabled {
		queryCache, err := cache.New(ctx, cache.Config{
			Addr:     e.config.Cache.RedisAddr,
			Password: e.config.Cache.RedisPassword,
			DB:       e.config.Cache.RedisDB,
			TTL:      e.config.Cache.TTL.Std(),
		}, e.logger)
		if err != nil {
			// The cache is an accelerator, not a dependency. Queries
			// still run when Redis is unreachable.
			e.logger.Warnf("Query cache disabled: %v", err)
		} else {
			e.cache = queryCache
			e.logger.Infof("Query cache enabled (ttl: %s)", e.config.Cache.TTL.Std())
		}
	}

	e.tools = tools.NewHandler(e.logger, e.manager, e.cache, tools.Limits{
		DefaultMaxRows:  e.config.Query.DefaultMaxRows,
		AbsoluteMaxRows: e.config.Query.AbsoluteMaxRows,
		MaxQueryLength:  e.config.Query.MaxQueryLength,
		CommandTimeout:  e.config.Query.CommandTimeout.Std(),
	})

	e.handler = protocol.NewHandler(e.logger, ServiceName, e.version)
	e.handler.SetToolHandler(e.tools)
	e.handler.SetPromptHandler(prompts.NewHandler(e.logger))

	if e.config.Server.Transport == config.TransportHTTP {
		e.httpServer = protocol.NewHTTPServer(e.config.Server.Listen, e.handler, e.checker, e.logger)
	}

	e.running = true
	e.mu.Unlock()

	e.runHealthChecks()
	go e.healthLoop()

	if e.httpServer != nil {
		go func() {
			if err := e.httpServer.Start(); err != nil {
				e.errCh <- fmt.Errorf("http server failed: %w", err)
			}
		}()
		e.logger.Infof("MCP endpoint listening on %s", e.config.Server.Listen)
	} else {
		stdio := protocol.NewStdioServer(e.handler, e.logger)
		go func() {
			e.errCh <- stdio.Run(ctx)
		}()
		e.logger.Infof("MCP serving on stdio")
	}

	return nil
}

// Stop shuts the transport down and releases every open database
// connection. It is safe to call Stop on an engine that never started.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	e.logger.Infof("Stopping gateway instance %s", e.instanceID)
	close(e.stopCh)

	if e.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := e.httpServer.Shutdown(shutdownCtx); err != nil {
			e.logger.Errorf("HTTP server shutdown failed: %v", err)
		}
		cancel()
	}

	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.logger.Errorf("Failed to close query cache: %v", err)
		}
	}

	if e.manager != nil {
		e.manager.CloseAll()
	}

	e.logger.Infof("Gateway stopped")
	return nil
}

// Err exposes fatal transport errors to the caller.
func (e *Engine) Err() <-chan error {
	return e.errCh
}

// InstanceID returns the identifier assigned to this process.
func (e *Engine) InstanceID() string {
	return e.instanceID
}

// IsRunning reports whether Start has been called without a matching
// Stop.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// CheckHealth reports an error when any registered health check is
// failing.
func (e *Engine) CheckHealth() error {
	if e.checker.GetOverallStatus() == health.StatusUnhealthy {
		return fmt.Errorf("gateway is unhealthy")
	}
	return nil
}

// CollectMetrics returns the request and query counters together with
// the number of open database connections.
func (e *Engine) CollectMetrics() map[string]int64 {
	metrics := make(map[string]int64)
	e.mu.RLock()
	toolHandler := e.tools
	manager := e.manager
	e.mu.RUnlock()
	if toolHandler != nil {
		for name, value := range toolHandler.Metrics() {
			metrics[name] = value
		}
	}
	if manager != nil {
		metrics["open_connections"] = int64(manager.OpenCount())
	}
	return metrics
}

func (e *Engine) healthLoop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.runHealthChecks()
		}
	}
}

func (e *Engine) runHealthChecks() {
	e.checker.RunCheck("connections", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.manager.HealthCheck(ctx)
	})
	if e.cache != nil {
		e.checker.RunCheck("cache", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return e.cache.Ping(ctx)
		})
	}
}
