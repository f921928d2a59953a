package database

import (
	"context"
	"fmt"
	"sync"
)

// Adapter creates connections for one database engine.
type Adapter interface {
	// Engine returns the engine identifier this adapter serves.
	Engine() Engine

	// Connect establishes a connection (or pool) bound to the
	// descriptor's (server, database) pair.
	Connect(ctx context.Context, desc *TargetDescriptor) (Connection, error)

	// TestConnection verifies the target is reachable and the
	// credentials work, then tears the probe connection down.
	TestConnection(ctx context.Context, desc *TargetDescriptor) error
}

// Connection is a live, engine-specific connection bound to exactly one
// (server, database) pair. Connections are opened and closed only by the
// connection manager; read-only semantics make shared concurrent use safe.
type Connection interface {
	// ID returns the unique identifier assigned when the connection
	// was opened.
	ID() string

	// Engine returns the engine identifier.
	Engine() Engine

	// Database returns the bound database name.
	Database() string

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close tears the connection down.
	Close() error

	// ListDatabases returns the names of user databases on the server.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListTables returns tables and views, optionally filtered by schema.
	ListTables(ctx context.Context, schema string) ([]TableInfo, error)

	// DescribeTable assembles the full schema snapshot for one table.
	DescribeTable(ctx context.Context, schema, table string) (*TableSchema, error)

	// ExecuteQuery runs validated SQL, reading at most maxRows rows and
	// stopping early once the cap is reached.
	ExecuteQuery(ctx context.Context, sql string, maxRows int) (*QueryResult, error)

	// GetQueryPlan returns the engine's execution plan for validated SQL
	// without executing it.
	GetQueryPlan(ctx context.Context, sql string) (*QueryPlan, error)
}

// Registry manages the registration and retrieval of engine adapters.
type Registry struct {
	adapters map[Engine]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Engine]Adapter),
	}
}

// Register registers an engine adapter. Registering the same engine
// twice replaces the earlier adapter.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[adapter.Engine()] = adapter
}

// Get retrieves a registered adapter by engine.
// Returns ErrAdapterNotFound if the adapter is not registered.
func (r *Registry) Get(engine Engine) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[engine]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, engine)
	}

	return adapter, nil
}

// IsRegistered checks if an adapter is registered for the given engine.
func (r *Registry) IsRegistered(engine Engine) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.adapters[engine]
	return exists
}

// ListRegistered returns all registered engines.
func (r *Registry) ListRegistered() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]Engine, 0, len(r.adapters))
	for engine := range r.adapters {
		engines = append(engines, engine)
	}

	return engines
}

// Connect resolves the descriptor's engine to an adapter and connects.
func (r *Registry) Connect(ctx context.Context, desc *TargetDescriptor) (Connection, error) {
	adapter, err := r.Get(desc.Engine)
	if err != nil {
		return nil, NewConfigurationError("type", fmt.Sprintf("no adapter for engine %q", desc.Engine))
	}

	return adapter.Connect(ctx, desc)
}

// globalRegistry is the default registry; engine packages register
// themselves into it from init.
var globalRegistry = NewRegistry()

// Register registers an adapter in the global registry.
func Register(adapter Adapter) {
	globalRegistry.Register(adapter)
}

// Get retrieves an adapter from the global registry.
func Get(engine Engine) (Adapter, error) {
	return globalRegistry.Get(engine)
}

// IsRegistered checks if an adapter is registered in the global registry.
func IsRegistered(engine Engine) bool {
	return globalRegistry.IsRegistered(engine)
}

// GlobalRegistry returns the global adapter registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}
