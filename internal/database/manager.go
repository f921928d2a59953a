package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

// SystemDatabase returns the engine's maintenance database, used when a
// caller names no database and the descriptor carries none either.
func (e Engine) SystemDatabase() string {
	switch e {
	case SQLServer:
		return "master"
	default:
		return "postgres"
	}
}

// connEntry tracks one cached connection. ready is closed once the
// first caller's dial attempt finishes; waiters then read conn/err.
type connEntry struct {
	conn  Connection
	err   error
	ready chan struct{}
}

// Manager owns the mapping from (named connection, database) to a live
// connection. The first caller for a key dials and populates the cache;
// concurrent callers for the same key wait on that in-flight dial rather
// than opening a duplicate. Connections stay open until CloseAll.
type Manager struct {
	mu          sync.Mutex
	descriptors map[string]*TargetDescriptor
	conns       map[string]*connEntry
	registry    *Registry
	logger      *logger.Logger
	closed      bool
}

// NewManager creates a connection manager over the configured named
// connections.
func NewManager(descriptors map[string]*TargetDescriptor, registry *Registry, log *logger.Logger) *Manager {
	if registry == nil {
		registry = GlobalRegistry()
	}
	return &Manager{
		descriptors: descriptors,
		conns:       make(map[string]*connEntry),
		registry:    registry,
		logger:      log,
	}
}

// Names returns the configured connection names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.descriptors))
	for name := range m.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor returns the descriptor for a named connection.
func (m *Manager) Descriptor(name string) (*TargetDescriptor, error) {
	resolved, err := m.resolveName(name)
	if err != nil {
		return nil, err
	}
	return m.descriptors[resolved], nil
}

// resolveName applies default-name resolution: an explicit name must
// exist; an empty name resolves to the sole configured connection or
// fails listing the candidates.
func (m *Manager) resolveName(name string) (string, error) {
	if name != "" {
		if _, ok := m.descriptors[name]; !ok {
			return "", fmt.Errorf("%w: %q (available: %s)", ErrConnectionNotFound, name, strings.Join(m.Names(), ", "))
		}
		return name, nil
	}

	switch len(m.descriptors) {
	case 0:
		return "", NewConfigurationError("connections", "no named connections are configured")
	case 1:
		return m.Names()[0], nil
	default:
		return "", fmt.Errorf("%w: multiple connections configured, pass one of: %s", ErrAmbiguousConnection, strings.Join(m.Names(), ", "))
	}
}

// Get returns the open connection for (name, database), dialing it on
// first use. An empty name resolves per resolveName; an empty database
// falls back to the descriptor's database, then the engine's system
// database.
func (m *Manager) Get(ctx context.Context, name, database string) (Connection, error) {
	resolved, err := m.resolveName(name)
	if err != nil {
		return nil, err
	}

	desc := m.descriptors[resolved]
	if database == "" {
		database = desc.Database
	}
	if database == "" {
		database = desc.Engine.SystemDatabase()
	}

	key := resolved + "/" + database

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: connection manager is shut down", ErrConnectionClosed)
	}
	if entry, ok := m.conns[key]; ok {
		m.mu.Unlock()
		select {
		case <-entry.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.conn, nil
	}

	entry := &connEntry{ready: make(chan struct{})}
	m.conns[key] = entry
	m.mu.Unlock()

	conn, err := m.registry.Connect(ctx, desc.WithDatabase(database))
	if err != nil {
		entry.err = err
		close(entry.ready)

		// A failed dial must not poison the cache; the next caller
		// retries from scratch.
		m.mu.Lock()
		if m.conns[key] == entry {
			delete(m.conns, key)
		}
		m.mu.Unlock()

		if m.logger != nil {
			// The raw driver error may embed connection details, so the
			// log line sticks to the redacted target.
			m.logger.Warnf("Failed to open connection %q to %s", resolved, desc.WithDatabase(database).Redacted())
		}
		return nil, err
	}

	// The manager may have been shut down while the dial was in flight.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		entry.err = fmt.Errorf("%w: connection manager is shut down", ErrConnectionClosed)
		close(entry.ready)
		return nil, entry.err
	}
	m.mu.Unlock()

	entry.conn = conn
	close(entry.ready)

	if m.logger != nil {
		m.logger.Infof("Opened connection %s for %q (%s)", conn.ID(), resolved, desc.WithDatabase(database).Redacted())
	}
	return conn, nil
}

// HealthCheck pings every open connection and reports the first failure.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	open := make(map[string]Connection)
	for key, entry := range m.conns {
		select {
		case <-entry.ready:
			if entry.err == nil && entry.conn != nil {
				open[key] = entry.conn
			}
		default:
		}
	}
	m.mu.Unlock()

	for key, conn := range open {
		if err := conn.Ping(ctx); err != nil {
			return fmt.Errorf("connection %s: %w", key, err)
		}
	}
	return nil
}

// OpenCount returns the number of open cached connections.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, entry := range m.conns {
		select {
		case <-entry.ready:
			if entry.err == nil && entry.conn != nil {
				count++
			}
		default:
		}
	}
	return count
}

// CloseAll closes every cached connection and marks the manager shut
// down; subsequent Get calls fail.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.conns
	m.conns = make(map[string]*connEntry)
	m.closed = true
	m.mu.Unlock()

	for key, entry := range entries {
		select {
		case <-entry.ready:
		default:
			// Dial still in flight; the dialer notices the shutdown
			// flag when it finishes and closes its own connection.
			continue
		}
		if entry.err != nil || entry.conn == nil {
			continue
		}
		if err := entry.conn.Close(); err != nil && m.logger != nil {
			m.logger.Warnf("Error closing connection %s: %v", key, err)
		}
	}

	if m.logger != nil {
		m.logger.Info("All database connections closed")
	}
}
