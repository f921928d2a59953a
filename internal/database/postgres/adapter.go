package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// DefaultSchema is used when a caller does not name one.
const DefaultSchema = "public"

func init() {
	database.Register(NewAdapter())
}

// Adapter implements database.Adapter for PostgreSQL.
type Adapter struct{}

// NewAdapter creates a new PostgreSQL adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Engine returns the engine identifier.
func (a *Adapter) Engine() database.Engine {
	return database.Postgres
}

// Connect establishes a pooled connection bound to the descriptor's
// (server, database) pair.
func (a *Adapter) Connect(ctx context.Context, desc *database.TargetDescriptor) (database.Connection, error) {
	pool, err := a.open(ctx, desc)
	if err != nil {
		return nil, err
	}

	return &Connection{
		id:             uuid.NewString(),
		pool:           pool,
		database:       desc.Database,
		commandTimeout: desc.CommandTimeout,
		connected:      1,
	}, nil
}

// TestConnection verifies the target is reachable, then tears the probe
// connection down.
func (a *Adapter) TestConnection(ctx context.Context, desc *database.TargetDescriptor) error {
	pool, err := a.open(ctx, desc)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func (a *Adapter) open(ctx context.Context, desc *database.TargetDescriptor) (*pgxpool.Pool, error) {
	var connString strings.Builder

	// Credentials are percent-encoded so passwords containing URL
	// metacharacters survive the round trip through pgx's parser.
	fmt.Fprintf(&connString, "postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(desc.User),
		url.QueryEscape(desc.Password),
		desc.Host,
		desc.Port,
		desc.Database)

	if desc.SSL {
		connString.WriteString("?sslmode=require")
	} else {
		connString.WriteString("?sslmode=disable")
	}

	if desc.ConnectTimeout > 0 {
		fmt.Fprintf(&connString, "&connect_timeout=%d", int(desc.ConnectTimeout.Seconds()))
	}

	pool, err := pgxpool.New(ctx, connString.String())
	if err != nil {
		return nil, database.NewConnectionError(database.Postgres, desc.Host, desc.Port, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, database.NewConnectionError(database.Postgres, desc.Host, desc.Port, err)
	}

	return pool, nil
}

// Connection implements database.Connection for PostgreSQL.
type Connection struct {
	id             string
	pool           *pgxpool.Pool
	database       string
	commandTimeout time.Duration
	connected      int32
}

// wrapErr tags an engine failure with the operation and the configured
// command timeout, so deadline expiries surface as timeout errors.
func (c *Connection) wrapErr(operation string, err error) error {
	return database.WrapError(database.Postgres, operation, c.commandTimeout, err)
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Engine returns the engine identifier.
func (c *Connection) Engine() database.Engine {
	return database.Postgres
}

// Database returns the bound database name.
func (c *Connection) Database() string {
	return c.database
}

// IsConnected returns whether the connection is active.
func (c *Connection) IsConnected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Ping checks if the connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close closes the connection pool.
func (c *Connection) Close() error {
	atomic.StoreInt32(&c.connected, 0)
	c.pool.Close()
	return nil
}

// ListDatabases lists the non-template databases on the server.
func (c *Connection) ListDatabases(ctx context.Context) ([]string, error) {
	query := `
		SELECT datname
		FROM pg_database
		WHERE datistemplate = false
		ORDER BY datname`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, c.wrapErr("list databases", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, c.wrapErr("list databases", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrapErr("list databases", err)
	}

	return names, nil
}
