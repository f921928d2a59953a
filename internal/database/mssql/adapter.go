package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

// DefaultSchema is used when a caller does not name one.
const DefaultSchema = "dbo"

func init() {
	database.Register(NewAdapter())
}

// Adapter implements database.Adapter for Microsoft SQL Server.
type Adapter struct{}

// NewAdapter creates a new SQL Server adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Engine returns the engine identifier.
func (a *Adapter) Engine() database.Engine {
	return database.SQLServer
}

// Connect establishes a connection bound to the descriptor's
// (server, database) pair.
func (a *Adapter) Connect(ctx context.Context, desc *database.TargetDescriptor) (database.Connection, error) {
	db, err := a.open(ctx, desc)
	if err != nil {
		return nil, err
	}

	return &Connection{
		id:             uuid.NewString(),
		db:             db,
		database:       desc.Database,
		commandTimeout: desc.CommandTimeout,
		connected:      1,
	}, nil
}

// TestConnection verifies the target is reachable, then tears the probe
// connection down.
func (a *Adapter) TestConnection(ctx context.Context, desc *database.TargetDescriptor) error {
	db, err := a.open(ctx, desc)
	if err != nil {
		return err
	}
	return db.Close()
}

func (a *Adapter) open(ctx context.Context, desc *database.TargetDescriptor) (*sql.DB, error) {
	var connString strings.Builder

	fmt.Fprintf(&connString, "server=%s;port=%d;database=%s;user id=%s;password=%s",
		desc.Host,
		desc.Port,
		desc.Database,
		adoValue(desc.User),
		adoValue(desc.Password))

	if desc.SSL {
		connString.WriteString(";encrypt=true;trustservercertificate=true")
	} else {
		connString.WriteString(";encrypt=disable")
	}

	if desc.ConnectTimeout > 0 {
		fmt.Fprintf(&connString, ";dial timeout=%d", int(desc.ConnectTimeout.Seconds()))
	}

	db, err := sql.Open("sqlserver", connString.String())
	if err != nil {
		return nil, database.NewConnectionError(database.SQLServer, desc.Host, desc.Port, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, database.NewConnectionError(database.SQLServer, desc.Host, desc.Port, err)
	}

	return db, nil
}

// adoValue brace-quotes a connection string value so the driver's
// parser does not split it on an embedded semicolon.
func adoValue(v string) string {
	if strings.ContainsAny(v, ";{}") {
		return "{" + strings.ReplaceAll(v, "}", "}}") + "}"
	}
	return v
}

// Connection implements database.Connection for SQL Server.
type Connection struct {
	id             string
	db             *sql.DB
	database       string
	commandTimeout time.Duration
	connected      int32
}

// wrapErr tags an engine failure with the operation and the configured
// command timeout, so deadline expiries surface as timeout errors.
func (c *Connection) wrapErr(operation string, err error) error {
	return database.WrapError(database.SQLServer, operation, c.commandTimeout, err)
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Engine returns the engine identifier.
func (c *Connection) Engine() database.Engine {
	return database.SQLServer
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
	return c.db.PingContext(ctx)
}

// Close closes the connection.
func (c *Connection) Close() error {
	atomic.StoreInt32(&c.connected, 0)
	return c.db.Close()
}

// ListDatabases lists the user databases on the server.
func (c *Connection) ListDatabases(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sys.databases
		WHERE name NOT IN ('master', 'tempdb', 'model', 'msdb')
		ORDER BY name`

	rows, err := c.db.QueryContext(ctx, query)
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
