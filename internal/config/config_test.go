package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-sqlgateway/internal/database"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvConnection, "")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
connections:
  primary: "type=postgres;host=localhost;user=ro;password=secret;database=app"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, ":8480", cfg.Server.Listen)
	assert.Equal(t, 1000, cfg.Query.DefaultMaxRows)
	assert.Equal(t, 10000, cfg.Query.AbsoluteMaxRows)
	assert.Equal(t, 50000, cfg.Query.MaxQueryLength)
	assert.Equal(t, 30*time.Second, cfg.Query.CommandTimeout.Std())
	assert.Equal(t, 10*time.Second, cfg.Query.ConnectTimeout.Std())
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL.Std())
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesDescriptors(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
connections:
  primary: "type=postgres;host=db.internal;user=ro;password=secret;database=app"
  sales: "type=mssql;host=mssql.internal;port=14330;user=reader;password=secret2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Descriptors, 2)

	primary := cfg.Descriptors["primary"]
	require.NotNil(t, primary)
	assert.Equal(t, database.Postgres, primary.Engine)
	assert.Equal(t, 5432, primary.Port)
	assert.Equal(t, "app", primary.Database)

	sales := cfg.Descriptors["sales"]
	require.NotNil(t, sales)
	assert.Equal(t, database.SQLServer, sales.Engine)
	assert.Equal(t, 14330, sales.Port)
}

func TestLoadEnvConnection(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConnection, "type=postgres;host=localhost;user=ro;password=secret;database=app")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Contains(t, cfg.Connections, "default")
	require.Contains(t, cfg.Descriptors, "default")
	assert.Equal(t, database.Postgres, cfg.Descriptors["default"].Engine)
}

func TestLoadRequiresConnections(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.Error(t, err)

	var cfgErr *database.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "connections", cfgErr.Field)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  transport: tcp
connections:
  primary: "type=postgres;host=localhost;user=ro;password=secret"
`)

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *database.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "server.transport", cfgErr.Field)
}

func TestLoadAppliesQueryTimeoutsToDescriptors(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
query:
  command_timeout: 5s
  connect_timeout: 3s
connections:
  plain: "type=postgres;host=localhost;user=ro;password=secret"
  tuned: "type=postgres;host=localhost;user=ro;password=secret;command timeout=60;connect timeout=20"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Descriptors without their own timeouts inherit the config ones.
	assert.Equal(t, 5*time.Second, cfg.Descriptors["plain"].CommandTimeout)
	assert.Equal(t, 3*time.Second, cfg.Descriptors["plain"].ConnectTimeout)

	// Descriptor-level timeouts win.
	assert.Equal(t, 60*time.Second, cfg.Descriptors["tuned"].CommandTimeout)
	assert.Equal(t, 20*time.Second, cfg.Descriptors["tuned"].ConnectTimeout)
}

func TestLoadAcceptsIntegerSecondTimeouts(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
query:
  command_timeout: 45
cache:
  ttl: 2m
connections:
  primary: "type=postgres;host=localhost;user=ro;password=secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Query.CommandTimeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL.Std())
}

func TestLoadRejectsMalformedTimeout(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
query:
  command_timeout: soon
connections:
  primary: "type=postgres;host=localhost;user=ro;password=secret"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid duration "soon"`)
}

func TestLoadReportsBadDescriptor(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
connections:
  broken: "type=postgres;host=localhost"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `connection "broken"`)

	var cfgErr *database.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "user", cfgErr.Field)
}

func TestLoadEnvDoesNotOverrideNamedDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConnection, "type=mssql;host=envhost;user=ro;password=envsecret")
	path := writeConfig(t, `
connections:
  default: "type=postgres;host=filehost;user=ro;password=filesecret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, database.Postgres, cfg.Descriptors["default"].Engine)
	assert.Equal(t, "filehost", cfg.Descriptors["default"].Host)
}
