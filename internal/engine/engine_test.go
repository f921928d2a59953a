package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-sqlgateway/internal/config"
	"github.com/redbco/redb-sqlgateway/internal/database"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	log := logger.New("sqlgateway-test", "0.0.1")
	log.DisableConsoleOutput()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Transport: config.TransportHTTP,
			Listen:    "127.0.0.1:0",
		},
		Query: config.QueryConfig{
			DefaultMaxRows:  1000,
			AbsoluteMaxRows: 10000,
			MaxQueryLength:  50000,
			CommandTimeout:  config.Duration(30 * time.Second),
			ConnectTimeout:  config.Duration(10 * time.Second),
		},
		Descriptors: map[string]*database.TargetDescriptor{},
	}

	return NewEngine(cfg, log, "1.0.0")
}

func TestEngineLifecycle(t *testing.T) {
	e := newTestEngine(t)
	require.False(t, e.IsRunning())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.True(t, e.IsRunning())

	err := e.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	assert.NoError(t, e.CheckHealth())

	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.IsRunning())

	// Stopping twice is a no-op.
	assert.NoError(t, e.Stop(ctx))
}

func TestEngineCollectMetrics(t *testing.T) {
	e := newTestEngine(t)

	// Before Start there is nothing to report.
	assert.Empty(t, e.CollectMetrics())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	defer func() {
		require.NoError(t, e.Stop(ctx))
	}()

	metrics := e.CollectMetrics()
	assert.Contains(t, metrics, "requests_processed")
	assert.Contains(t, metrics, "requests_failed")
	assert.Contains(t, metrics, "queries_executed")
	assert.Contains(t, metrics, "queries_rejected")
	assert.Equal(t, int64(0), metrics["open_connections"])
}

func TestEngineInstanceID(t *testing.T) {
	first := newTestEngine(t)
	second := newTestEngine(t)

	assert.NotEmpty(t, first.InstanceID())
	assert.NotEqual(t, first.InstanceID(), second.InstanceID())
}
