package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id       string
	database string
	closed   int32
	pingErr  error
}

func (c *fakeConn) ID() string            { return c.id }
func (c *fakeConn) Engine() Engine        { return Postgres }
func (c *fakeConn) Database() string      { return c.database }
func (c *fakeConn) IsConnected() bool     { return atomic.LoadInt32(&c.closed) == 0 }
func (c *fakeConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeConn) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	return nil
}

func (c *fakeConn) ListDatabases(context.Context) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) ListTables(context.Context, string) ([]TableInfo, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) DescribeTable(context.Context, string, string) (*TableSchema, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) ExecuteQuery(context.Context, string, int) (*QueryResult, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) GetQueryPlan(context.Context, string) (*QueryPlan, error) {
	return nil, errors.New("not implemented")
}

type fakeAdapter struct {
	mu       sync.Mutex
	dials    int
	failNext int
	delay    time.Duration
	conns    []*fakeConn
}

func (a *fakeAdapter) Engine() Engine { return Postgres }

func (a *fakeAdapter) Connect(ctx context.Context, desc *TargetDescriptor) (Connection, error) {
	a.mu.Lock()
	a.dials++
	n := a.dials
	failing := a.failNext > 0
	if failing {
		a.failNext--
	}
	delay := a.delay
	a.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		return nil, NewConnectionError(Postgres, desc.Host, desc.Port, errors.New("dial refused"))
	}

	conn := &fakeConn{id: fmt.Sprintf("conn-%d", n), database: desc.Database}
	a.mu.Lock()
	a.conns = append(a.conns, conn)
	a.mu.Unlock()
	return conn, nil
}

func (a *fakeAdapter) TestConnection(ctx context.Context, desc *TargetDescriptor) error {
	_, err := a.Connect(ctx, desc)
	return err
}

func (a *fakeAdapter) dialCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dials
}

func newTestManager(t *testing.T, adapter *fakeAdapter, descriptors map[string]*TargetDescriptor) *Manager {
	t.Helper()

	registry := NewRegistry()
	registry.Register(adapter)
	return NewManager(descriptors, registry, nil)
}

func testDescriptor(database string) *TargetDescriptor {
	return &TargetDescriptor{
		Engine:   Postgres,
		Host:     "localhost",
		Port:     PostgresDefaultPort,
		User:     "reader",
		Password: "pw",
		Database: database,
	}
}

func TestManagerGetCachesConnections(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	first, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)
	second, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, adapter.dialCount())
	assert.Equal(t, 1, m.OpenCount())
}

func TestManagerGetSeparatesDatabases(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	first, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)
	second, err := m.Get(context.Background(), "pg-main", "analytics")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "analytics", second.Database())
	assert.Equal(t, 2, adapter.dialCount())
	assert.Equal(t, 2, m.OpenCount())
}

func TestManagerGetSingleInFlightDial(t *testing.T) {
	adapter := &fakeAdapter{delay: 20 * time.Millisecond}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	const callers = 16
	conns := make([]Connection, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = m.Get(context.Background(), "pg-main", "appdb")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}
	assert.Equal(t, 1, adapter.dialCount())
}

func TestManagerGetRetriesAfterFailedDial(t *testing.T) {
	adapter := &fakeAdapter{failNext: 1}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	_, err := m.Get(context.Background(), "pg-main", "appdb")
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Equal(t, 0, m.OpenCount())

	conn, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 2, adapter.dialCount())
}

func TestManagerGetDatabaseFallback(t *testing.T) {
	t.Run("descriptor database", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{
			"pg-main": testDescriptor("appdb"),
		})

		conn, err := m.Get(context.Background(), "pg-main", "")
		require.NoError(t, err)
		assert.Equal(t, "appdb", conn.Database())
	})

	t.Run("system database", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{
			"pg-main": testDescriptor(""),
		})

		conn, err := m.Get(context.Background(), "pg-main", "")
		require.NoError(t, err)
		assert.Equal(t, "postgres", conn.Database())
	})
}

func TestManagerResolveName(t *testing.T) {
	t.Run("sole connection is the default", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{
			"only": testDescriptor("appdb"),
		})

		conn, err := m.Get(context.Background(), "", "")
		require.NoError(t, err)
		assert.NotNil(t, conn)
	})

	t.Run("ambiguous default", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{
			"pg-main":  testDescriptor("appdb"),
			"pg-other": testDescriptor("other"),
		})

		_, err := m.Get(context.Background(), "", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAmbiguousConnection))
		assert.Contains(t, err.Error(), "pg-main")
		assert.Contains(t, err.Error(), "pg-other")
	})

	t.Run("unknown name", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{
			"pg-main": testDescriptor("appdb"),
		})

		_, err := m.Get(context.Background(), "nope", "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConnectionNotFound))
		assert.Contains(t, err.Error(), "pg-main")
	})

	t.Run("no connections configured", func(t *testing.T) {
		adapter := &fakeAdapter{}
		m := newTestManager(t, adapter, map[string]*TargetDescriptor{})

		_, err := m.Get(context.Background(), "", "")
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})
}

func TestManagerCloseAll(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	conn, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)
	require.True(t, conn.IsConnected())

	m.CloseAll()

	assert.False(t, conn.IsConnected())
	assert.Equal(t, 0, m.OpenCount())

	_, err = m.Get(context.Background(), "pg-main", "appdb")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionClosed))
}

func TestManagerHealthCheck(t *testing.T) {
	adapter := &fakeAdapter{}
	m := newTestManager(t, adapter, map[string]*TargetDescriptor{
		"pg-main": testDescriptor("appdb"),
	})

	conn, err := m.Get(context.Background(), "pg-main", "appdb")
	require.NoError(t, err)
	require.NoError(t, m.HealthCheck(context.Background()))

	conn.(*fakeConn).pingErr = errors.New("connection reset")
	err = m.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg-main/appdb")
}

func TestManagerNames(t *testing.T) {
	m := newTestManager(t, &fakeAdapter{}, map[string]*TargetDescriptor{
		"zeta":  testDescriptor(""),
		"alpha": testDescriptor(""),
	})

	assert.Equal(t, []string{"alpha", "zeta"}, m.Names())
}
