package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manideep395/QueryPilot-AI/pkg/backend"
	"github.com/manideep395/QueryPilot-AI/pkg/metrics"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
	"github.com/manideep395/QueryPilot-AI/pkg/pool"
)

type fakeConnector struct {
	schema        *models.SchemaMetadata
	introspectErr error
	acquireErr    error
	introspects   int
}

func (f *fakeConnector) ID() string { return "fake" }

func (f *fakeConnector) Acquire(context.Context) (*pool.Handle, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return &pool.Handle{}, nil
}

func (f *fakeConnector) Execute(context.Context, *pool.Handle, string, []any, int64) (*models.ExecutionResult, error) {
	return &models.ExecutionResult{}, nil
}

func (f *fakeConnector) IntrospectSchema(context.Context, *pool.Handle) (*models.SchemaMetadata, error) {
	f.introspects++
	if f.introspectErr != nil {
		return nil, f.introspectErr
	}
	snap := *f.schema
	return &snap, nil
}

func (f *fakeConnector) Dialect() backend.Dialect { return backend.DialectQuestion }

func (f *fakeConnector) Close() error { return nil }

func fakeSchema() *models.SchemaMetadata {
	return &models.SchemaMetadata{
		Tables: map[string]models.Table{
			"customers": {Name: "customers"},
		},
	}
}

func TestGetSchema_IntrospectsOnceUntilInvalidated(t *testing.T) {
	conn := &fakeConnector{schema: fakeSchema()}
	c := New(conn, nil, zerolog.Nop())

	first, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.False(t, first.Stale)

	second, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, conn.introspects)
}

func TestInvalidate_BumpsVersionAndRefreshes(t *testing.T) {
	conn := &fakeConnector{schema: fakeSchema()}
	c := New(conn, nil, zerolog.Nop())

	_, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version())

	c.Invalidate()
	assert.Equal(t, int64(2), c.Version())

	snap, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, 2, conn.introspects)
}

func TestGetSchema_StaleFallback(t *testing.T) {
	conn := &fakeConnector{schema: fakeSchema()}
	c := New(conn, nil, zerolog.Nop())

	fresh, err := c.GetSchema(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	conn.introspectErr = errors.New("backend unreachable")

	stale, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.Version, stale.Version)
	assert.Equal(t, fresh.Tables, stale.Tables)
}

func TestGetSchema_NoSnapshotNoFallback(t *testing.T) {
	conn := &fakeConnector{introspectErr: errors.New("backend unreachable")}
	c := New(conn, nil, zerolog.Nop())

	_, err := c.GetSchema(context.Background())
	require.Error(t, err)
}

func TestGetSchema_AcquireErrorPropagates(t *testing.T) {
	conn := &fakeConnector{acquireErr: errors.New("pool closed")}
	c := New(conn, nil, zerolog.Nop())

	_, err := c.GetSchema(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, conn.introspects)
}

type countingCollector struct {
	metrics.NoOpCollector
	counts map[string]int
}

func (c *countingCollector) IncrementCounter(name string, labels ...string) {
	c.counts[name]++
}

func TestGetSchema_CountsRefreshes(t *testing.T) {
	conn := &fakeConnector{schema: fakeSchema()}
	spy := &countingCollector{counts: map[string]int{}}
	c := New(conn, spy, zerolog.Nop())

	_, err := c.GetSchema(context.Background())
	require.NoError(t, err)
	_, err = c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, spy.counts[metrics.MetricSchemaRefreshTotal], "cached reads do not refresh")

	c.Invalidate()
	_, err = c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, spy.counts[metrics.MetricSchemaRefreshTotal])

	// Stale fallback is not a refresh.
	conn.introspectErr = errors.New("backend unreachable")
	c.Invalidate()
	_, err = c.GetSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, spy.counts[metrics.MetricSchemaRefreshTotal])
}
