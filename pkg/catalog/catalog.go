// Package catalog maintains versioned schema snapshots per backend.
package catalog

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/backend"
	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/metrics"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Catalog caches the schema of one backend as an immutable snapshot.
// Snapshots are never mutated in place: a refresh produces a new value under
// the version assigned at invalidation time.
type Catalog struct {
	connector backend.Connector
	collector metrics.Collector
	logger    zerolog.Logger

	mu       sync.RWMutex
	snapshot *models.SchemaMetadata
	version  int64
	dirty    bool
}

// New creates a catalog for the given connector. The first GetSchema call
// triggers introspection.
func New(connector backend.Connector, collector metrics.Collector, logger zerolog.Logger) *Catalog {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Catalog{
		connector: connector,
		collector: collector,
		logger:    logger,
		version:   1,
		dirty:     true,
	}
}

// Version returns the current schema version. It increases monotonically,
// bumped by every Invalidate call.
func (c *Catalog) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Invalidate bumps the schema version and forces the next GetSchema to
// re-introspect the backend.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.dirty = true
	c.logger.Debug().Int64("schema_version", c.version).Msg("Schema catalog invalidated")
}

// GetSchema returns the latest snapshot, refreshing from the backend if
// absent or invalidated. If introspection fails but a previous snapshot
// exists, that snapshot is returned flagged stale rather than failing the
// caller: schema unavailability must not block cached-result serving.
func (c *Catalog) GetSchema(ctx context.Context) (*models.SchemaMetadata, error) {
	c.mu.RLock()
	if !c.dirty && c.snapshot != nil {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if !c.dirty && c.snapshot != nil {
		return c.snapshot, nil
	}

	fresh, err := c.introspect(ctx)
	if err != nil {
		if c.snapshot != nil {
			c.logger.Warn().Err(err).
				Int64("schema_version", c.snapshot.Version).
				Msg("Schema introspection failed, serving last known-good snapshot")
			stale := *c.snapshot
			stale.Stale = true
			c.snapshot = &stale
			return c.snapshot, nil
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "schema introspection failed with no prior snapshot")
	}

	fresh.Version = c.version
	c.snapshot = fresh
	c.dirty = false

	c.collector.IncrementCounter(metrics.MetricSchemaRefreshTotal, "backend", c.connector.ID())
	c.logger.Info().
		Int64("schema_version", fresh.Version).
		Int("tables", len(fresh.Tables)).
		Str("backend_id", c.connector.ID()).
		Msg("Schema snapshot refreshed")

	return c.snapshot, nil
}

func (c *Catalog) introspect(ctx context.Context) (*models.SchemaMetadata, error) {
	h, err := c.connector.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	return c.connector.IntrospectSchema(ctx, h)
}
