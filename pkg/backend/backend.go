// Package backend defines the uniform connector interface every relational
// backend implements, plus a registry keyed by backend ID. Adding a backend
// kind means adding a Connector implementation; the pipeline never branches
// on the concrete type.
package backend

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
	"github.com/manideep395/QueryPilot-AI/pkg/pool"
)

// Dialect identifies placeholder and quoting conventions of a backend.
type Dialect int

const (
	// DialectQuestion uses ? placeholders (DuckDB, SQLite).
	DialectQuestion Dialect = iota
	// DialectDollar uses $1..$n placeholders (Postgres).
	DialectDollar
)

// Connector is the uniform access point for one backend kind.
type Connector interface {
	// ID returns the backend identifier used in configuration and results.
	ID() string
	// Acquire checks a connection handle out of the pool. Acquisition
	// timeouts map to a resource-exhausted error, distinct from query
	// failures.
	Acquire(ctx context.Context) (*pool.Handle, error)
	// Execute runs dialect-final SQL on the handle and scans up to maxRows
	// rows. Exceeding maxRows truncates with an explicit flag.
	Execute(ctx context.Context, h *pool.Handle, query string, params []any, maxRows int64) (*models.ExecutionResult, error)
	// IntrospectSchema reads tables, columns, and foreign keys.
	IntrospectSchema(ctx context.Context, h *pool.Handle) (*models.SchemaMetadata, error)
	// Dialect reports the backend's placeholder convention.
	Dialect() Dialect
	// Close releases the underlying pool.
	Close() error
}

// Registry maps backend IDs to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector under its ID, replacing any previous one.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.ID()] = c
}

// Get returns the connector for the given backend ID.
func (r *Registry) Get(id string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "backend not registered").WithDetail("backend_id", id)
	}
	return c, nil
}

// IDs returns the registered backend IDs in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every registered connector, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, c := range r.connectors {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ScanRows drains rows into an ExecutionResult, capped at maxRows. A cap of
// zero or below means uncapped. Scan errors abort the whole result; a partial
// set is never returned as if complete.
func ScanRows(rows *sql.Rows, maxRows int64) (*models.ExecutionResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "failed to read result columns")
	}

	result := &models.ExecutionResult{Columns: cols}

	for rows.Next() {
		if maxRows > 0 && result.RowCount >= maxRows {
			result.Truncated = true
			break
		}

		values := make(models.Row, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "failed to scan result row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}

	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "error iterating result rows")
	}

	return result, nil
}
