// Package sqlite provides the embedded SQLite backend connector.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/manideep395/QueryPilot-AI/pkg/backend"
	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
	"github.com/manideep395/QueryPilot-AI/pkg/pool"
)

type connector struct {
	id     string
	pool   *pool.Pool
	logger zerolog.Logger
}

// New opens a SQLite-backed connector with the given pool configuration.
func New(id string, cfg pool.Config, logger zerolog.Logger) (backend.Connector, error) {
	p, err := pool.New("sqlite", cfg, logger)
	if err != nil {
		return nil, err
	}
	return &connector{id: id, pool: p, logger: logger}, nil
}

func (c *connector) ID() string               { return c.id }
func (c *connector) Dialect() backend.Dialect { return backend.DialectQuestion }
func (c *connector) Close() error             { return c.pool.Close() }

func (c *connector) Acquire(ctx context.Context) (*pool.Handle, error) {
	return c.pool.Acquire(ctx)
}

func (c *connector) Execute(ctx context.Context, h *pool.Handle, query string, params []any, maxRows int64) (*models.ExecutionResult, error) {
	start := time.Now()
	rows, err := h.Conn().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "sqlite query failed")
	}
	defer rows.Close()

	result, err := backend.ScanRows(rows, maxRows)
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)
	result.BackendID = c.id
	return result, nil
}

func (c *connector) IntrospectSchema(ctx context.Context, h *pool.Handle) (*models.SchemaMetadata, error) {
	conn := h.Conn()

	rows, err := conn.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list sqlite tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan table row")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating table rows")
	}

	tables := make(map[string]models.Table, len(names))
	for _, name := range names {
		table, err := c.introspectTable(ctx, h, name)
		if err != nil {
			return nil, err
		}
		tables[name] = table
	}

	return &models.SchemaMetadata{
		Tables:         tables,
		IntrospectedAt: time.Now(),
	}, nil
}

// introspectTable reads column, key, and size metadata for one table. PRAGMA
// arguments cannot be bound, so the table name is quoted inline; names come
// from sqlite_master, not user input.
func (c *connector) introspectTable(ctx context.Context, h *pool.Handle, name string) (models.Table, error) {
	conn := h.Conn()
	table := models.Table{Name: name}

	colRows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return table, pkgerrors.Wrapf(err, pkgerrors.CodeConnectionFailed, "failed to read columns of %s", name)
	}
	defer colRows.Close()

	for colRows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dflt any
		if err := colRows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return table, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan column row")
		}
		table.Columns = append(table.Columns, models.Column{
			Name:     colName,
			Type:     colType,
			Nullable: notNull == 0,
		})
		if pk > 0 {
			table.PrimaryKey = append(table.PrimaryKey, colName)
		}
	}
	if err := colRows.Err(); err != nil {
		return table, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating column rows")
	}

	fkRows, err := conn.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%q)`, name))
	if err != nil {
		return table, pkgerrors.Wrapf(err, pkgerrors.CodeConnectionFailed, "failed to read foreign keys of %s", name)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var id, seq int
		var refTable, from, to, onUpdate, onDelete, match string
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return table, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan foreign key row")
		}
		table.ForeignKeys = append(table.ForeignKeys, models.ForeignKey{
			Column:    from,
			RefTable:  refTable,
			RefColumn: to,
		})
	}
	if err := fkRows.Err(); err != nil {
		return table, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating foreign key rows")
	}

	var count int64
	if err := conn.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&count); err == nil {
		table.RowEstimate = count
	}

	return table, nil
}
