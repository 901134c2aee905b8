// Package duckdb provides the embedded DuckDB backend connector.
package duckdb

import (
	"context"
	"regexp"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/rs/zerolog"

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

// New opens a DuckDB-backed connector with the given pool configuration.
func New(id string, cfg pool.Config, logger zerolog.Logger) (backend.Connector, error) {
	p, err := pool.New("duckdb", cfg, logger)
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
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "duckdb query failed")
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

// Constraint text shapes emitted by duckdb_constraints().
var (
	fkPattern = regexp.MustCompile(`(?i)FOREIGN KEY\s*\((\w+)\)\s*REFERENCES\s+(\w+)\s*\((\w+)\)`)
	pkPattern = regexp.MustCompile(`(?i)PRIMARY KEY\s*\(([^)]+)\)`)
	pkSplit   = regexp.MustCompile(`\s*,\s*`)
)

func (c *connector) IntrospectSchema(ctx context.Context, h *pool.Handle) (*models.SchemaMetadata, error) {
	conn := h.Conn()

	tables := make(map[string]models.Table)

	rows, err := conn.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list duckdb tables")
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan table row")
		}
		tables[name] = models.Table{Name: name}
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating table rows")
	}

	colRows, err := conn.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'main'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list duckdb columns")
	}
	defer colRows.Close()

	for colRows.Next() {
		var table, column, dataType, nullable string
		if err := colRows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan column row")
		}
		t, ok := tables[table]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, models.Column{
			Name:     column,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
		tables[table] = t
	}
	if err := colRows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating column rows")
	}

	// duckdb_constraints exposes key constraints as SQL text; parse out the
	// column lists rather than fighting LIST-typed scan targets.
	conRows, err := conn.QueryContext(ctx, `
		SELECT table_name, constraint_type, constraint_text
		FROM duckdb_constraints()
		WHERE constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')`)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Constraint introspection failed, continuing without keys")
	} else {
		defer conRows.Close()
		for conRows.Next() {
			var table, kind, text string
			if err := conRows.Scan(&table, &kind, &text); err != nil {
				return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan constraint row")
			}
			t, ok := tables[table]
			if !ok {
				continue
			}
			switch kind {
			case "PRIMARY KEY":
				if m := pkPattern.FindStringSubmatch(text); m != nil {
					t.PrimaryKey = pkSplit.Split(m[1], -1)
				}
			case "FOREIGN KEY":
				if m := fkPattern.FindStringSubmatch(text); m != nil {
					t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
						Column:    m[1],
						RefTable:  m[2],
						RefColumn: m[3],
					})
				}
			}
			tables[table] = t
		}
		if err := conRows.Err(); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating constraint rows")
		}
	}

	estRows, err := conn.QueryContext(ctx, `SELECT table_name, estimated_size FROM duckdb_tables()`)
	if err == nil {
		defer estRows.Close()
		for estRows.Next() {
			var table string
			var estimate int64
			if err := estRows.Scan(&table, &estimate); err != nil {
				continue
			}
			if t, ok := tables[table]; ok {
				t.RowEstimate = estimate
				tables[table] = t
			}
		}
	}

	return &models.SchemaMetadata{
		Tables:         tables,
		IntrospectedAt: time.Now(),
	}, nil
}
