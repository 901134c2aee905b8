// Package postgres provides the network Postgres backend connector.
package postgres

import (
	"context"
	"strings"
	"time"

	_ "github.com/lib/pq"
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

// New opens a Postgres-backed connector with the given pool configuration.
func New(id string, cfg pool.Config, logger zerolog.Logger) (backend.Connector, error) {
	p, err := pool.New("postgres", cfg, logger)
	if err != nil {
		return nil, err
	}
	return &connector{id: id, pool: p, logger: logger}, nil
}

func (c *connector) ID() string               { return c.id }
func (c *connector) Dialect() backend.Dialect { return backend.DialectDollar }
func (c *connector) Close() error             { return c.pool.Close() }

func (c *connector) Acquire(ctx context.Context) (*pool.Handle, error) {
	return c.pool.Acquire(ctx)
}

func (c *connector) Execute(ctx context.Context, h *pool.Handle, query string, params []any, maxRows int64) (*models.ExecutionResult, error) {
	start := time.Now()
	rows, err := h.Conn().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, wrapExecError(err)
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

// wrapExecError classifies backend errors so the orchestrator can tell
// permission failures from transient faults.
func wrapExecError(err error) error {
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "permission denied"):
		return pkgerrors.Wrap(err, pkgerrors.CodePermissionDenied, "postgres permission denied")
	case strings.Contains(errStr, "does not exist"):
		return pkgerrors.Wrap(err, pkgerrors.CodeNotFound, "postgres object not found")
	default:
		return pkgerrors.Wrap(err, pkgerrors.CodeExecutionFailed, "postgres query failed")
	}
}

func (c *connector) IntrospectSchema(ctx context.Context, h *pool.Handle) (*models.SchemaMetadata, error) {
	conn := h.Conn()

	tables := make(map[string]models.Table)

	rows, err := conn.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list postgres tables")
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
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list postgres columns")
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

	pkRows, err := conn.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY tc.table_name, kcu.ordinal_position`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list primary keys")
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var table, column string
		if err := pkRows.Scan(&table, &column); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan primary key row")
		}
		if t, ok := tables[table]; ok {
			t.PrimaryKey = append(t.PrimaryKey, column)
			tables[table] = t
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating primary key rows")
	}

	fkRows, err := conn.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema = ccu.table_schema
		WHERE tc.table_schema = 'public' AND tc.constraint_type = 'FOREIGN KEY'`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to list foreign keys")
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var table, column, refTable, refColumn string
		if err := fkRows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to scan foreign key row")
		}
		if t, ok := tables[table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
				Column:    column,
				RefTable:  refTable,
				RefColumn: refColumn,
			})
			tables[table] = t
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "error iterating foreign key rows")
	}

	estRows, err := conn.QueryContext(ctx, `
		SELECT c.relname, GREATEST(c.reltuples, 0)::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public' AND c.relkind = 'r'`)
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
