// Package executor runs validated SQL candidates against pooled backends.
// It owns the two concerns the planner must never see: connection handle
// lifecycle and dialect placeholder conventions. A handle is acquired per
// execution and returned before the call ends, never held across
// re-planning.
package executor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/backend"
	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/metrics"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
)

// Config parameterizes execution.
type Config struct {
	// MaxRows caps result size. Overflow truncates with Truncated set;
	// zero or below means uncapped.
	MaxRows int64
}

// Executor dispatches candidates to registered backends.
type Executor struct {
	registry  *backend.Registry
	maxRows   int64
	collector metrics.Collector
	logger    zerolog.Logger
}

// New creates an executor over the given connector registry.
func New(registry *backend.Registry, cfg Config, collector metrics.Collector, logger zerolog.Logger) *Executor {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Executor{
		registry:  registry,
		maxRows:   cfg.MaxRows,
		collector: collector,
		logger:    logger,
	}
}

// Execute runs one candidate on one backend. Pool exhaustion surfaces as a
// resource-exhausted error distinct from query failure. The result is
// atomic from the caller's view: an error mid-scan returns the error, never
// a partial result presented as complete.
func (e *Executor) Execute(ctx context.Context, candidate *models.SQLCandidate, backendID string) (*models.ExecutionResult, error) {
	conn, err := e.registry.Get(backendID)
	if err != nil {
		return nil, err
	}

	query := candidate.Text
	if conn.Dialect() == backend.DialectDollar {
		query = rewritePlaceholders(query)
	}

	handle, err := conn.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	start := time.Now()
	result, err := conn.Execute(ctx, handle, query, candidate.Params, e.maxRows)
	elapsed := time.Since(start)
	e.collector.RecordHistogram(metrics.MetricExecutionDuration, elapsed.Seconds(), "backend", backendID)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDeadlineExceeded, "execution deadline exceeded")
		}
		e.logger.Debug().Err(err).Str("backend", backendID).Msg("Execution failed")
		return nil, err
	}

	result.Elapsed = elapsed
	result.BackendID = backendID
	e.collector.RecordHistogram(metrics.MetricRowsReturned, float64(result.RowCount), "backend", backendID)

	e.logger.Debug().
		Str("backend", backendID).
		Int64("rows", result.RowCount).
		Bool("truncated", result.Truncated).
		Dur("elapsed", elapsed).
		Msg("Execution complete")
	return result, nil
}

// rewritePlaceholders converts ? placeholders to $1..$n, skipping string
// literals so a quoted question mark survives untouched.
func rewritePlaceholders(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	inString := false
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
