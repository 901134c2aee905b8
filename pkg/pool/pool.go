// Package pool provides bounded database connection pooling shared by all
// backend connectors.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
)

// Config represents pool configuration for one backend.
type Config struct {
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	AcquireTimeout     time.Duration `json:"acquire_timeout"`
	HealthCheckPeriod  time.Duration `json:"health_check_period"`

	EnableCircuitBreaker    bool          `json:"enable_circuit_breaker"`
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `json:"circuit_breaker_timeout"`
}

// Stats represents connection pool statistics.
type Stats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration"`
	AcquireTimeouts int64         `json:"acquire_timeouts"`
}

// Handle is a backend-scoped connection checked out of the pool. It is held
// for at most one execution and released before any re-planning step.
type Handle struct {
	conn     *sql.Conn
	acquired time.Time
	released atomic.Bool
}

// Conn exposes the underlying dedicated connection.
func (h *Handle) Conn() *sql.Conn {
	return h.conn
}

// AcquiredAt returns the checkout timestamp.
func (h *Handle) AcquiredAt() time.Time {
	return h.acquired
}

// Release returns the connection to the pool. Safe to call more than once.
func (h *Handle) Release() {
	if h.released.CompareAndSwap(false, true) && h.conn != nil {
		_ = h.conn.Close()
	}
}

// Pool manages connections for one backend DSN.
type Pool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	closed atomic.Bool
	cancel context.CancelFunc

	waitCount       atomic.Int64
	waitDuration    atomic.Int64
	acquireTimeouts atomic.Int64

	breaker *circuitBreaker
}

// New opens a pool for the given driver and configuration.
func New(driver string, cfg Config, logger zerolog.Logger) (*Pool, error) {
	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = 10
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 60 * time.Second
	}

	logger.Info().
		Str("driver", driver).
		Str("dsn", maskDSN(cfg.DSN)).
		Int("max_open", cfg.MaxOpenConnections).
		Int("max_idle", cfg.MaxIdleConnections).
		Dur("acquire_timeout", cfg.AcquireTimeout).
		Msg("Creating connection pool")

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		db:     db,
		config: cfg,
		logger: logger,
		cancel: cancel,
	}

	if cfg.EnableCircuitBreaker {
		p.breaker = newCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout)
	}

	if cfg.HealthCheckPeriod > 0 {
		go p.healthCheckRoutine(ctx)
	}

	return p, nil
}

// Acquire checks a dedicated connection out of the pool, bounded by the
// configured acquire timeout. Timeouts surface as resource exhaustion, which
// the caller must treat differently from query failures.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.closed.Load() {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "connection pool is closed")
	}

	if p.breaker != nil && !p.breaker.canExecute() {
		return nil, pkgerrors.New(pkgerrors.CodeUnavailable, "circuit breaker is open")
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.config.AcquireTimeout)
	defer cancel()

	start := time.Now()
	p.waitCount.Add(1)

	conn, err := p.db.Conn(acquireCtx)
	p.waitDuration.Add(int64(time.Since(start)))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.acquireTimeouts.Add(1)
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeResourceExhausted, "connection acquisition timed out")
		}
		if errors.Is(err, context.Canceled) {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeDeadlineExceeded, "request canceled while acquiring connection")
		}
		if p.breaker != nil {
			p.breaker.recordFailure()
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to acquire connection")
	}

	if p.breaker != nil {
		p.breaker.recordSuccess()
	}

	return &Handle{conn: conn, acquired: time.Now()}, nil
}

// HealthCheck pings the backend.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return pkgerrors.New(pkgerrors.CodeUnavailable, "connection pool is closed")
	}
	if err := p.db.PingContext(ctx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check ping failed")
	}
	return nil
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	dbStats := p.db.Stats()
	return Stats{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       p.waitCount.Load(),
		WaitDuration:    time.Duration(p.waitDuration.Load()),
		AcquireTimeouts: p.acquireTimeouts.Load(),
	}
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	if err := p.db.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to close database")
	}
	return nil
}

func (p *Pool) healthCheckRoutine(ctx context.Context) {
	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.HealthCheck(probeCtx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error().Err(err).Msg("Periodic health check failed")
			}
			cancel()
		}
	}
}

// circuitBreaker trips after repeated connection failures and recovers after
// a timeout, half-open first.
type circuitBreaker struct {
	state           atomic.Int32 // 0 closed, 1 open, 2 half-open
	failures        atomic.Int64
	lastFailureTime atomic.Int64
	threshold       int
	timeout         time.Duration
}

func newCircuitBreaker(threshold int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, timeout: timeout}
}

func (cb *circuitBreaker) canExecute() bool {
	switch cb.state.Load() {
	case 0:
		return true
	case 1:
		if time.Since(time.Unix(cb.lastFailureTime.Load(), 0)) > cb.timeout {
			return cb.state.CompareAndSwap(1, 2)
		}
		return false
	default:
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.failures.Store(0)
	cb.state.Store(0)
}

func (cb *circuitBreaker) recordFailure() {
	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(time.Now().Unix())
	if failures >= int64(cb.threshold) {
		cb.state.Store(1)
	}
}

// maskDSN hides credentials and secret-bearing query parameters but keeps
// enough of the string to be recognisable in logs. Non-URL DSNs get a simple
// middle mask.
func maskDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	u, err := url.Parse(dsn)
	if err == nil && (u.Scheme != "" || u.Host != "" || u.User != nil || u.RawQuery != "") {
		if ui := u.User; ui != nil {
			user := ui.Username()
			if _, hasPass := ui.Password(); hasPass {
				u.User = url.UserPassword(user, "*****")
			} else {
				u.User = url.User(user)
			}
		}
		q := u.Query()
		for k := range q {
			if isSensitiveKey(k) {
				q.Set(k, "*****")
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}

	runes := []rune(dsn)
	if len(runes) <= 10 {
		return "***"
	}
	return string(runes[:3]) + "***" + string(runes[len(runes)-3:])
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "pass"),
		strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.HasSuffix(key, "key"):
		return true
	default:
		return false
	}
}
