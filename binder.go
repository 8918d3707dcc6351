package pgtenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/getpup/pgtenancy/metrics"
)

// SchemaChecker verifies that a schema name may be bound: either the shared
// schema or the schema of a provisioned, active tenant. Implemented by
// registry.Registry.
type SchemaChecker interface {
	EnsureActiveSchema(ctx context.Context, schemaName string) error
}

// BinderConfig holds configuration for a Binder.
type BinderConfig struct {
	// DB is the pooled database handle (required).
	DB *sql.DB

	// Tenants verifies schema names against the registry (required).
	Tenants SchemaChecker

	// RestoreTimeout bounds the search_path restore that runs after every
	// operation, including cancelled ones (default: 5s).
	RestoreTimeout time.Duration

	// Logger is for observability (optional).
	Logger *zap.Logger

	// Metrics records bind and leak counters (optional).
	Metrics *metrics.Collector
}

// Binder applies a schema to a pooled connection for the duration of one
// operation and restores the connection's prior search_path on every exit
// path. Connections are pooled and reused across unrelated units of work, so
// a search_path left behind would make a later unit silently execute against
// the wrong tenant's schema; the restore guarantee is what makes pooling safe.
type Binder struct {
	config BinderConfig
}

// NewBinder creates a Binder with the given configuration.
func NewBinder(cfg BinderConfig) (*Binder, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("%w: binder requires a database handle", ErrConfiguration)
	}
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("%w: binder requires a schema checker", ErrConfiguration)
	}
	if cfg.RestoreTimeout == 0 {
		cfg.RestoreTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Binder{config: cfg}, nil
}

// WithSchema acquires one pooled connection, sets its search_path to
// schemaName, and runs fn with the schema bound to the context and the
// connection. The search_path the connection had at acquisition is restored
// before the connection returns to the pool, on normal return, error, panic
// and cancellation alike; the bind completes before fn runs and the restore
// completes before the connection becomes reusable.
//
// schemaName must pass ValidateSchemaName and must be the shared schema or
// the schema of an active tenant (ErrSchemaNotFound otherwise). If the
// restore fails the connection is discarded from the pool, the event is
// logged as a critical integrity signal, and WithSchema returns
// ErrConnectionLeak when fn itself succeeded.
func (b *Binder) WithSchema(ctx context.Context, schemaName string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if err := ValidateSchemaName(schemaName); err != nil {
		b.config.Metrics.IncBindError(schemaName)
		return err
	}
	if err := b.config.Tenants.EnsureActiveSchema(ctx, schemaName); err != nil {
		b.config.Metrics.IncBindError(schemaName)
		return fmt.Errorf("failed to bind schema %q: %w", schemaName, err)
	}

	conn, err := b.config.DB.Conn(ctx)
	if err != nil {
		b.config.Metrics.IncBindError(schemaName)
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	prior, err := currentSearchPath(ctx, conn)
	if err != nil {
		_ = conn.Close()
		b.config.Metrics.IncBindError(schemaName)
		return fmt.Errorf("failed to read search_path: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "SET search_path TO "+QuoteSchema(schemaName)); err != nil {
		_ = conn.Close()
		b.config.Metrics.IncBindError(schemaName)
		return fmt.Errorf("failed to set search_path to %q: %w", schemaName, err)
	}

	b.config.Metrics.IncSchemaBind(schemaName)
	b.config.Logger.Debug("schema bound",
		zap.String("schema", schemaName),
		zap.String("prior_search_path", prior),
	)

	start := time.Now()
	bindCtx := WithActiveSchema(ctx, schemaName)

	var opErr error
	var leakErr error
	func() {
		// The deferred restore runs even when fn panics; the panic then
		// continues to the caller with the connection already restored
		// or discarded.
		defer func() {
			leakErr = b.restoreSearchPath(conn, schemaName, prior)
			b.config.Metrics.ObserveBindDuration(schemaName, time.Since(start).Seconds())
			_ = conn.Close()
		}()
		opErr = fn(bindCtx, conn)
	}()

	if opErr != nil {
		b.config.Metrics.IncBindError(schemaName)
		// A restore failure alongside an operation error has already been
		// logged and the connection discarded; the operation's own error
		// is the one the caller acts on.
		return opErr
	}
	return leakErr
}

// restoreSearchPath puts the connection back to the search_path it had when
// acquired. It runs on a detached, time-bounded context so cancellation of
// the unit of work cannot skip the restore. On failure the connection is
// poisoned so the pool discards it instead of handing it to the next unit of
// work.
func (b *Binder) restoreSearchPath(conn *sql.Conn, schemaName, prior string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.RestoreTimeout)
	defer cancel()

	// prior is the connection's own reported search_path, not caller input.
	_, err := conn.ExecContext(ctx, "SET search_path TO "+prior)
	if err == nil {
		return nil
	}

	b.config.Logger.Error("search_path restore failed, discarding connection",
		zap.String("schema", schemaName),
		zap.String("prior_search_path", prior),
		zap.Error(err),
	)
	b.config.Metrics.IncConnectionLeak(schemaName)

	_ = conn.Raw(func(driverConn any) error {
		return driver.ErrBadConn
	})

	return fmt.Errorf("%w: schema %q: %v", ErrConnectionLeak, schemaName, err)
}

func currentSearchPath(ctx context.Context, conn *sql.Conn) (string, error) {
	var path string
	if err := conn.QueryRowContext(ctx, "SHOW search_path").Scan(&path); err != nil {
		return "", err
	}
	return path, nil
}
