package migrate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/metrics"
)

// undefinedTable is the PostgreSQL error code for querying a table that
// does not exist.
const undefinedTable = "42P01"

// Config holds configuration for a Runner.
type Config struct {
	// DB is the pooled database handle (required).
	DB *sql.DB

	// Graph holds the migrations this runner applies (required).
	// Use one runner per namespace: tenant migrations and shared-schema
	// migrations each get their own graph and runner.
	Graph *Graph

	// LedgerTable is the per-schema table recording applied migrations
	// (default: "schema_migrations").
	LedgerTable string

	// Workers bounds how many schemas ApplyAll migrates concurrently
	// (default: 4). Each worker holds one connection, so the effective
	// bound never exceeds the pool's max open connections.
	Workers int

	// LockTimeout bounds how long Apply waits for a schema's migration
	// lock when another process is migrating it (default: 1m).
	LockTimeout time.Duration

	// Logger is used for structured logging (optional).
	Logger *zap.Logger

	// Metrics records migration activity (optional).
	Metrics *metrics.Collector
}

// Runner applies a migration graph to schemas. Each migration runs in its
// own transaction together with its ledger entry; a failure leaves every
// earlier migration applied and recorded, and re-running resumes from the
// failure point.
type Runner struct {
	config Config
	ledger string
}

// New creates a new Runner with the given configuration.
func New(config Config) (*Runner, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("%w: runner requires a database handle", pgtenancy.ErrConfiguration)
	}
	if config.Graph == nil {
		return nil, fmt.Errorf("%w: runner requires a migration graph", pgtenancy.ErrConfiguration)
	}
	if config.LedgerTable == "" {
		config.LedgerTable = "schema_migrations"
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = time.Minute
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Runner{
		config: config,
		ledger: pgtenancy.QuoteSchema(config.LedgerTable),
	}, nil
}

// ledgerRef returns the schema-qualified, quoted ledger table name.
func (r *Runner) ledgerRef(schema string) string {
	return pgtenancy.QuoteSchema(schema) + "." + r.ledger
}

// lockKey returns the advisory lock key guarding a schema's migrations.
func lockKey(schema string) string {
	return "pgtenancy:migrate:" + schema
}

// Applied returns a schema's migration ledger, oldest first.
// A schema without a ledger table reports an empty ledger.
func (r *Runner) Applied(ctx context.Context, schema string) ([]LedgerEntry, error) {
	if err := pgtenancy.ValidateSchemaName(schema); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, applied_at FROM %s ORDER BY applied_at, id`, r.ledgerRef(schema))

	rows, err := r.config.DB.QueryContext(ctx, query)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return []LedgerEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close rows: %w", closeErr)
		}
	}()

	entries := []LedgerEntry{}
	for rows.Next() {
		var entry LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger: %w", err)
	}

	return entries, nil
}

// Apply brings one schema up to date with the runner's graph. It is
// idempotent: already-applied migrations are skipped, and a run that
// failed midway resumes at the first unapplied migration.
//
// The whole run holds a per-schema advisory lock on its connection, so
// concurrent Apply calls for the same schema serialize instead of
// interleaving. Cancellation is honored between migrations; an in-flight
// migration either commits with its ledger entry or rolls back whole.
func (r *Runner) Apply(ctx context.Context, schema string) (SchemaResult, error) {
	result := SchemaResult{Schema: schema}
	start := time.Now()

	fail := func(err error) (SchemaResult, error) {
		result.Duration = time.Since(start)
		result.Err = err
		r.config.Metrics.IncMigrationError(schema)
		return result, err
	}

	if err := pgtenancy.ValidateSchemaName(schema); err != nil {
		return fail(err)
	}

	sorted, err := r.config.Graph.Sort()
	if err != nil {
		return fail(err)
	}

	conn, err := r.config.DB.Conn(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to acquire connection: %w", err))
	}

	lockCtx, cancel := context.WithTimeout(ctx, r.config.LockTimeout)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock(hashtext($1))", lockKey(schema))
	cancel()
	if err != nil {
		_ = conn.Close()
		return fail(fmt.Errorf("failed to acquire migration lock for %q: %w", schema, err))
	}
	defer func() {
		r.unlock(conn, schema)
		_ = conn.Close()
	}()

	if err := r.ensureLedger(ctx, conn, schema); err != nil {
		return fail(err)
	}

	applied, err := r.appliedSet(ctx, conn, schema)
	if err != nil {
		return fail(err)
	}

	for _, m := range sorted {
		if applied[m.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		migStart := time.Now()
		err := r.runMigration(ctx, conn, schema, m)
		r.config.Metrics.ObserveMigrationDuration(schema, time.Since(migStart).Seconds())
		if err != nil {
			return fail(fmt.Errorf("migration %q: %w", m.ID, err))
		}

		result.Applied = append(result.Applied, m.ID)
		r.config.Metrics.AddMigrationsApplied(schema, 1)
		r.config.Logger.Debug("migration applied",
			zap.String("schema", schema),
			zap.String("migration", m.ID),
			zap.Duration("duration", time.Since(migStart)))
	}

	result.Duration = time.Since(start)
	r.config.Logger.Info("schema up to date",
		zap.String("schema", schema),
		zap.Int("applied", len(result.Applied)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// ApplyAll brings every given schema up to date, migrating up to Workers
// schemas concurrently. The run is best-effort: one schema's failure does
// not stop the others, and the report carries a result per schema in
// request order.
//
// Started schemas run to completion on a detached context; cancellation
// takes effect at schema boundaries, and schemas that never started are
// reported with the context's error.
func (r *Runner) ApplyAll(ctx context.Context, schemas []string) Report {
	report := Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Results:   make([]SchemaResult, len(schemas)),
	}

	workers := r.config.Workers
	if max := r.config.DB.Stats().MaxOpenConnections; max > 0 && workers > max {
		workers = max
	}
	if workers > len(schemas) {
		workers = len(schemas)
	}
	if workers < 1 {
		workers = 1
	}

	r.config.Logger.Info("bulk migration started",
		zap.String("run_id", report.RunID),
		zap.Int("schemas", len(schemas)),
		zap.Int("workers", workers))

	jobs := make(chan int)
	detached := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				// Cancellation is checked at schema pickup. A schema that
				// already started runs to completion on the detached
				// context; the ones not yet started report the error.
				if err := ctx.Err(); err != nil {
					report.Results[idx] = SchemaResult{Schema: schemas[idx], Err: err}
					continue
				}

				result, err := r.Apply(detached, schemas[idx])
				if err != nil {
					r.config.Logger.Error("schema migration failed",
						zap.String("run_id", report.RunID),
						zap.String("schema", schemas[idx]),
						zap.Error(err))
				}
				report.Results[idx] = result
			}
		}()
	}

	for idx := range schemas {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = time.Now()
	r.config.Metrics.ObserveBulkRunDuration(report.Duration().Seconds())
	r.config.Logger.Info("bulk migration finished",
		zap.String("run_id", report.RunID),
		zap.Int("applied", report.TotalApplied()),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("duration", report.Duration()))

	return report
}

// ensureLedger creates the schema's ledger table if it does not exist.
func (r *Runner) ensureLedger(ctx context.Context, conn *sql.Conn, schema string) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, r.ledgerRef(schema))

	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure migration ledger: %w", err)
	}
	return nil
}

func (r *Runner) appliedSet(ctx context.Context, conn *sql.Conn, schema string) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT id FROM %s`, r.ledgerRef(schema))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	applied := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		applied[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger: %w", err)
	}

	return applied, nil
}

// runMigration executes one migration and its ledger entry in a single
// transaction. SET LOCAL scopes the search_path to the transaction, so
// the connection's own search_path is untouched afterwards.
func (r *Runner) runMigration(ctx context.Context, conn *sql.Conn, schema string, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+pgtenancy.QuoteSchema(schema)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to set search_path: %w", err)
	}

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if m.Run != nil {
		if err := m.Run(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration hook failed: %w", err)
		}
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id) VALUES ($1)`, r.ledgerRef(schema))
	if _, err := tx.ExecContext(ctx, insert, m.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// unlock releases the schema's advisory lock. It runs on a detached,
// time-bounded context so cancellation cannot skip the release. Advisory
// locks are session-scoped; if the release fails the connection is
// poisoned so the pool discards it and the session's locks die with it.
func (r *Runner) unlock(conn *sql.Conn, schema string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.LockTimeout)
	defer cancel()

	_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", lockKey(schema))
	if err == nil {
		return
	}

	r.config.Logger.Error("failed to release migration lock, discarding connection",
		zap.String("schema", schema),
		zap.Error(err))

	_ = conn.Raw(func(driverConn any) error {
		return driver.ErrBadConn
	})
}
