// Package lifecycle manages the provisioning and decommissioning of
// tenant schemas. Provisioning is all-or-nothing: the schema only becomes
// routable after every migration has applied, and a failed attempt is
// cleaned up and retryable. Decommissioning retires the record; physical
// schema removal is a separate explicit step.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/metrics"
	"github.com/getpup/pgtenancy/migrate"
	"github.com/getpup/pgtenancy/registry"
)

// Applier brings one schema up to date with a migration set.
type Applier interface {
	Apply(ctx context.Context, schema string) (migrate.SchemaResult, error)
}

var _ Applier = (*migrate.Runner)(nil)

const (
	// cleanupTimeout bounds the DROP SCHEMA that removes a failed
	// provision's remnants.
	cleanupTimeout = time.Minute

	// listPageSize is the keyset page size Provisioned walks with.
	listPageSize = 100
)

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// DB is the pooled database handle used for schema DDL (required).
	DB *sql.DB

	// Registry tracks tenant records and their status transitions
	// (required).
	Registry *registry.Registry

	// Applier applies the tenant migration set to a schema. Required by
	// Provision; a manager built without one can still decommission,
	// drop, and enumerate.
	Applier Applier

	// Logger is used for structured logging (optional).
	Logger *zap.Logger

	// Metrics records lifecycle activity (optional).
	Metrics *metrics.Collector
}

// Manager provisions, decommissions, and enumerates tenant schemas.
type Manager struct {
	config Config
}

// New creates a new Manager with the given configuration.
func New(config Config) (*Manager, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("%w: lifecycle manager requires a database handle", pgtenancy.ErrConfiguration)
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("%w: lifecycle manager requires a registry", pgtenancy.ErrConfiguration)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Manager{config: config}, nil
}

// Provision creates a registered tenant's schema, applies the tenant
// migration set, and marks the tenant active. The record must be in the
// provisioning state; a failed attempt removes the partial schema and
// leaves the record provisioning so the call can be retried. Provisioning
// an already-active tenant is a no-op.
func (m *Manager) Provision(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	if m.config.Applier == nil {
		return pgtenancy.TenantRecord{}, fmt.Errorf("%w: provisioning requires a migration applier", pgtenancy.ErrConfiguration)
	}

	record, err := m.config.Registry.Get(ctx, identifier)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	switch record.Status {
	case pgtenancy.StatusActive:
		m.config.Logger.Debug("tenant already provisioned",
			zap.String("identifier", identifier))
		return record, nil
	case pgtenancy.StatusProvisioning:
	default:
		return record, fmt.Errorf("%w: tenant %q is %s, expected %s",
			pgtenancy.ErrProvisioning, identifier, record.Status, pgtenancy.StatusProvisioning)
	}

	if err := pgtenancy.ValidateSchemaName(record.SchemaName); err != nil {
		return record, err
	}

	start := time.Now()
	schema := record.SchemaName

	if err := m.createSchema(ctx, schema); err != nil {
		m.config.Metrics.IncProvisionErrors()
		return record, fmt.Errorf("%w: tenant %q schema %q: %w",
			pgtenancy.ErrProvisioning, identifier, schema, err)
	}

	result, err := m.config.Applier.Apply(ctx, schema)
	if err != nil {
		m.dropRemnants(schema)
		m.config.Metrics.IncProvisionErrors()
		return record, fmt.Errorf("%w: tenant %q schema %q: %w",
			pgtenancy.ErrProvisioning, identifier, schema, err)
	}

	if err := m.config.Registry.MarkActive(ctx, identifier); err != nil {
		// The schema is fully migrated at this point. The record stays
		// provisioning and a retry resumes here without re-running
		// migrations.
		m.config.Metrics.IncProvisionErrors()
		return record, fmt.Errorf("%w: tenant %q schema %q: %w",
			pgtenancy.ErrProvisioning, identifier, schema, err)
	}

	record.Status = pgtenancy.StatusActive
	m.config.Metrics.IncTenantsProvisioned()
	m.config.Logger.Info("tenant provisioned",
		zap.String("identifier", identifier),
		zap.String("schema", schema),
		zap.Int("migrations", len(result.Applied)),
		zap.Duration("duration", time.Since(start)))

	return record, nil
}

// Decommission marks a tenant dropped, removing it from routing and
// lookups. The schema and its data stay in place until DropSchema is
// called. Decommissioning an already-dropped tenant is a no-op.
func (m *Manager) Decommission(ctx context.Context, identifier string) error {
	record, err := m.config.Registry.Get(ctx, identifier)
	if err != nil {
		return err
	}
	if record.Status == pgtenancy.StatusDropped {
		return nil
	}

	if err := m.config.Registry.MarkDropped(ctx, identifier); err != nil {
		return err
	}

	m.config.Metrics.IncTenantsDecommissioned()
	m.config.Logger.Info("tenant decommissioned",
		zap.String("identifier", identifier),
		zap.String("schema", record.SchemaName))

	return nil
}

// DropSchema physically removes a decommissioned tenant's schema and all
// data in it. It refuses to run unless the record is already dropped, so
// data destruction always requires a prior explicit Decommission.
func (m *Manager) DropSchema(ctx context.Context, identifier string) error {
	record, err := m.config.Registry.Get(ctx, identifier)
	if err != nil {
		return err
	}
	if record.Status != pgtenancy.StatusDropped {
		return fmt.Errorf("refusing to drop schema %q: tenant %q is %s, decommission it first",
			record.SchemaName, identifier, record.Status)
	}

	ddl := "DROP SCHEMA IF EXISTS " + pgtenancy.QuoteSchema(record.SchemaName) + " CASCADE"
	if _, err := m.config.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to drop schema %q: %w", record.SchemaName, err)
	}

	m.config.Logger.Info("tenant schema dropped",
		zap.String("identifier", identifier),
		zap.String("schema", record.SchemaName))

	return nil
}

// Provisioned returns every active tenant record, walking the store's
// keyset pages so memory stays bounded for large fleets. The walk also
// refreshes the active-tenant gauge.
func (m *Manager) Provisioned(ctx context.Context) ([]pgtenancy.TenantRecord, error) {
	records := []pgtenancy.TenantRecord{}
	after := ""

	for {
		page, err := m.config.Registry.ListActive(ctx, after, listPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list tenants: %w", err)
		}

		records = append(records, page...)
		if len(page) < listPageSize {
			break
		}
		after = page[len(page)-1].Identifier
	}

	m.config.Metrics.SetActiveTenants(len(records))
	return records, nil
}

// ProvisionShared creates the shared schema if needed and brings it up to
// date with the given migration set. Shared entities live alongside the
// tenant schemas in the same database, so bootstrap runs this before any
// tenant work.
func (m *Manager) ProvisionShared(ctx context.Context, applier Applier) (migrate.SchemaResult, error) {
	if applier == nil {
		return migrate.SchemaResult{}, fmt.Errorf("%w: shared provisioning requires an applier", pgtenancy.ErrConfiguration)
	}

	shared := m.config.Registry.SharedSchema()
	if err := m.createSchema(ctx, shared); err != nil {
		return migrate.SchemaResult{Schema: shared, Err: err}, err
	}

	result, err := applier.Apply(ctx, shared)
	if err != nil {
		return result, err
	}

	m.config.Logger.Info("shared schema up to date",
		zap.String("schema", shared),
		zap.Int("applied", len(result.Applied)))

	return result, nil
}

func (m *Manager) createSchema(ctx context.Context, schema string) error {
	ddl := "CREATE SCHEMA IF NOT EXISTS " + pgtenancy.QuoteSchema(schema)
	if _, err := m.config.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// dropRemnants removes a partially provisioned schema. It runs on a
// detached, time-bounded context so cancellation of the provision cannot
// leave the remnants behind.
func (m *Manager) dropRemnants(schema string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	ddl := "DROP SCHEMA IF EXISTS " + pgtenancy.QuoteSchema(schema) + " CASCADE"
	if _, err := m.config.DB.ExecContext(ctx, ddl); err != nil {
		m.config.Logger.Error("failed to remove partially provisioned schema",
			zap.String("schema", schema),
			zap.Error(err))
	}
}
