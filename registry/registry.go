// Package registry implements the authoritative tenant registry: the
// mapping from opaque tenant identifiers to database schemas, with a
// lifecycle status gating whether a tenant may be routed to.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/store"
)

// Config holds configuration for the registry.
type Config struct {
	// Store persists tenant records (required).
	Store store.TenantStore

	// SharedSchema is the schema holding shared entities (default: "public").
	// It is always considered bindable and can never be claimed by a tenant.
	SharedSchema string

	// Logger is used for structured logging (optional).
	// If nil, a no-op logger is used.
	Logger *zap.Logger
}

// Registry manages tenant records and answers the routing layer's
// question: is this schema currently bindable?
type Registry struct {
	config Config
}

// New creates a new registry with the given configuration.
func New(config Config) (*Registry, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: registry requires a tenant store", pgtenancy.ErrConfiguration)
	}
	if config.SharedSchema == "" {
		config.SharedSchema = "public"
	}
	if err := pgtenancy.ValidateSchemaName(config.SharedSchema); err != nil {
		return nil, fmt.Errorf("%w: invalid shared schema", err)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Registry{config: config}, nil
}

// SharedSchema returns the schema holding shared entities.
func (r *Registry) SharedSchema() string {
	return r.config.SharedSchema
}

// Register creates a tenant record in the provisioning status.
// The schema itself is not created here; provisioning is a separate step
// and the tenant only becomes routable once marked active.
// Returns pgtenancy.ErrInvalidSchemaName if the schema name is unusable
// and pgtenancy.ErrDuplicateTenant if the identifier or schema name is
// already taken by a non-dropped tenant.
func (r *Registry) Register(ctx context.Context, identifier, schemaName string) (pgtenancy.TenantRecord, error) {
	if identifier == "" {
		return pgtenancy.TenantRecord{}, fmt.Errorf("tenant identifier must not be empty")
	}
	if err := pgtenancy.ValidateSchemaName(schemaName); err != nil {
		return pgtenancy.TenantRecord{}, err
	}
	if schemaName == r.config.SharedSchema {
		return pgtenancy.TenantRecord{}, fmt.Errorf("%w: %q is reserved for shared entities", pgtenancy.ErrInvalidSchemaName, schemaName)
	}

	record, err := r.config.Store.Create(ctx, pgtenancy.TenantRecord{
		Identifier: identifier,
		SchemaName: schemaName,
		Status:     pgtenancy.StatusProvisioning,
	})
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	r.config.Logger.Info("tenant registered",
		zap.String("identifier", identifier),
		zap.String("schema", schemaName))

	return record, nil
}

// Lookup resolves an identifier for routing. Only active tenants are
// routable: provisioning, suspended, and dropped tenants all report
// pgtenancy.ErrTenantNotFound so callers cannot fall through to another
// tenant's data.
func (r *Registry) Lookup(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	record, err := r.config.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	if record.Status != pgtenancy.StatusActive {
		return pgtenancy.TenantRecord{}, fmt.Errorf("%w: tenant %q is %s", pgtenancy.ErrTenantNotFound, identifier, record.Status)
	}

	return record, nil
}

// Get returns the record for an identifier regardless of status.
// Unlike Lookup it is meant for administrative surfaces, not routing.
func (r *Registry) Get(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	return r.config.Store.GetByIdentifier(ctx, identifier)
}

// MarkActive makes a tenant routable. Marking an already-active tenant
// is a no-op.
func (r *Registry) MarkActive(ctx context.Context, identifier string) error {
	return r.transition(ctx, identifier, pgtenancy.StatusActive)
}

// MarkSuspended takes a tenant out of routing while keeping its schema
// and data in place. Marking an already-suspended tenant is a no-op.
func (r *Registry) MarkSuspended(ctx context.Context, identifier string) error {
	return r.transition(ctx, identifier, pgtenancy.StatusSuspended)
}

// MarkDropped retires a tenant permanently. The record is retained for
// audit and never transitions again; repeated calls are a no-op.
func (r *Registry) MarkDropped(ctx context.Context, identifier string) error {
	record, err := r.config.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if record.Status == pgtenancy.StatusDropped {
		return nil
	}

	if err := r.config.Store.UpdateStatus(ctx, identifier, pgtenancy.StatusDropped); err != nil {
		return err
	}

	r.config.Logger.Info("tenant status changed",
		zap.String("identifier", identifier),
		zap.String("from", string(record.Status)),
		zap.String("to", string(pgtenancy.StatusDropped)))

	return nil
}

func (r *Registry) transition(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
	record, err := r.config.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if record.Status == status {
		return nil
	}
	if !record.Status.CanTransitionTo(status) {
		if record.Status == pgtenancy.StatusDropped {
			return fmt.Errorf("%w: tenant %q", pgtenancy.ErrTenantDropped, identifier)
		}
		return fmt.Errorf("tenant %q cannot transition from %s to %s", identifier, record.Status, status)
	}

	if err := r.config.Store.UpdateStatus(ctx, identifier, status); err != nil {
		return err
	}

	r.config.Logger.Info("tenant status changed",
		zap.String("identifier", identifier),
		zap.String("from", string(record.Status)),
		zap.String("to", string(status)))

	return nil
}

// EnsureActiveSchema reports whether a schema may be bound right now.
// The shared schema is always bindable; a tenant schema is bindable only
// while its owner is active. Everything else, including schemas of
// suspended tenants, reports pgtenancy.ErrSchemaNotFound.
func (r *Registry) EnsureActiveSchema(ctx context.Context, schemaName string) error {
	if schemaName == r.config.SharedSchema {
		return nil
	}

	record, err := r.config.Store.GetBySchema(ctx, schemaName)
	if err != nil {
		if errors.Is(err, pgtenancy.ErrTenantNotFound) {
			return fmt.Errorf("%w: %q", pgtenancy.ErrSchemaNotFound, schemaName)
		}
		return err
	}

	if record.Status != pgtenancy.StatusActive {
		return fmt.Errorf("%w: %q belongs to a %s tenant", pgtenancy.ErrSchemaNotFound, schemaName, record.Status)
	}

	return nil
}

// ListActive returns a page of active tenants ordered by identifier.
// See store.TenantStore for the paging contract.
func (r *Registry) ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
	return r.config.Store.ListActive(ctx, afterIdentifier, limit)
}

var _ pgtenancy.SchemaChecker = (*Registry)(nil)
