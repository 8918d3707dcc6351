package store

import (
	"context"

	"github.com/getpup/pgtenancy"
)

// TenantStore provides persistence for the tenant registry.
// Implementations must be safe for concurrent access.
type TenantStore interface {
	// Create persists a new tenant record.
	// Returns pgtenancy.ErrDuplicateTenant if the identifier or the schema
	// name is already used by a non-dropped record.
	Create(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error)

	// GetByIdentifier returns the record for an identifier, regardless of status.
	// Returns pgtenancy.ErrTenantNotFound if no record exists.
	GetByIdentifier(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error)

	// GetBySchema returns the non-dropped record owning a schema name.
	// Returns pgtenancy.ErrTenantNotFound if no non-dropped record owns it.
	GetBySchema(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error)

	// UpdateStatus sets the status of a record and stamps its UpdatedAt.
	// Returns pgtenancy.ErrTenantNotFound if no record exists and
	// pgtenancy.ErrTenantDropped if the record is dropped; dropped is terminal.
	UpdateStatus(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error

	// ListActive returns up to limit active records ordered by identifier,
	// starting after afterIdentifier. An empty afterIdentifier starts from
	// the beginning; callers page by passing the last identifier they saw.
	ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error)
}
