package pgtenancy

import "errors"

var (
	// ErrTenantNotFound indicates no active tenant matches the identifier.
	// Suspended and dropped tenants are deliberately not found by lookups.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDuplicateTenant indicates the identifier or schema name is already
	// in use by a non-dropped record.
	ErrDuplicateTenant = errors.New("tenant already registered")

	// ErrInvalidSchemaName indicates a schema name failed the safe-identifier
	// check. The check exists to keep schema names safe to interpolate into
	// schema-qualifying SQL.
	ErrInvalidSchemaName = errors.New("invalid schema name")

	// ErrSchemaNotFound indicates the schema does not belong to a
	// provisioned, active tenant and is not the shared schema.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrNoActiveSchema indicates a tenant-scoped operation ran without a
	// schema bound to its unit of work. Tenant data never falls back to the
	// shared schema.
	ErrNoActiveSchema = errors.New("no active schema bound")

	// ErrConfiguration indicates the tenancy configuration is unusable:
	// an entity classified as both shared and tenant, an unclassified
	// entity, or malformed options. Fatal at startup.
	ErrConfiguration = errors.New("invalid tenancy configuration")

	// ErrMigrationConflict indicates the migration graph cannot be applied:
	// a dependency cycle, a duplicate migration ID, or a dependency that is
	// neither in the graph nor already in the schema's ledger.
	ErrMigrationConflict = errors.New("migration conflict")

	// ErrProvisioning indicates tenant provisioning failed. The record
	// remains in the provisioning state and the operation can be retried;
	// the tenant never becomes routable until a retry succeeds.
	ErrProvisioning = errors.New("schema provisioning failed")

	// ErrConnectionLeak indicates a connection's search_path could not be
	// restored after a schema-bound operation. The connection is discarded
	// rather than returned to the pool.
	ErrConnectionLeak = errors.New("connection search_path restore failed")

	// ErrTenantDropped indicates a status transition was attempted on a
	// dropped record. Dropped is terminal.
	ErrTenantDropped = errors.New("tenant is dropped")
)
