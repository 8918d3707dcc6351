package pgtenancy

import "time"

// TenantStatus represents the lifecycle state of a tenant record.
type TenantStatus string

const (
	// StatusProvisioning indicates the tenant is registered but its schema
	// has not been fully created and migrated yet.
	StatusProvisioning TenantStatus = "provisioning"

	// StatusActive indicates the tenant's schema is provisioned and the
	// tenant is eligible for routing.
	StatusActive TenantStatus = "active"

	// StatusSuspended indicates the tenant is temporarily not routable.
	// The schema and its data remain in place.
	StatusSuspended TenantStatus = "suspended"

	// StatusDropped indicates the tenant has been decommissioned.
	// Dropped is terminal; the record is retained for audit and never
	// transitions again.
	StatusDropped TenantStatus = "dropped"
)

// IsValid reports whether s is one of the known tenant statuses.
func (s TenantStatus) IsValid() bool {
	switch s {
	case StatusProvisioning, StatusActive, StatusSuspended, StatusDropped:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status change from s to next is allowed.
// Dropped rejects every transition.
func (s TenantStatus) CanTransitionTo(next TenantStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if s == StatusDropped {
		return false
	}
	return s != next
}

// TenantRecord is the authoritative mapping from a tenant identifier to the
// database schema holding that tenant's data.
type TenantRecord struct {
	// Identifier is the opaque business key supplied at onboarding.
	// It is unique across all non-dropped records.
	Identifier string

	// SchemaName is the database schema holding this tenant's data.
	// It must pass ValidateSchemaName and is unique across all
	// non-dropped records.
	SchemaName string

	// Status is the current lifecycle state of the tenant.
	Status TenantStatus

	// CreatedAt is when the record was registered.
	CreatedAt time.Time

	// UpdatedAt is when the record last changed status.
	UpdatedAt time.Time
}

// EntityClass tags a data entity as living in the shared schema or in the
// active tenant's schema.
type EntityClass int

const (
	// ClassShared routes the entity to the shared schema regardless of the
	// active tenant.
	ClassShared EntityClass = iota

	// ClassTenant routes the entity to the schema of the currently bound
	// tenant.
	ClassTenant
)

// String returns the class name used in logs and errors.
func (c EntityClass) String() string {
	switch c {
	case ClassShared:
		return "shared"
	case ClassTenant:
		return "tenant"
	}
	return "unknown"
}
