package metrics

// Collector provides helper methods over the package instruments so
// components hold a single metrics handle. A nil *Collector is valid and
// records nothing, which lets metrics be switched off without call-site
// guards.
type Collector struct{}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// IncSchemaBind increments the schema bind counter for a schema.
func (c *Collector) IncSchemaBind(schema string) {
	if c == nil {
		return
	}
	SchemaBindsTotal.WithLabelValues(schema).Inc()
}

// IncBindError increments the bind error counter for a schema.
func (c *Collector) IncBindError(schema string) {
	if c == nil {
		return
	}
	BindErrorsTotal.WithLabelValues(schema).Inc()
}

// IncConnectionLeak increments the connection leak counter for a schema.
func (c *Collector) IncConnectionLeak(schema string) {
	if c == nil {
		return
	}
	ConnectionLeaksTotal.WithLabelValues(schema).Inc()
}

// ObserveBindDuration records the duration of a schema-bound operation.
func (c *Collector) ObserveBindDuration(schema string, seconds float64) {
	if c == nil {
		return
	}
	BindDuration.WithLabelValues(schema).Observe(seconds)
}

// AddMigrationsApplied adds to the applied-migrations counter for a schema.
func (c *Collector) AddMigrationsApplied(schema string, count int) {
	if c == nil || count <= 0 {
		return
	}
	MigrationsAppliedTotal.WithLabelValues(schema).Add(float64(count))
}

// IncMigrationError increments the migration error counter for a schema.
func (c *Collector) IncMigrationError(schema string) {
	if c == nil {
		return
	}
	MigrationErrorsTotal.WithLabelValues(schema).Inc()
}

// ObserveMigrationDuration records a per-schema migration run duration.
func (c *Collector) ObserveMigrationDuration(schema string, seconds float64) {
	if c == nil {
		return
	}
	MigrationDuration.WithLabelValues(schema).Observe(seconds)
}

// ObserveBulkRunDuration records a bulk migration run duration.
func (c *Collector) ObserveBulkRunDuration(seconds float64) {
	if c == nil {
		return
	}
	BulkRunDuration.Observe(seconds)
}

// IncTenantsProvisioned increments the provisioned tenants counter.
func (c *Collector) IncTenantsProvisioned() {
	if c == nil {
		return
	}
	TenantsProvisionedTotal.Inc()
}

// IncProvisionErrors increments the provisioning error counter.
func (c *Collector) IncProvisionErrors() {
	if c == nil {
		return
	}
	ProvisionErrorsTotal.Inc()
}

// IncTenantsDecommissioned increments the decommissioned tenants counter.
func (c *Collector) IncTenantsDecommissioned() {
	if c == nil {
		return
	}
	TenantsDecommissionedTotal.Inc()
}

// SetActiveTenants sets the active tenants gauge.
func (c *Collector) SetActiveTenants(count int) {
	if c == nil {
		return
	}
	ActiveTenants.Set(float64(count))
}

// IncCacheHit increments the registry cache hit counter for a lookup kind.
func (c *Collector) IncCacheHit(lookup string) {
	if c == nil {
		return
	}
	RegistryCacheHitsTotal.WithLabelValues(lookup).Inc()
}

// IncCacheMiss increments the registry cache miss counter for a lookup kind.
func (c *Collector) IncCacheMiss(lookup string) {
	if c == nil {
		return
	}
	RegistryCacheMissesTotal.WithLabelValues(lookup).Inc()
}
