package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchemaBindsTotal tracks schema binds performed on pooled connections.
var SchemaBindsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_schema_binds_total",
		Help: "Total schema binds on pooled connections",
	},
	[]string{"schema"},
)

// BindErrorsTotal tracks schema bind attempts that failed before or during the operation.
var BindErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_bind_errors_total",
		Help: "Total failed schema binds",
	},
	[]string{"schema"},
)

// ConnectionLeaksTotal tracks connections discarded because their search_path
// could not be restored. Any nonzero value is a critical integrity signal.
var ConnectionLeaksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_connection_leaks_total",
		Help: "Total connections discarded after a failed search_path restore",
	},
	[]string{"schema"},
)

// BindDuration tracks the duration of schema-bound operations.
var BindDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pgtenancy_bind_duration_seconds",
		Help:    "Duration of schema-bound operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"schema"},
)

// MigrationsAppliedTotal tracks migrations applied per schema.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_migrations_applied_total",
		Help: "Total migrations applied",
	},
	[]string{"schema"},
)

// MigrationErrorsTotal tracks failed migration attempts per schema.
var MigrationErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_migration_errors_total",
		Help: "Total failed migration attempts",
	},
	[]string{"schema"},
)

// MigrationDuration tracks per-schema migration run duration.
var MigrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pgtenancy_migration_duration_seconds",
		Help:    "Duration of per-schema migration runs",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"schema"},
)

// BulkRunDuration tracks the duration of fleet-wide migration runs.
var BulkRunDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "pgtenancy_bulk_run_duration_seconds",
		Help:    "Duration of bulk migration runs across schemas",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

// TenantsProvisionedTotal tracks successful tenant provisions.
var TenantsProvisionedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pgtenancy_tenants_provisioned_total",
		Help: "Total tenants provisioned",
	},
)

// ProvisionErrorsTotal tracks failed provisioning attempts.
var ProvisionErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pgtenancy_provision_errors_total",
		Help: "Total failed provisioning attempts",
	},
)

// TenantsDecommissionedTotal tracks tenants transitioned to dropped.
var TenantsDecommissionedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pgtenancy_tenants_decommissioned_total",
		Help: "Total tenants decommissioned",
	},
)

// ActiveTenants tracks the current number of active tenants.
var ActiveTenants = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "pgtenancy_active_tenants",
		Help: "Current active tenants",
	},
)

// RegistryCacheHitsTotal tracks registry cache hits by lookup kind.
var RegistryCacheHitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_registry_cache_hits_total",
		Help: "Total registry cache hits",
	},
	[]string{"lookup"},
)

// RegistryCacheMissesTotal tracks registry cache misses by lookup kind.
var RegistryCacheMissesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pgtenancy_registry_cache_misses_total",
		Help: "Total registry cache misses",
	},
	[]string{"lookup"},
)
