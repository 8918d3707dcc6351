package postgres

import (
	"fmt"

	"github.com/lib/pq"
)

// TableConfig configures where the tenant registry table lives.
type TableConfig struct {
	// Schema is the schema holding the registry table. The registry is
	// shared infrastructure and always lives outside tenant schemas.
	Schema string

	// TenantsTable is the name of the table storing tenant records.
	TenantsTable string

	// IdentifierColumn is the column holding the routing identifier.
	IdentifierColumn string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Schema:           "public",
		TenantsTable:     "tenants",
		IdentifierColumn: "identifier",
	}
}

func (c TableConfig) withDefaults() TableConfig {
	defaults := DefaultTableConfig()
	if c.Schema == "" {
		c.Schema = defaults.Schema
	}
	if c.TenantsTable == "" {
		c.TenantsTable = defaults.TenantsTable
	}
	if c.IdentifierColumn == "" {
		c.IdentifierColumn = defaults.IdentifierColumn
	}
	return c
}

// qualifiedTable returns the schema-qualified, quoted table name.
func (c TableConfig) qualifiedTable() string {
	return pq.QuoteIdentifier(c.Schema) + "." + pq.QuoteIdentifier(c.TenantsTable)
}

// MigrationUp returns the SQL to create the tenant registry table.
// The unique indexes are partial: dropped records are retained for audit,
// so an identifier or schema name becomes reusable once its previous
// owner is dropped.
func MigrationUp(config TableConfig) string {
	config = config.withDefaults()
	table := config.qualifiedTable()
	idCol := pq.QuoteIdentifier(config.IdentifierColumn)

	return fmt.Sprintf(`-- Create tenant registry table
CREATE TABLE %s (
    id UUID PRIMARY KEY,
    %s TEXT NOT NULL,
    schema_name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'provisioning',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- One live record per identifier; dropped records are kept for audit
CREATE UNIQUE INDEX uq_tenants_identifier ON %s(%s) WHERE status <> 'dropped';

-- One live owner per schema name
CREATE UNIQUE INDEX uq_tenants_schema ON %s(schema_name) WHERE status <> 'dropped';

-- Index for paging active tenants in identifier order
CREATE INDEX idx_tenants_status ON %s(status, %s);
`, table, idCol, table, idCol, table, table, idCol)
}

// MigrationDown returns the SQL to drop the tenant registry table.
// The indexes are dropped with the table.
func MigrationDown(config TableConfig) string {
	config = config.withDefaults()

	return fmt.Sprintf(`-- Drop tenant registry table
DROP TABLE IF EXISTS %s;
`, config.qualifiedTable())
}
