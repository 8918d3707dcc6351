// Command migrate-gen generates the SQL migration that bootstraps the
// tenant registry table. The output lands in the shared migrations
// directory so migrate-shared applies it like any other migration.
//
// Usage:
//
//	go run github.com/getpup/pgtenancy/cmd/migrate-gen -output migrations/shared
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pgtenancy/cmd/migrate-gen -output migrations/shared
//
// Customize where the registry lives:
//
//	go run github.com/getpup/pgtenancy/cmd/migrate-gen -schema control -table customers -identifier-column slug
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/getpup/pgtenancy/store/postgres"
)

func main() {
	var (
		outputFolder     = flag.String("output", "migrations/shared", "Output folder for the migration file")
		outputFilename   = flag.String("filename", "0001_tenant_registry.sql", "Output filename")
		schemaName       = flag.String("schema", "public", "Schema holding the registry table")
		tenantsTable     = flag.String("table", "tenants", "Name of the tenant registry table")
		identifierColumn = flag.String("identifier-column", "identifier", "Column holding the routing identifier")
	)

	flag.Parse()

	config := postgres.TableConfig{
		Schema:           *schemaName,
		TenantsTable:     *tenantsTable,
		IdentifierColumn: *identifierColumn,
	}

	if err := os.MkdirAll(*outputFolder, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output folder: %v\n", err)
		os.Exit(1)
	}

	path := filepath.Join(*outputFolder, *outputFilename)
	content := fmt.Sprintf("-- Migration: tenant registry bootstrap\n\n%s", postgres.MigrationUp(config))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated migration: %s\n", path)
}
