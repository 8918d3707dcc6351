//go:build integration

package integration_test

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/lib/pq"

	pgstore "github.com/getpup/pgtenancy/store/postgres"
)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Try individual components as fallback
		host := os.Getenv("POSTGRES_HOST")
		if host == "" {
			host = "localhost"
		}
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		user := os.Getenv("POSTGRES_USER")
		if user == "" {
			user = "postgres"
		}
		password := os.Getenv("POSTGRES_PASSWORD")
		if password == "" {
			password = "postgres"
		}
		dbname := os.Getenv("POSTGRES_DB")
		if dbname == "" {
			dbname = "pgtenancy_test"
		}
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			user, password, host, port, dbname)

		if os.Getenv("POSTGRES_HOST") == "" && os.Getenv("CI") == "" {
			t.Skip("DATABASE_URL not set, skipping integration test")
		}
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupRegistry creates the tenant registry table using the default
// configuration.
func setupRegistry(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()
	migrationSQL := pgstore.MigrationUp(config)

	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("failed to create registry table: %v", err)
	}
}

// cleanupRegistry truncates the registry table to clean up test data.
// Errors are logged but don't fail the test (cleanup is best-effort).
func cleanupRegistry(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()
	if _, err := db.Exec("TRUNCATE " + config.TenantsTable); err != nil {
		t.Logf("warning: failed to truncate registry table: %v", err)
	}
}

// teardownRegistry drops the registry table and its shared migration
// ledger. Errors are logged but don't fail the test.
func teardownRegistry(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()
	if _, err := db.Exec(pgstore.MigrationDown(config)); err != nil {
		t.Logf("warning: failed to drop registry table: %v", err)
	}
	if _, err := db.Exec("DROP TABLE IF EXISTS public.schema_migrations"); err != nil {
		t.Logf("warning: failed to drop shared ledger: %v", err)
	}
}

// dropSchemas removes tenant schemas created during a test.
// Errors are logged but don't fail the test.
func dropSchemas(t *testing.T, db *sql.DB, schemas ...string) {
	t.Helper()

	for _, schema := range schemas {
		if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %q CASCADE", schema)); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
	}
}

// schemaExists reports whether a schema exists in the database catalog.
func schemaExists(t *testing.T, db *sql.DB, schema string) bool {
	t.Helper()

	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)", schema,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to query pg_namespace: %v", err)
	}
	return exists
}

// ledgerCount returns the number of ledger rows recorded in a schema.
func ledgerCount(t *testing.T, db *sql.DB, schema string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM %q.schema_migrations", schema),
	).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count ledger rows in %s: %v", schema, err)
	}
	return count
}
