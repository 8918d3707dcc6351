// Command tenantctl administers schema-per-tenant PostgreSQL deployments.
//
// Usage:
//
//	tenantctl create-tenant-schema acme
//	tenantctl migrate-tenant all
//	tenantctl migrate-shared
//	tenantctl make-migration add_orders
//	tenantctl list-tenants
//	tenantctl drop-tenant-schema acme --force
//
// Configuration comes from a YAML file (--config), PGTENANCY_*
// environment variables, and a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	databaseURL string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "tenantctl",
		Short: "Administer schema-per-tenant PostgreSQL deployments",
		Long: `tenantctl manages the tenant registry, provisions and decommissions
tenant schemas, and applies migrations across the fleet. Interrupting a
bulk migration stops at the next schema boundary; schemas already being
migrated run to completion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "database connection string override")

	rootCmd.AddCommand(createTenantSchemaCmd())
	rootCmd.AddCommand(migrateTenantCmd())
	rootCmd.AddCommand(migrateSharedCmd())
	rootCmd.AddCommand(makeMigrationsTenantCmd())
	rootCmd.AddCommand(listTenantsCmd())
	rootCmd.AddCommand(dropTenantSchemaCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
