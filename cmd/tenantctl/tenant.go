package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/getpup/pgtenancy"
)

func createTenantSchemaCmd() *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "create-tenant-schema <identifier>",
		Short: "Register a tenant and provision its schema",
		Long: `Registers the tenant in the catalog, creates its schema, and applies
every tenant migration inside it. The tenant only becomes routable once
all migrations succeed. Re-running the command resumes a provisioning
that failed part way through.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := args[0]
			if schemaName == "" {
				schemaName = identifier
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.runner(a.cfg.Migrations.TenantDir)
			if err != nil {
				return err
			}
			manager, err := a.manager(runner)
			if err != nil {
				return err
			}

			_, err = a.registry.Register(cmd.Context(), identifier, schemaName)
			if err != nil && !errors.Is(err, pgtenancy.ErrDuplicateTenant) {
				return err
			}

			record, err := manager.Provision(cmd.Context(), identifier)
			if err != nil {
				return err
			}

			fmt.Printf("tenant %s provisioned on schema %s\n", record.Identifier, record.SchemaName)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "schema name (default: the identifier)")
	return cmd
}

func listTenantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tenants",
		Short: "List active tenants and their schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			manager, err := a.manager(nil)
			if err != nil {
				return err
			}

			records, err := manager.Provisioned(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IDENTIFIER\tSCHEMA\tSTATUS\tCREATED")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					record.Identifier, record.SchemaName, record.Status,
					record.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func dropTenantSchemaCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drop-tenant-schema <identifier>",
		Short: "Decommission a tenant and drop its schema",
		Long: `Marks the tenant dropped so routing stops immediately, then removes
its schema and all data in it. The two steps are ordered so a failure
after decommissioning never leaves a routable tenant without a schema.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identifier := args[0]

			if !force {
				return fmt.Errorf("refusing to destroy tenant data without --force")
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			manager, err := a.manager(nil)
			if err != nil {
				return err
			}

			if err := manager.Decommission(cmd.Context(), identifier); err != nil {
				return err
			}
			if err := manager.DropSchema(cmd.Context(), identifier); err != nil {
				return err
			}

			fmt.Printf("tenant %s decommissioned and schema dropped\n", identifier)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm irreversible schema removal")
	return cmd
}
