package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/pkg/migrations"
)

func migrateTenantCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate-tenant <identifier|all>",
		Short: "Apply pending tenant migrations",
		Long: `Applies pending migrations to one tenant's schema, or to every active
tenant when the identifier is "all". Bulk runs migrate schemas
concurrently and keep going past individual failures; the exit status
reflects whether every schema came up to date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if dir == "" {
				dir = a.cfg.Migrations.TenantDir
			}
			runner, err := a.runner(dir)
			if err != nil {
				return err
			}

			if args[0] == "all" {
				manager, err := a.manager(runner)
				if err != nil {
					return err
				}

				records, err := manager.Provisioned(cmd.Context())
				if err != nil {
					return err
				}

				schemas := make([]string, len(records))
				for i, record := range records {
					schemas[i] = record.SchemaName
				}

				// Fleet runs can take a while; expose progress for scraping.
				stopMetrics := a.metricsServer()
				defer stopMetrics()

				report := runner.ApplyAll(cmd.Context(), schemas)
				printReport(report)
				if !report.OK() {
					return fmt.Errorf("%d of %d schemas failed", len(report.Failed()), len(report.Results))
				}
				return nil
			}

			record, err := a.registry.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record.Status == pgtenancy.StatusDropped {
				return fmt.Errorf("%w: tenant %q", pgtenancy.ErrTenantDropped, args[0])
			}

			result, err := runner.Apply(cmd.Context(), record.SchemaName)
			printResult(result)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "tenant migrations directory (default: from configuration)")
	return cmd
}

func migrateSharedCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate-shared",
		Short: "Apply pending migrations to the shared schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			if dir == "" {
				dir = a.cfg.Migrations.SharedDir
			}
			runner, err := a.runner(dir)
			if err != nil {
				return err
			}
			manager, err := a.manager(nil)
			if err != nil {
				return err
			}

			result, err := manager.ProvisionShared(cmd.Context(), runner)
			printResult(result)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "shared migrations directory (default: from configuration)")
	return cmd
}

func makeMigrationsTenantCmd() *cobra.Command {
	var (
		dir     string
		shared  bool
		depends []string
	)

	cmd := &cobra.Command{
		Use:   "make-migration <name>",
		Short: "Generate a new migration file",
		Long: `Generates a sequence-numbered migration skeleton in the tenant
migrations directory, or the shared one with --shared. Unless --depends
is given, the new migration depends on the newest one already there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Migrations.TenantDir
				if shared {
					dir = cfg.Migrations.SharedDir
				}
			}

			path, err := migrations.Generate(migrations.Config{
				Dir:       dir,
				Name:      args[0],
				DependsOn: depends,
			})
			if err != nil {
				return err
			}

			fmt.Printf("created %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: from configuration)")
	cmd.Flags().BoolVar(&shared, "shared", false, "generate into the shared migrations directory")
	cmd.Flags().StringSliceVar(&depends, "depends", nil, "migration IDs the new migration depends on")
	return cmd
}
