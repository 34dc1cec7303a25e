package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Migrations directory (default: database.migrations_path)")

	runner := func() (*database.MigrationRunner, error) {
		manager, err := opts.manager()
		if err != nil {
			return nil, err
		}
		cfg := manager.GetConfig()
		dir := cfg.Database.MigrationsPath
		if path != "" {
			dir = path
		}
		return database.NewMigrationRunner(manager.GetDatabaseURL(), dir, opts.logger(cfg.Logging.Level, cfg.Logging.Format))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()
			return mr.Up(cmd.Context())
		},
	})

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration, or every migration with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()
			if all {
				return mr.Reset(cmd.Context())
			}
			return mr.Down(cmd.Context())
		},
	}
	down.Flags().BoolVar(&all, "all", false, "Roll back every applied migration")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mr, err := runner()
			if err != nil {
				return err
			}
			defer mr.Close()

			version, dirty, err := mr.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})

	return cmd
}
