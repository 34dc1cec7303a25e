package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/database"
	"github.com/homeopathy-case-engine/internal/repository"
	"github.com/homeopathy-case-engine/internal/repository/seed"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data into PostgreSQL",
		Long: `Upserts symptoms, rubrics, rubric grades and remedies into the reference
tables. Without --dir the bundled dataset is loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := loadDataset(dir)
			if err != nil {
				return err
			}

			manager, err := opts.manager()
			if err != nil {
				return err
			}
			cfg := manager.GetConfig()
			logger := opts.logger(cfg.Logging.Level, cfg.Logging.Format)

			db, err := database.NewConnection(cmd.Context(), database.ConfigFrom(cfg.Database), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.NewPostgresReferenceStore(db.Pool, logger).Import(cmd.Context(), ds); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d symptoms, %d rubrics, %d rubric grades, %d remedies\n",
				len(ds.Symptoms), len(ds.Rubrics), len(ds.RubricRemedies), len(ds.Remedies))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding symptoms.yaml, rubrics.yaml, remedies.yaml and rubric_remedies.yaml")

	return cmd
}

func loadDataset(dir string) (*seed.Dataset, error) {
	if dir == "" {
		return seed.Load()
	}
	return seed.LoadDir(dir)
}
