package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/app"
	"github.com/homeopathy-case-engine/internal/config"
	"github.com/homeopathy-case-engine/internal/outcome"
)

// caseStore opens the case-record store selected by --lite or the config file.
func (o *rootOptions) caseStore() (outcome.Store, error) {
	if o.lite {
		lite := config.LoadLiteConfig()
		if err := lite.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return outcome.NewSQLiteStore(lite.CaseRecordDBPath())
	}

	manager, err := o.manager()
	if err != nil {
		return nil, err
	}
	return app.OpenCaseStore(manager.GetConfig().OutcomeStore, manager.OutcomeStorePostgresURL())
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export case records as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.caseStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := store.ExportJSON(cmd.Context(), w); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported case records to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import case records from a JSON export",
		Long:  "Imports records produced by export. Records whose id already exists are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}

			store, err := opts.caseStore()
			if err != nil {
				return err
			}
			defer store.Close()

			imported, skipped, err := store.ImportJSON(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d case records (%d skipped)\n", imported, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "file", "f", "", "Read from file instead of stdin")

	return cmd
}
