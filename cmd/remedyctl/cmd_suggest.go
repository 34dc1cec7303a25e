package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/config"
	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/repository"
	"github.com/homeopathy-case-engine/internal/service"
)

// suggestOutput is what the suggest command prints.
type suggestOutput struct {
	SelectedRubrics []domain.RubricCandidate `json:"selectedRubrics"`
	Output          domain.EngineOutput      `json:"engineOutput"`
}

func newSuggestCmd(opts *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "suggest <case.json>",
		Short: "Run the suggestion pipeline on a case file without recording it",
		Long: `Reads a suggestion request ({"structuredCase": ..., "patientHistory": [...]})
and prints the ranked remedies. Reference data comes from the bundled dataset
or from --dir; engine tunables come from the HCE_* environment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read case file: %w", err)
			}
			var req service.SuggestRequest
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("parse case file: %w", err)
			}
			if req.StructuredCase == nil {
				return domain.NewValidationError("structuredCase", "structuredCase must be an object", nil)
			}

			ds, err := loadDataset(dir)
			if err != nil {
				return err
			}

			lite := config.LoadLiteConfig()
			logger := opts.logger(lite.LogLevel, lite.LogFormat)
			if opts.logLevel == "" {
				logger.SetLevel(logrus.WarnLevel)
			}

			ref := repository.NewMemoryReferenceStore(ds, logger)
			normalizer, err := service.NewSymptomNormalizer(ref, lite.Engine, lite.CacheMaxItems, logger)
			if err != nil {
				return err
			}
			// Nothing is persisted, so the pipeline runs without a learning hook.
			svc := service.NewSuggestionService(logger, lite.Engine, normalizer, ref, nil)

			run, err := svc.Run(cmd.Context(), *req.StructuredCase, req.PatientHistory)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(suggestOutput{SelectedRubrics: run.Selected, Output: run.Output})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Reference dataset directory (default: bundled dataset)")

	return cmd
}
