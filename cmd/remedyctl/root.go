package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/homeopathy-case-engine/internal/app"
	"github.com/homeopathy-case-engine/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	configPath string
	lite       bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "remedyctl",
		Short: "Operate the homeopathy case engine",
		Long: "remedyctl runs the remedy suggestion service, manages its database schema and\n" +
			"reference data, runs one-off suggestions and moves case records between stores.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./config.yaml, ./config/, /etc/homeopathy-case-engine/)")
	f.BoolVar(&opts.lite, "lite", false, "Standalone mode: embedded reference data and SQLite case records, configured from HCE_* variables")
	f.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	root.AddCommand(newSuggestCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newMCPCmd(opts))
	return root
}

// manager loads the full configuration from --config or the default search path.
func (o *rootOptions) manager() (*config.Manager, error) {
	if o.configPath != "" {
		return config.NewManagerFromFile(o.configPath)
	}
	return config.NewManager()
}

// logger builds a logger writing to stderr so command output stays clean.
func (o *rootOptions) logger(level, format string) *logrus.Logger {
	if o.logLevel != "" {
		level = o.logLevel
	}
	return config.NewLogger(level, format)
}

// application assembles the service: standalone with --lite, otherwise from the
// validated configuration.
func (o *rootOptions) application(ctx context.Context) (*app.App, error) {
	if o.lite {
		lite := config.LoadLiteConfig()
		return app.NewLite(lite, o.logger(lite.LogLevel, lite.LogFormat))
	}

	manager, err := o.manager()
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := manager.GetConfig()
	return app.New(ctx, manager, o.logger(cfg.Logging.Level, cfg.Logging.Format))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
