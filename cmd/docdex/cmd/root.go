// Package cmd provides the CLI commands for docdex.
package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/logging"
	"github.com/docdex/docdex/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the docdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docdex",
		Short: "Incremental vector index for document collections",
		Long: `docdex keeps a vector index synchronized with a set of source
documents over time. Runs are incremental: unchanged content is never
re-embedded, and content that disappears from a document is cleaned up
from both the durable ledger and the vector store.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docdex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "docdex.yaml", "Path to the config file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupEnvAndLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupEnvAndLogging loads .env for API keys and installs the default
// logger. Missing .env files are fine; real environments set vars directly.
func setupEnvAndLogging(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		// Logging must never block the actual work
		slog.Warn("file logging unavailable", slog.String("error", err.Error()))
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

// loadConfig reads the configured file, applying env overrides.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
