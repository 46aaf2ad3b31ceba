// Package cmd provides the CLI commands for travelcs.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angeless/travelcs/internal/config"
	"github.com/angeless/travelcs/internal/logging"
	"github.com/angeless/travelcs/pkg/version"
)

var (
	// workDir is the project directory holding travelcs.yaml and the
	// documents directory. Set by the --dir persistent flag.
	workDir string

	debugMode      bool
	loggingCleanup func()

	// cfg is loaded by the persistent pre-run hook and shared by all
	// subcommands.
	cfg *config.Config
)

// NewRootCmd creates the root command for the travelcs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "travelcs",
		Short: "Hybrid-search knowledge base for travel customer support",
		Long: `travelcs indexes travel products, FAQs, and policy documents into a
hybrid (semantic + keyword) search index for customer support retrieval.

Run 'travelcs index' to build the index from your documents directory,
then 'travelcs search <query>' to query it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("travelcs version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Project directory containing travelcs.yaml")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupConfigAndLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupConfigAndLogging loads .env, the YAML config, and installs the
// default logger before any subcommand runs.
func setupConfigAndLogging(_ *cobra.Command, _ []string) error {
	// Optional .env next to the config, for OPENAI_API_KEY and friends.
	_ = godotenv.Load(filepath.Join(workDir, ".env"))

	loaded, err := config.Load(workDir)
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		WriteToStderr: cfg.Logging.File == "",
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup

	slog.Debug("config_loaded",
		slog.String("dir", workDir),
		slog.String("data_dir", cfg.DataDir),
		slog.String("embedding_provider", cfg.Embedding.Provider))
	return nil
}

// dataDir resolves the data directory relative to the project directory.
func dataDir() string {
	if filepath.IsAbs(cfg.DataDir) {
		return cfg.DataDir
	}
	return filepath.Join(workDir, cfg.DataDir)
}

// documentsDir resolves the documents directory relative to the project
// directory.
func documentsDir() string {
	if filepath.IsAbs(cfg.DocumentsDir) {
		return cfg.DocumentsDir
	}
	return filepath.Join(workDir, cfg.DocumentsDir)
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		slog.Error("command_failed", slog.String("error", err.Error()))
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
	}
	return err
}
