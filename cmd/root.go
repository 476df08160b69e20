package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/config"
	"github.com/kozaktomas/face-indexer/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "face-indexer",
	Short: "Index detected faces and reconcile identity corrections",
	Long: `Face Indexer adds detected face crops to a face-recognition collection,
packing many crops into each recognition call, and later applies operator
renames and deletions to every artifact that references a face.

Settings are read from the environment and an optional .env file in the
working directory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; real environment variables take precedence.
		_ = godotenv.Load()
	},
}

// Execute runs the command selected by the process arguments and exits with
// status 1 on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	flags.Bool("json", false, "Print results as JSON")
}

// loadConfig reads the configuration and builds the logger for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if level := mustGetString(cmd, "log-level"); level != "" {
		cfg.Log.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger.Named(cmd.Name()), nil
}
