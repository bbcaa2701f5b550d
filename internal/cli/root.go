// Package cli implements the suda CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suda-labs/suda/internal/config"
	"github.com/suda-labs/suda/internal/telemetry"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	verbose    bool

	logger *zap.Logger
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "suda",
	Short: "Conversation practice driven by your review history",
	Long: "suda runs LLM conversation sessions whose vocabulary is planned from your\n" +
		"spaced-repetition state: every reply stays inside a closed word budget and\n" +
		"every interaction feeds mastery telemetry. SQLite-backed, single binary.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SUDA_DB_PATH or ~/.suda/suda.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./suda.yaml or ~/.suda/suda.yaml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*telemetry.SQLiteStore, error) {
	return telemetry.NewSQLiteStore(cfg.DBPath)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
