package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suda-labs/suda/internal/redact"
	"github.com/suda-labs/suda/internal/telemetry"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sessions, events and mastery as JSON",
		Long:  "Export recent sessions with their event logs plus all mastery aggregates. Free-text payloads are redacted per --redaction.",
		Run:   runExport,
	}

	cmd.Flags().IntP("limit", "l", 100, "Number of most recent sessions to include")
	cmd.Flags().String("redaction", "", "Redaction level: none, minimal, strict (default: config value)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	levelFlag, _ := cmd.Flags().GetString("redaction")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	levelStr := levelFlag
	if levelStr == "" {
		levelStr = cfg.Redaction
	}
	if levelStr == "" {
		levelStr = string(redact.LevelMinimal)
	}
	level, err := redact.ParseLevel(levelStr)
	if err != nil {
		exitErr("redaction", err)
	}

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	export, err := s.Export(cmd.Context(), telemetry.ExportParams{
		LimitSessions: limit,
		Redaction:     level,
	})
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(export, "", "  ")
	fmt.Println(string(b))
}
