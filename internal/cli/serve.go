package cli

import (
	"github.com/spf13/cobra"

	"github.com/suda-labs/suda/internal/item"
	"github.com/suda-labs/suda/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		Long:  "Run the local HTTP API used by front-ends: session lifecycle, turns, telemetry events and export.",
		Run:   runServe,
	}

	cmd.Flags().String("addr", ":8787", "Listen address")
	cmd.Flags().String("catalog", "", "Item catalog snapshot (JSON, required)")
	cmd.MarkFlagRequired("catalog")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	catalogPath, _ := cmd.Flags().GetString("catalog")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if err := cfg.Validate(); err != nil {
		exitErr("validate config", err)
	}
	catalog, err := item.LoadCatalog(catalogPath)
	if err != nil {
		exitErr("load catalog", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	srv := &server.Server{
		Config:  cfg,
		Catalog: catalog,
		Store:   store,
		Logger:  logger,
	}
	logger.Sugar().Infow("listening", "addr", addr)
	if err := srv.Listen(addr); err != nil {
		exitErr("serve", err)
	}
}
