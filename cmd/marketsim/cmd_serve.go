package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"MarketSim/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation service until interrupted",
	Long: `Start the tick loop, the REST API under /api/v1, the /ws/stream websocket
and, when configured, Kafka intake/export, ClickHouse tick storage and Redis
snapshots. SIGINT or SIGTERM shuts everything down in order.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	return app.Run()
}
