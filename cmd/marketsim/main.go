package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"MarketSim/pkg/config"
)

var configPath string

// rootCmd is the base command for the MarketSim CLI
var rootCmd = &cobra.Command{
	Use:   "marketsim",
	Short: "MarketSim market simulation and event engine",
	Long: `MarketSim runs a seeded stock-market simulation: macro regimes, order flow,
sentiment, scripted scenarios with player choices and a day/overnight cycle.

  marketsim serve --config config/config.yaml   # HTTP + websocket service
  marketsim run --days 5 --seed 42              # headless, prints settlements`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

// loadConfig reads the config file. A missing file at the default path falls
// back to built-in defaults so the headless runner works out of the box.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) && !cmd.Flags().Changed("config") {
		return config.Default()
	}
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
