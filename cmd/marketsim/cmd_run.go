package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MarketSim/internal/di"
	"MarketSim/internal/domain/models"
	"MarketSim/internal/usecase"
	"MarketSim/pkg/config"
	"MarketSim/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a number of trading days without any backends",
	Long: `Run the engine headless for --days trading days and print each day's
settlement. Pending scenarios fall back to their default choice at the deadline.
The same seed and config always produce the same output.

Examples:
  marketsim run --days 10 --seed 7
  marketsim run --days 3 --format json --feed`,
	RunE: runHeadless,
}

var (
	runDays        int
	runSeed        uint64
	runTicksPerDay int
	runFormat      string
	runFeed        bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runDays, "days", 5, "Trading days to simulate")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Random seed (0 keeps the configured seed)")
	runCmd.Flags().IntVar(&runTicksPerDay, "ticks-per-day", 0, "Override ticks per day")
	runCmd.Flags().StringVar(&runFormat, "format", "table", "Output format: table or json")
	runCmd.Flags().BoolVar(&runFeed, "feed", false, "Log feed entries as they happen")
}

func runHeadless(cmd *cobra.Command, _ []string) error {
	if runDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	if runFormat != "table" && runFormat != "json" {
		return fmt.Errorf("--format must be table or json")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runSeed != 0 {
		cfg.Simulation.Seed = runSeed
	}
	if runTicksPerDay > 0 {
		cfg.Simulation.TicksPerDay = runTicksPerDay
	}

	log, err := logger.New(&logger.Config{Level: cfg.Logger.Level, Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	sim, err := di.InitializeSimulator(cfg, log, nil)
	if err != nil {
		return err
	}
	if runFeed {
		sim.Subscribe(feedLogger{log: log})
	}

	settlements, err := simulateDays(cmd.Context(), sim, runDays)
	if err != nil {
		return err
	}
	return writeSettlements(cmd.OutOrStdout(), cfg, settlements)
}

// simulateDays steps the simulator until days settlements have been produced.
func simulateDays(ctx context.Context, sim *usecase.Simulator, days int) ([]*usecase.Settlement, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make([]*usecase.Settlement, 0, days)
	for len(out) < days {
		rep, err := sim.Step(ctx)
		if err != nil {
			return out, err
		}
		if rep.Settlement != nil {
			out = append(out, rep.Settlement)
		}
	}
	return out, nil
}

func writeSettlements(w io.Writer, cfg *config.Config, settlements []*usecase.Settlement) error {
	if runFormat == "json" {
		enc := json.NewEncoder(w)
		for _, s := range settlements {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "seed %d\n", cfg.Simulation.Seed)
	fmt.Fprintln(tw, "DAY\tREGIME\tASSET\tOPEN\tCLOSE\tRETURN%\tVOL\tSTREAK\tNEXT GAP%")
	for _, s := range settlements {
		for _, a := range s.Assets {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%.4f\t%d\t%+.2f\n",
				s.Day, s.Regime, a.AssetID, a.Open, a.Close, a.ReturnPct*100, a.RealizedVol, a.Streak, a.NextGapPct*100)
		}
	}
	return tw.Flush()
}

type feedLogger struct{ log *logger.Logger }

func (f feedLogger) OnFeed(_ context.Context, runID string, entries []models.FeedEntry) {
	for _, e := range entries {
		f.log.Info(e.Text, logger.String("kind", string(e.Kind)), logger.String("target", e.TargetID))
	}
}

func (feedLogger) OnTick(context.Context, []models.TickPrint) {}

var _ usecase.Observer = feedLogger{}
