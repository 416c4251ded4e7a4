package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hftsim/backtest/fixture"
	"github.com/hftsim/backtest/simtypes"
)

func newGenFixtureCmd() *cobra.Command {
	var symbol string
	var tickSize float64
	var lotSize float64
	var out string

	cmd := &cobra.Command{
		Use:   "gen-fixture",
		Short: "Generate a deterministic synthetic feed file for one symbol",
		Long: "Runs a small scripted crossing order flow through the matching engine " +
			"and writes the resulting depth and trade events as a feed file " +
			"readable by the run command's data_path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			script := defaultFixtureScript()
			events := fixture.GenerateDeterministicFeed(symbol, tickSize, lotSize, script)
			if err := fixture.WriteFeedFile(out, events); err != nil {
				return fmt.Errorf("generate fixture: %w", err)
			}
			cmd.Printf("wrote %d events to %s\n", len(events), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "symbol to generate the fixture for")
	cmd.Flags().Float64Var(&tickSize, "tick-size", 0.1, "tick size passed to the generator (not written to the fixture)")
	cmd.Flags().Float64Var(&lotSize, "lot-size", 0.001, "lot size passed to the generator (not written to the fixture)")
	cmd.Flags().StringVar(&out, "out", "feed.json", "output path for the generated feed file")

	return cmd
}

// defaultFixtureScript is a small, deterministic crossing/resting order
// sequence: enough to produce both depth and trade events without needing
// caller-supplied input.
func defaultFixtureScript() []fixture.Order {
	return []fixture.Order{
		{Side: simtypes.Sell, Price: 101.0, Qty: 2.0, Timestamp: 1_000_000},
		{Side: simtypes.Buy, Price: 99.0, Qty: 1.5, Timestamp: 2_000_000},
		{Side: simtypes.Buy, Price: 101.0, Qty: 1.0, Timestamp: 3_000_000},
		{Side: simtypes.Sell, Price: 100.5, Qty: 0.5, Timestamp: 4_000_000},
		{Side: simtypes.Buy, Price: 100.5, Qty: 0.5, Timestamp: 5_000_000},
	}
}
