package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hftsim/backtest/backtest"
	"github.com/hftsim/backtest/builder"
	"github.com/hftsim/backtest/config"
	"github.com/hftsim/backtest/logging"
	"github.com/hftsim/backtest/metrics"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var logLevel string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest to the end of its feed and print account state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, configPath, logLevel, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "backtest.yaml", "path to the run config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the config file's logging.level")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address while the run executes")

	return cmd
}

func runBacktest(cmd *cobra.Command, configPath, logLevel, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Logging.Level)

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.GetCollector()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	assets := make([]backtest.Asset, 0, len(cfg.Assets))
	for _, assetCfg := range cfg.Assets {
		asset, err := builder.BuildAsset(assetCfg, log.With(zap.String("symbol", assetCfg.Symbol)), collector)
		if err != nil {
			return fmt.Errorf("build asset %s: %w", assetCfg.Symbol, err)
		}
		assets = append(assets, asset)
	}

	bt := backtest.New(assets)

	if _, err := bt.GotoEnd(); err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	for i, assetCfg := range cfg.Assets {
		st, err := bt.StateValues(i)
		if err != nil {
			return err
		}
		cmd.Printf("%s: position=%s balance=%s fee_paid=%s num_trades=%d\n",
			assetCfg.Symbol, st.Position.String(), st.Balance.String(), st.FeePaid.String(), st.NumTrades)
	}

	return nil
}
