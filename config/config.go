// Package config defines the run configuration for a backtest: which
// assets to load, their tick/lot size and queue/latency/fee model
// parameters, and the exchange kind. Config is loaded from a YAML file
// with an env var override for the logging level, following the
// viper-plus-mapstructure pattern used across the retrieval pack's bots.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level run configuration. Maps directly onto the YAML
// file structure via mapstructure tags.
type Config struct {
	Logging LoggingConfig   `mapstructure:"logging"`
	Assets  []AssetConfig   `mapstructure:"assets"`
}

// LoggingConfig controls the kernel's structured logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// AssetConfig is one asset's run parameters.
type AssetConfig struct {
	Symbol       string  `mapstructure:"symbol"`
	DataPath     string  `mapstructure:"data_path"`
	TickSize     float64 `mapstructure:"tick_size"`
	LotSize      float64 `mapstructure:"lot_size"`
	Exchange     string  `mapstructure:"exchange"` // "no_partial_fill" | "partial_fill"
	AssetType    string  `mapstructure:"asset_type"` // "linear" | "inverse"
	QueueModel   string  `mapstructure:"queue_model"` // "risk_adverse" (default) | "prob_power3" | "l3_fifo"
	DepthKind    string  `mapstructure:"depth_kind"`  // "hashmap" | "roi_vector" | "fused"
	ROILowerPx   float64 `mapstructure:"roi_lower_px"`
	ROIUpperPx   float64 `mapstructure:"roi_upper_px"`

	EntryLatencyNs    int64   `mapstructure:"entry_latency_ns"`
	ResponseLatencyNs int64   `mapstructure:"response_latency_ns"`
	LatencyDataPath   string  `mapstructure:"latency_data_path"`

	MakerFeeRate float64 `mapstructure:"maker_fee_rate"`
	TakerFeeRate float64 `mapstructure:"taker_fee_rate"`

	TradesCapacity int `mapstructure:"trades_capacity"`
}

// Load reads config from a YAML file at path, applying HFTSIM_* env var
// overrides for anything under the "logging" key (e.g. HFTSIM_LOGGING_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HFTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if level := os.Getenv("HFTSIM_LOGGING_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return &cfg, nil
}

// Validate checks that every asset carries the fields the kernel needs to
// construct its processors.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one asset must be configured")
	}
	for i, a := range c.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("assets[%d].symbol is required", i)
		}
		if a.TickSize <= 0 {
			return fmt.Errorf("assets[%d].tick_size must be > 0", i)
		}
		if a.LotSize <= 0 {
			return fmt.Errorf("assets[%d].lot_size must be > 0", i)
		}
		switch a.Exchange {
		case "no_partial_fill", "partial_fill":
		default:
			return fmt.Errorf("assets[%d].exchange must be one of: no_partial_fill, partial_fill", i)
		}
		switch a.AssetType {
		case "linear", "inverse":
		default:
			return fmt.Errorf("assets[%d].asset_type must be one of: linear, inverse", i)
		}
		switch a.DepthKind {
		case "hashmap", "roi_vector", "fused":
		default:
			return fmt.Errorf("assets[%d].depth_kind must be one of: hashmap, roi_vector, fused", i)
		}
		if a.DepthKind == "roi_vector" && a.ROILowerPx >= a.ROIUpperPx {
			return fmt.Errorf("assets[%d].roi_lower_px must be < roi_upper_px", i)
		}
	}
	return nil
}
