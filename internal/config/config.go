// Package config defines the Avellaneda-Stoikov model configuration and
// the run-level configuration for the backtest/grid-search binaries.
// Config is loaded from a YAML file with sensitive-free fields
// overridable via AS_* environment variables, matching the teacher bot's
// viper setup.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"as-backtester/internal/model"
)

// ASConfig is the immutable per-backtest-run model configuration (spec.md §6).
type ASConfig struct {
	RiskAversionGamma    float64         `mapstructure:"risk_aversion_gamma"`
	GammaMode            model.GammaMode `mapstructure:"gamma_mode"`
	GammaMin             float64         `mapstructure:"gamma_min"`
	GammaMax             float64         `mapstructure:"gamma_max"`
	MaxShiftTicks        float64         `mapstructure:"max_shift_ticks"`
	MaxInventory         float64         `mapstructure:"max_inventory"`
	InventoryHorizonSec  uint64          `mapstructure:"inventory_horizon_seconds"`
	TickSize             float64         `mapstructure:"tick_size"`
	MinSpreadBps         float64         `mapstructure:"min_spread_bps"`
	MaxSpreadBps         float64         `mapstructure:"max_spread_bps"`
	MakerFeeBps          float64         `mapstructure:"maker_fee_bps"`
	TakerFeeBps          float64         `mapstructure:"taker_fee_bps"`
	MinVolatility        float64         `mapstructure:"min_volatility"`
	MaxVolatility        float64         `mapstructure:"max_volatility"`
	CalibrationWindowSec uint64          `mapstructure:"calibration_window_seconds"`
	RecalibrationIntervalSec uint64      `mapstructure:"recalibration_interval_seconds"`
	QuoteValiditySec     uint64          `mapstructure:"quote_validity_seconds"`
	GapThresholdSec      uint64          `mapstructure:"gap_threshold_seconds"`
	WarmupPeriodSec      uint64          `mapstructure:"warmup_period_seconds"`
	FillCooldownSec      uint64          `mapstructure:"fill_cooldown_seconds"`
	EffectiveVolumeThreshold decimal.Decimal `mapstructure:"effective_volume_threshold"`
}

// Default returns the teacher/original-source calibrated defaults.
func Default() ASConfig {
	return ASConfig{
		RiskAversionGamma:        0.5,
		GammaMode:                model.GammaInventoryScaled,
		GammaMin:                 0.1,
		GammaMax:                 5.0,
		MaxShiftTicks:            100.0,
		MaxInventory:             10.0,
		InventoryHorizonSec:      60,
		TickSize:                 0.01,
		MinSpreadBps:             2.0,
		MaxSpreadBps:             100.0,
		MakerFeeBps:              1.0,
		TakerFeeBps:              5.0,
		MinVolatility:            0.0,
		MaxVolatility:            0.02,
		CalibrationWindowSec:     3600,
		RecalibrationIntervalSec: 60,
		QuoteValiditySec:         60,
		GapThresholdSec:          1800,
		WarmupPeriodSec:          900,
		FillCooldownSec:          0,
		EffectiveVolumeThreshold: decimal.NewFromInt(1000),
	}
}

// RunConfig is the top-level configuration for a single backtest run or
// one cell of a grid search.
type RunConfig struct {
	AS              ASConfig `mapstructure:"as"`
	InitialCapital  decimal.Decimal `mapstructure:"initial_capital"`
	OrderNotional   decimal.Decimal `mapstructure:"order_notional"`
	TradesPath      string          `mapstructure:"trades_path"`
	OrderbookPath   string          `mapstructure:"orderbook_path"`
	OutputCSVPath   string          `mapstructure:"output_csv_path"`
	Verbose         bool            `mapstructure:"verbose"`
	Logging         LoggingConfig   `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultRunConfig returns a RunConfig with ASConfig defaults applied.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		AS:             Default(),
		InitialCapital: decimal.NewFromInt(10000),
		OrderNotional:  decimal.NewFromInt(100),
		Logging:        LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads config from a YAML file with AS_* environment overrides.
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultRunConfig()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the required fields and value ranges.
func (c *RunConfig) Validate() error {
	if c.TradesPath == "" {
		return fmt.Errorf("trades_path is required")
	}
	if c.OrderbookPath == "" {
		return fmt.Errorf("orderbook_path is required")
	}
	if c.InitialCapital.Sign() <= 0 {
		return fmt.Errorf("initial_capital must be > 0")
	}
	if c.OrderNotional.Sign() <= 0 {
		return fmt.Errorf("order_notional must be > 0")
	}
	switch c.AS.GammaMode {
	case model.GammaConstant, model.GammaInventoryScaled, model.GammaMaxShift:
	default:
		return fmt.Errorf("as.gamma_mode must be one of constant, inventory_scaled, max_shift")
	}
	if c.AS.MaxInventory <= 0 {
		return fmt.Errorf("as.max_inventory must be > 0")
	}
	if c.AS.InventoryHorizonSec == 0 {
		return fmt.Errorf("as.inventory_horizon_seconds must be > 0")
	}
	return nil
}
