// Package config loads the quantlab YAML configuration and applies
// environment variable overrides for credentials and paths.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"quantlab/internal/strategy"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantlab platform.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Logging   Logging         `yaml:"logging"`
	Gather    GatherConfig    `yaml:"gather"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatherConfig holds parameters for the candle gathering job.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// BacktestConfig defines one scenario: the symbols, timeframe, capital, and
// the strategy runs to simulate over them.
type BacktestConfig struct {
	ScenarioName   string   `yaml:"scenario_name"`
	InitialCapital float64  `yaml:"initial_capital"`
	Timeframe      string   `yaml:"timeframe"`
	StartDate      string   `yaml:"start_date"`
	Warmup         int      `yaml:"warmup"`
	Symbols        []string `yaml:"symbols"`
	Runs           []RunDef `yaml:"runs"`
	ReportDir      string   `yaml:"report_dir"`
}

// RunDef names a catalog strategy and its parameter overrides.
type RunDef struct {
	Strategy string             `yaml:"strategy"`
	Params   map[string]float64 `yaml:"params"`
}

// OptimizerConfig overrides the self-optimizing variant's search space.
// Zero values fall back to the stock configuration.
type OptimizerConfig struct {
	Lookback            int      `yaml:"lookback"`
	ReoptimizeEvery     int      `yaml:"reoptimize_every"`
	FastPeriods         RangeDef `yaml:"fast_periods"`
	SlowPeriods         RangeDef `yaml:"slow_periods"`
	VolPeriods          RangeDef `yaml:"vol_periods"`
	StopMultFrom        float64  `yaml:"stop_mult_from"`
	StopMultTo          float64  `yaml:"stop_mult_to"`
	StopMultStep        float64  `yaml:"stop_mult_step"`
	MemorySize          int      `yaml:"memory_size"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	ExplorationRate     float64  `yaml:"exploration_rate"`
	Seed                int64    `yaml:"seed"`
}

// RangeDef is a half-open integer range [From, To) with a step.
type RangeDef struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
	Step int `yaml:"step"`
}

func (r RangeDef) values() []int {
	if r.Step <= 0 || r.From >= r.To {
		return nil
	}
	var out []int
	for v := r.From; v < r.To; v += r.Step {
		out = append(out, v)
	}
	return out
}

// ToStrategy maps the YAML optimizer section onto the strategy package's
// configuration, keeping stock values for everything left unset.
func (o OptimizerConfig) ToStrategy() strategy.OptimizerConfig {
	cfg := strategy.DefaultOptimizerConfig()
	if o.Lookback > 0 {
		cfg.Lookback = o.Lookback
	}
	if o.ReoptimizeEvery > 0 {
		cfg.ReoptimizeEvery = o.ReoptimizeEvery
	}
	if v := o.FastPeriods.values(); v != nil {
		cfg.FastPeriods = v
	}
	if v := o.SlowPeriods.values(); v != nil {
		cfg.SlowPeriods = v
	}
	if v := o.VolPeriods.values(); v != nil {
		cfg.VolPeriods = v
	}
	if o.StopMultStep > 0 && o.StopMultFrom > 0 && o.StopMultFrom <= o.StopMultTo {
		var mults []float64
		for m := o.StopMultFrom; m <= o.StopMultTo+1e-9; m += o.StopMultStep {
			mults = append(mults, m)
		}
		cfg.StopMults = mults
	}
	if o.MemorySize > 0 {
		cfg.MemorySize = o.MemorySize
	}
	if o.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = o.ConfidenceThreshold
	}
	if o.ExplorationRate > 0 {
		cfg.ExplorationRate = o.ExplorationRate
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, run := range c.Backtest.Runs {
		if _, ok := strategy.Catalog[run.Strategy]; !ok {
			return fmt.Errorf("config: %w: %q", strategy.ErrUnknownStrategy, run.Strategy)
		}
	}
	if c.Backtest.InitialCapital < 0 {
		return fmt.Errorf("config: negative initial capital %v", c.Backtest.InitialCapital)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// The SDK's canonical env vars take highest priority.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
