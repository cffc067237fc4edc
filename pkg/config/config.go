// Package config provides configuration loading and validation for the oracle.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

// DefaultEnvFile is loaded when no env file is given and it exists.
const DefaultEnvFile = ".env"

// LoadEnvFile loads variables from path into the process environment without
// overriding variables that are already set. An empty path loads
// DefaultEnvFile if present.
func LoadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.MaxRequestSkew == 0 {
		cfg.Server.MaxRequestSkew = Duration(5 * time.Minute)
	}

	if cfg.Chain.DialTimeout == 0 {
		cfg.Chain.DialTimeout = Duration(15 * time.Second)
	}

	// Aggregator defaults
	defaults := aggregator.DefaultParams()
	agg := &cfg.Aggregator
	if agg.MaxPriceAge == 0 {
		agg.MaxPriceAge = Duration(defaults.MaxPriceAge)
	}
	if agg.MinEMAUpdateDelay == 0 {
		agg.MinEMAUpdateDelay = Duration(defaults.MinEMAUpdateDelay)
	}
	if agg.Multiplier == 0 {
		agg.Multiplier = defaults.Multiplier
	}
	if agg.BaseUpperBound == 0 {
		agg.BaseUpperBound = defaults.BaseUpperBound
	}
	if agg.BaseLowerBound == 0 {
		agg.BaseLowerBound = defaults.BaseLowerBound
	}
	if agg.LoanTokenDecimals == nil {
		d := defaults.LoanTokenDecimals
		agg.LoanTokenDecimals = &d
	}
	if agg.CollateralTokenDecimals == nil {
		d := defaults.CollateralTokenDecimals
		agg.CollateralTokenDecimals = &d
	}

	// Keeper defaults
	if cfg.Keeper.Schedule == "" {
		cfg.Keeper.Schedule = "@every 5m"
	}
	if cfg.Keeper.MaxRetries == 0 {
		cfg.Keeper.MaxRetries = 3
	}
	if cfg.Keeper.RetryInterval == 0 {
		cfg.Keeper.RetryInterval = Duration(10 * time.Second)
	}
	if cfg.Keeper.Timeout == 0 {
		cfg.Keeper.Timeout = Duration(time.Minute)
	}
	if cfg.Keeper.Executor == "" && len(cfg.Aggregator.Executors) > 0 {
		cfg.Keeper.Executor = cfg.Aggregator.Executors[0]
	}

	// Store defaults
	cfg.Store.Type = strings.ToLower(cfg.Store.Type)
	if cfg.Store.Type == "" {
		cfg.Store.Type = StoreTypeBolt
	}
	if cfg.Store.Type == StoreTypeBolt && cfg.Store.Path == "" {
		cfg.Store.Path = "oracle.db"
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.File.Path != "" {
		if cfg.Logging.File.MaxSize == 0 {
			cfg.Logging.File.MaxSize = 100
		}
		if cfg.Logging.File.MaxBackups == 0 {
			cfg.Logging.File.MaxBackups = 5
		}
		if cfg.Logging.File.MaxAge == 0 {
			cfg.Logging.File.MaxAge = 30
		}
	}
}

// Store types.
const (
	StoreTypeBolt   = "bolt"
	StoreTypeMemory = "memory"
)

// Params converts the policy section into aggregator parameters.
func (a *AggregatorConfig) Params() aggregator.Params {
	p := aggregator.Params{
		MaxPriceAge:       a.MaxPriceAge.ToDuration(),
		MinEMAUpdateDelay: a.MinEMAUpdateDelay.ToDuration(),
		Multiplier:        a.Multiplier,
		BaseUpperBound:    a.BaseUpperBound,
		BaseLowerBound:    a.BaseLowerBound,
	}
	if a.LoanTokenDecimals != nil {
		p.LoanTokenDecimals = *a.LoanTokenDecimals
	}
	if a.CollateralTokenDecimals != nil {
		p.CollateralTokenDecimals = *a.CollateralTokenDecimals
	}
	return p
}

// OwnerAddress returns the configured owner.
func (a *AggregatorConfig) OwnerAddress() common.Address {
	return common.HexToAddress(a.Owner)
}

// ExecutorAddresses returns the configured executors.
func (a *AggregatorConfig) ExecutorAddresses() []common.Address {
	out := make([]common.Address, 0, len(a.Executors))
	for _, e := range a.Executors {
		out = append(out, common.HexToAddress(e))
	}
	return out
}

// ToAggregatorConfig returns the aggregator bootstrap configuration.
func (a *AggregatorConfig) ToAggregatorConfig() aggregator.Config {
	return aggregator.Config{
		Params:    a.Params(),
		Owner:     a.OwnerAddress(),
		Executors: a.ExecutorAddresses(),
	}
}

// Source returns the source configuration named name.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return SourceConfig{}, false
}
