package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Chain      ChainConfig      `yaml:"chain"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Sources    []SourceConfig   `yaml:"sources"`
	Keeper     KeeperConfig     `yaml:"keeper"`
	Store      StoreConfig      `yaml:"store"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the API server
type ServerConfig struct {
	HTTP           HTTPConfig `yaml:"http"`
	WebSocket      WSConfig   `yaml:"websocket"`
	MaxRequestSkew Duration   `yaml:"max_request_skew"` // Allowed drift of signed request timestamps
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the event stream mounted at /ws
type WSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// ChainConfig configures the EVM RPC connection shared by all sources
type ChainConfig struct {
	RPCURL      string   `yaml:"rpc_url"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// AggregatorConfig holds the initial owner, executors and policy parameters.
// Stored state takes precedence over everything except the source names.
type AggregatorConfig struct {
	PrimarySource     string   `yaml:"primary_source"`  // Name from the sources catalog
	FallbackSource    string   `yaml:"fallback_source"` // Name from the sources catalog
	Owner             string   `yaml:"owner"`
	Executors         []string `yaml:"executors"`
	MaxPriceAge       Duration `yaml:"max_price_age"`
	MinEMAUpdateDelay Duration `yaml:"min_ema_update_delay"`
	Multiplier        uint64   `yaml:"multiplier"`       // Basis points
	BaseUpperBound    uint64   `yaml:"base_upper_bound"` // Basis points, > 10000
	BaseLowerBound    uint64   `yaml:"base_lower_bound"` // Basis points, < 10000
	// Pointers so that an explicit 0 survives defaults.
	LoanTokenDecimals       *uint8 `yaml:"loan_token_decimals"`
	CollateralTokenDecimals *uint8 `yaml:"collateral_token_decimals"`
}

// SourceConfig configures a named price feed
type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// KeeperConfig configures the scheduled update caller
type KeeperConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Executor      string   `yaml:"executor"` // Address the keeper calls as; must be an executor
	Schedule      string   `yaml:"schedule"` // Cron spec or @every descriptor
	MaxRetries    int      `yaml:"max_retries"`
	RetryInterval Duration `yaml:"retry_interval"`
	Timeout       Duration `yaml:"timeout"`
}

// StoreConfig configures state persistence
type StoreConfig struct {
	Type string `yaml:"type"` // "bolt" or "memory"
	Path string `yaml:"path"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig configures log file rotation
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Duration is a wrapper around time.Duration for YAML parsing. Plain integers
// are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
