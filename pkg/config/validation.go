package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Chain.RPCURL) == "" {
		return ErrRPCURLRequired
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateSources(cfg.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}

	if err := validateAggregatorConfig(cfg); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}

	if cfg.Keeper.Enabled {
		if err := validateKeeperConfig(cfg); err != nil {
			return fmt.Errorf("keeper config: %w", err)
		}
	}

	if err := validateStoreConfig(&cfg.Store); err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateSources(list []SourceConfig) error {
	if len(list) == 0 {
		return ErrNoSourcesConfigured
	}
	known := sources.List()
	seen := make(map[string]bool, len(list))
	for i, src := range list {
		if src.Name == "" {
			return fmt.Errorf("source %d: %w", i, ErrSourceNameRequired)
		}
		if src.Type == "" {
			return fmt.Errorf("source %s: %w", src.Name, ErrSourceTypeRequired)
		}
		if !contains(known, src.Type) {
			return fmt.Errorf("source %s: %w: %s (must be one of: %s)",
				src.Name, sources.ErrUnknownSourceType, src.Type, strings.Join(known, ", "))
		}
		if seen[src.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceName, src.Name)
		}
		seen[src.Name] = true
	}
	return nil
}

func validateAggregatorConfig(cfg *Config) error {
	agg := &cfg.Aggregator
	for _, name := range []string{agg.PrimarySource, agg.FallbackSource} {
		if _, ok := cfg.Source(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
	}
	if agg.PrimarySource == agg.FallbackSource {
		return ErrSameSource
	}

	if agg.Owner == "" {
		return ErrOwnerRequired
	}
	if err := validateAddress("owner", agg.Owner); err != nil {
		return err
	}
	for i, e := range agg.Executors {
		if err := validateAddress(fmt.Sprintf("executors[%d]", i), e); err != nil {
			return err
		}
	}

	return agg.Params().Validate()
}

func validateKeeperConfig(cfg *Config) error {
	if err := validateAddress("executor", cfg.Keeper.Executor); err != nil {
		return err
	}
	executor := common.HexToAddress(cfg.Keeper.Executor)
	for _, e := range cfg.Aggregator.ExecutorAddresses() {
		if e == executor {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrKeeperExecutorNotAuthorized, executor.Hex())
}

func validateStoreConfig(cfg *StoreConfig) error {
	switch cfg.Type {
	case StoreTypeBolt:
		if cfg.Path == "" {
			return ErrStorePathRequired
		}
	case StoreTypeMemory:
	default:
		return fmt.Errorf("%w: %s (must be 'bolt' or 'memory')", ErrInvalidStoreType, cfg.Type)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Level)) {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}
	return nil
}

func validateAddress(field, value string) error {
	if !common.IsHexAddress(value) {
		return fmt.Errorf("%w: %s %q", ErrInvalidAddress, field, value)
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return fmt.Errorf("%w: %s is the zero address", ErrInvalidAddress, field)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
