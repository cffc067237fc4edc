package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.go.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}

	return logging.NewNoopLogger()
}

// GetCallerFromConfig extracts the shared EVM client from config.
func GetCallerFromConfig(config map[string]interface{}) (ContractCaller, error) {
	if c, ok := config["client"].(ContractCaller); ok && c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w", ErrClientNotInitialized)
}

// GetNameFromConfig returns config["name"] or the fallback.
func GetNameFromConfig(config map[string]interface{}, fallback string) string {
	if name := strings.TrimSpace(getStringFromMap(config, "name")); name != "" {
		return name
	}
	return fallback
}

// GetAddressFromConfig parses a required hex address.
func GetAddressFromConfig(config map[string]interface{}, key string) (common.Address, error) {
	raw := strings.TrimSpace(getStringFromMap(config, key))
	if raw == "" {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAddressRequired, key)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s is not a hex address: %q", ErrInvalidConfig, key, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAddressRequired, key)
	}
	return addr, nil
}

// GetDecimalsFromConfig reads a token decimal count in [0, 77].
func GetDecimalsFromConfig(config map[string]interface{}, key string, defaultVal uint8) (uint8, error) {
	v := getIntFromMap(config, key, int(defaultVal))
	if v < 0 || v > 77 {
		return 0, fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, key, v)
	}
	return uint8(v), nil // #nosec G115 -- range checked above
}

// GetDurationFromConfig reads a duration given either as a Go duration
// string ("30m") or as integer seconds.
func GetDurationFromConfig(config map[string]interface{}, key string, defaultVal time.Duration) (time.Duration, error) {
	switch v := config[key].(type) {
	case nil:
		return defaultVal, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		return d, nil
	default:
		secs := getIntFromMap(config, key, -1)
		if secs < 0 {
			return 0, fmt.Errorf("%w: %s must be a duration", ErrInvalidConfig, key)
		}
		return time.Duration(secs) * time.Second, nil
	}
}

// InnerFeedConfig describes a feed nested inside another feed's config.
type InnerFeedConfig struct {
	Type   string
	Name   string
	Config map[string]interface{}
}

// ParseInnerFeeds extracts nested feed definitions from config["feeds"].
// Expected format:
//
//	feeds:
//	  - type: accountant
//	    name: ssuperusd_rate
//	    config: {...}
func ParseInnerFeeds(config map[string]interface{}) ([]InnerFeedConfig, error) {
	raw, ok := config["feeds"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: feeds must be an array", ErrInvalidConfig)
	}

	feeds := make([]InnerFeedConfig, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: feed at index %d is not an object", ErrInvalidConfig, i)
		}
		inner := InnerFeedConfig{
			Type: getStringFromMap(m, "type"),
			Name: getStringFromMap(m, "name"),
		}
		if inner.Type == "" {
			return nil, fmt.Errorf("%w: feed[%d] missing 'type'", ErrInvalidConfig, i)
		}
		if cfg, ok := m["config"].(map[string]interface{}); ok {
			inner.Config = cfg
		} else {
			inner.Config = make(map[string]interface{})
		}
		feeds = append(feeds, inner)
	}
	return feeds, nil
}

// Helper functions for extracting values from maps

func getStringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getIntFromMap(m map[string]interface{}, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v) // #nosec G115 -- config values are small
	default:
		return defaultVal
	}
}
