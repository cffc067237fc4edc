// Package sources provides price feed interfaces and the feed shapes shared by
// the primary and fallback oracles.
package sources

import "errors"

var (
	// ErrUnknownSourceType indicates that no factory is registered for a type.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrPaused indicates that the upstream rate source is paused.
	ErrPaused = errors.New("rate source paused")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrClientNotInitialized indicates that no EVM client was supplied.
	ErrClientNotInitialized = errors.New("client not initialized")
	// ErrAddressRequired indicates that a contract address is missing.
	ErrAddressRequired = errors.New("contract address is required")
	// ErrChainedFeedsRequired indicates that a chained feed needs exactly two inner feeds.
	ErrChainedFeedsRequired = errors.New("chained feed requires exactly two feeds")
)
