package config

import "errors"

var (
	// ErrRPCURLRequired indicates that chain.rpc_url is missing.
	ErrRPCURLRequired = errors.New("chain.rpc_url must be specified")
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrDuplicateSourceName indicates that two sources share a name.
	ErrDuplicateSourceName = errors.New("duplicate source name")
	// ErrUnknownSource indicates that the aggregator references a source that is not configured.
	ErrUnknownSource = errors.New("source not configured")
	// ErrSameSource indicates that primary and fallback name the same source.
	ErrSameSource = errors.New("primary and fallback sources must differ")
	// ErrInvalidAddress indicates a malformed hex address.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrOwnerRequired indicates that aggregator.owner is missing.
	ErrOwnerRequired = errors.New("aggregator.owner must be specified")
	// ErrKeeperExecutorNotAuthorized indicates that the keeper would call as a non-executor.
	ErrKeeperExecutorNotAuthorized = errors.New("keeper executor is not in aggregator.executors")
	// ErrInvalidStoreType indicates an unsupported store type.
	ErrInvalidStoreType = errors.New("invalid store type")
	// ErrStorePathRequired indicates that a bolt store has no path.
	ErrStorePathRequired = errors.New("store.path must be specified for bolt store")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
