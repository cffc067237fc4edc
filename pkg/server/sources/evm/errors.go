// Package evm provides EVM-based price feeds: the Accountant rate source and a
// pool TWAP.
package evm

import "errors"

var (
	// ErrRPCURLRequired indicates that rpc_url configuration is required.
	ErrRPCURLRequired = errors.New("rpc_url is required")
	// ErrInvalidTWAPPeriod indicates that the TWAP window is zero or too long.
	ErrInvalidTWAPPeriod = errors.New("twap period must be between 1s and 2^32-1s")
	// ErrInvalidObservation indicates that observe() returned an unexpected shape.
	ErrInvalidObservation = errors.New("invalid pool observation")
	// ErrTickOutOfRange indicates that a tick lies outside the valid tick range.
	ErrTickOutOfRange = errors.New("tick out of range")
	// ErrSameToken indicates that base and quote token are identical.
	ErrSameToken = errors.New("base and quote token must differ")
)
