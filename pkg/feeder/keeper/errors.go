// Package keeper runs the executor bot that triggers aggregator updates on a
// schedule.
package keeper

import "errors"

// Keeper errors.
var (
	ErrNoUpdater       = errors.New("updater is required")
	ErrNoExecutor      = errors.New("executor address is required")
	ErrInvalidSchedule = errors.New("invalid schedule")
)
