package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// mutate applies fn to a copy of the state on behalf of the owner and commits
// it only if fn and persistence succeed. onCommit runs under the lock after
// the swap.
func (a *Aggregator) mutate(ctx context.Context, caller common.Address, op string, fn func(*State) error, onCommit func()) error {
	err := a.mutateLocked(ctx, caller, fn, onCommit)
	if err != nil {
		metrics.RecordAdminOperation(op, "error")
		a.logger.Warn("Admin operation rejected", "operation", op, "caller", caller.Hex(), "error", err)
		return err
	}
	metrics.RecordAdminOperation(op, "ok")
	a.logger.Info("Admin operation applied", "operation", op, "caller", caller.Hex())
	return nil
}

func (a *Aggregator) mutateLocked(ctx context.Context, caller common.Address, fn func(*State) error, onCommit func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if caller != a.state.Owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	next := a.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := a.persist(ctx, next); err != nil {
		return err
	}
	a.state = next
	if onCommit != nil {
		onCommit()
	}
	return nil
}

func (a *Aggregator) requireOwner(caller common.Address) error {
	if a.Owner() != caller {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

// SetPrimarySource replaces the primary feed after a successful test read.
// The test reading is not cached.
func (a *Aggregator) SetPrimarySource(ctx context.Context, caller common.Address, feed sources.Feed) error {
	return a.setSource(ctx, caller, "set_primary_source", feed, true)
}

// SetFallbackSource replaces the fallback feed after a successful test read.
func (a *Aggregator) SetFallbackSource(ctx context.Context, caller common.Address, feed sources.Feed) error {
	return a.setSource(ctx, caller, "set_fallback_source", feed, false)
}

func (a *Aggregator) setSource(ctx context.Context, caller common.Address, op string, feed sources.Feed, primary bool) error {
	if feed == nil {
		metrics.RecordAdminOperation(op, "error")
		return fmt.Errorf("%w", ErrNilFeed)
	}
	// Fail fast before calling out to the new source.
	if err := a.requireOwner(caller); err != nil {
		metrics.RecordAdminOperation(op, "error")
		return err
	}
	reading, err := readFeed(ctx, feed)
	if err != nil {
		metrics.RecordAdminOperation(op, "error")
		return fmt.Errorf("%w: %w", ErrSourceTestReadFailed, err)
	}
	a.logger.Debug("Test read succeeded", "source", feed.Name(), "price", fixedpoint.PriceString(reading.Price))

	return a.mutate(ctx, caller, op, func(s *State) error {
		if primary {
			s.PrimarySource = feed.Name()
		} else {
			s.FallbackSource = feed.Name()
		}
		return nil
	}, func() {
		if primary {
			a.primary = feed
		} else {
			a.fallback = feed
		}
	})
}

// SetMaxPriceAge changes the freshness threshold.
func (a *Aggregator) SetMaxPriceAge(ctx context.Context, caller common.Address, age time.Duration) error {
	return a.mutate(ctx, caller, "set_max_price_age", func(s *State) error {
		if err := validateMaxPriceAge(age); err != nil {
			return err
		}
		s.Params.MaxPriceAge = age
		return nil
	}, nil)
}

// SetMultiplier changes the EMA smoothing weight, in basis points.
func (a *Aggregator) SetMultiplier(ctx context.Context, caller common.Address, multiplier uint64) error {
	return a.mutate(ctx, caller, "set_multiplier", func(s *State) error {
		if err := validateMultiplier(multiplier); err != nil {
			return err
		}
		s.Params.Multiplier = multiplier
		return nil
	}, nil)
}

// SetBounds changes the EMA band factors and re-derives the band from the
// current EMA.
func (a *Aggregator) SetBounds(ctx context.Context, caller common.Address, upper, lower uint64) error {
	return a.mutate(ctx, caller, "set_bounds", func(s *State) error {
		if err := validateBounds(upper, lower); err != nil {
			return err
		}
		s.Params.BaseUpperBound = upper
		s.Params.BaseLowerBound = lower
		return s.deriveBounds()
	}, nil)
}

// SetMinEMAUpdateDelay changes the minimum spacing between EMA updates.
func (a *Aggregator) SetMinEMAUpdateDelay(ctx context.Context, caller common.Address, delay time.Duration) error {
	return a.mutate(ctx, caller, "set_min_ema_update_delay", func(s *State) error {
		if err := validateEMADelay(delay); err != nil {
			return err
		}
		s.Params.MinEMAUpdateDelay = delay
		return nil
	}, nil)
}

// AddExecutor authorizes addr to call UpdatePrice. Adding an existing
// executor is a no-op.
func (a *Aggregator) AddExecutor(ctx context.Context, caller, addr common.Address) error {
	return a.mutate(ctx, caller, "add_executor", func(s *State) error {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: executor", ErrZeroAddress)
		}
		s.addExecutor(addr)
		return nil
	}, nil)
}

// RemoveExecutor revokes addr.
func (a *Aggregator) RemoveExecutor(ctx context.Context, caller, addr common.Address) error {
	return a.mutate(ctx, caller, "remove_executor", func(s *State) error {
		if addr == (common.Address{}) {
			return fmt.Errorf("%w: executor", ErrZeroAddress)
		}
		if !s.removeExecutor(addr) {
			return fmt.Errorf("%w: %s", ErrExecutorNotFound, addr.Hex())
		}
		return nil
	}, nil)
}

// TransferOwnership hands every admin right to newOwner in one step.
func (a *Aggregator) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return a.mutate(ctx, caller, "transfer_ownership", func(s *State) error {
		if newOwner == (common.Address{}) {
			return fmt.Errorf("%w: owner", ErrZeroAddress)
		}
		s.Owner = newOwner
		return nil
	}, nil)
}
