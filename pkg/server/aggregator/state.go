package aggregator

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// State is the persisted aggregator state. Values returned by the aggregator
// are deep copies.
type State struct {
	LatestAnswer  *big.Int
	LatestEMA     *big.Int
	EMAUpperBound *uint256.Int
	EMALowerBound *uint256.Int

	// Last successful reading of each source, kept across failed reads.
	LastPrimary  sources.PriceReading
	LastFallback sources.PriceReading

	LastEMAUpdateTimestamp    uint64
	LastAnswerUpdateTimestamp uint64

	Params         Params
	Owner          common.Address
	Executors      []common.Address
	PrimarySource  string
	FallbackSource string
}

// StateStore persists State between restarts.
type StateStore interface {
	// Load returns the stored state or ErrStateNotFound.
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.LatestAnswer = cloneBig(s.LatestAnswer)
	out.LatestEMA = cloneBig(s.LatestEMA)
	if s.EMAUpperBound != nil {
		out.EMAUpperBound = s.EMAUpperBound.Clone()
	}
	if s.EMALowerBound != nil {
		out.EMALowerBound = s.EMALowerBound.Clone()
	}
	out.LastPrimary = s.LastPrimary.Clone()
	out.LastFallback = s.LastFallback.Clone()
	out.Executors = slices.Clone(s.Executors)
	return out
}

// IsExecutor reports whether addr is in the executor set.
func (s State) IsExecutor(addr common.Address) bool {
	return slices.Contains(s.Executors, addr)
}

func (s *State) addExecutor(addr common.Address) {
	if s.IsExecutor(addr) {
		return
	}
	s.Executors = append(s.Executors, addr)
	sortAddresses(s.Executors)
}

func (s *State) removeExecutor(addr common.Address) bool {
	i := slices.Index(s.Executors, addr)
	if i < 0 {
		return false
	}
	s.Executors = slices.Delete(s.Executors, i, i+1)
	return true
}

// deriveBounds recomputes the EMA band from LatestEMA.
func (s *State) deriveBounds() error {
	if s.LatestEMA == nil || s.LatestEMA.Sign() < 0 {
		return fmt.Errorf("%w: ema %v", ErrNonPositivePrice, s.LatestEMA)
	}
	ema, overflow := uint256.FromBig(s.LatestEMA)
	if overflow {
		return fmt.Errorf("%w: ema", ErrPriceOverflow)
	}
	upper, overflow := fixedpoint.MulBps(ema, s.Params.BaseUpperBound)
	if overflow {
		return fmt.Errorf("%w: upper bound", ErrPriceOverflow)
	}
	lower, overflow := fixedpoint.MulBps(ema, s.Params.BaseLowerBound)
	if overflow {
		return fmt.Errorf("%w: lower bound", ErrPriceOverflow)
	}
	s.EMAUpperBound = upper
	s.EMALowerBound = lower
	return nil
}

// outOfRange reports whether price lies outside the current EMA band.
func (s State) outOfRange(price *big.Int) bool {
	return price.Cmp(s.EMAUpperBound.ToBig()) > 0 || price.Cmp(s.EMALowerBound.ToBig()) < 0
}

// isFresh reports whether r is a usable reading no older than maxAge at now.
// Readings from the future count as fresh.
func isFresh(r sources.PriceReading, now, maxAge uint64) bool {
	if !r.IsPositive() {
		return false
	}
	return r.Timestamp >= now || now-r.Timestamp <= maxAge
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func sortAddresses(addrs []common.Address) {
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
}
