// Package store persists aggregator state.
package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// recordVersion is bumped when the layout of stateRecord changes.
const recordVersion = 1

// stateRecord is the on-disk form of aggregator.State. Integers are decimal
// strings and durations are seconds.
type stateRecord struct {
	Version                   int              `json:"version"`
	LatestAnswer              string           `json:"latestAnswer"`
	LatestEMA                 string           `json:"latestEma"`
	EMAUpperBound             string           `json:"emaUpperBound"`
	EMALowerBound             string           `json:"emaLowerBound"`
	LastPrimary               readingRecord    `json:"lastPrimary"`
	LastFallback              readingRecord    `json:"lastFallback"`
	LastEMAUpdateTimestamp    uint64           `json:"lastEmaUpdateTimestamp"`
	LastAnswerUpdateTimestamp uint64           `json:"lastAnswerUpdateTimestamp"`
	Params                    paramsRecord     `json:"params"`
	Owner                     common.Address   `json:"owner"`
	Executors                 []common.Address `json:"executors"`
	PrimarySource             string           `json:"primarySource"`
	FallbackSource            string           `json:"fallbackSource"`
	SavedAt                   time.Time        `json:"savedAt"`
}

type readingRecord struct {
	Price     string `json:"price,omitempty"`
	Timestamp uint64 `json:"timestamp"`
}

type paramsRecord struct {
	MaxPriceAgeSeconds       int64  `json:"maxPriceAge"`
	MinEMAUpdateDelaySeconds int64  `json:"minEmaUpdateDelay"`
	Multiplier               uint64 `json:"multiplier"`
	BaseUpperBound           uint64 `json:"baseUpperBound"`
	BaseLowerBound           uint64 `json:"baseLowerBound"`
	LoanTokenDecimals        uint8  `json:"loanTokenDecimals"`
	CollateralTokenDecimals  uint8  `json:"collateralTokenDecimals"`
}

func toRecord(s aggregator.State, now time.Time) stateRecord {
	return stateRecord{
		Version:                   recordVersion,
		LatestAnswer:              bigString(s.LatestAnswer),
		LatestEMA:                 bigString(s.LatestEMA),
		EMAUpperBound:             uintString(s.EMAUpperBound),
		EMALowerBound:             uintString(s.EMALowerBound),
		LastPrimary:               toReadingRecord(s.LastPrimary),
		LastFallback:              toReadingRecord(s.LastFallback),
		LastEMAUpdateTimestamp:    s.LastEMAUpdateTimestamp,
		LastAnswerUpdateTimestamp: s.LastAnswerUpdateTimestamp,
		Params: paramsRecord{
			MaxPriceAgeSeconds:       int64(s.Params.MaxPriceAge / time.Second),
			MinEMAUpdateDelaySeconds: int64(s.Params.MinEMAUpdateDelay / time.Second),
			Multiplier:               s.Params.Multiplier,
			BaseUpperBound:           s.Params.BaseUpperBound,
			BaseLowerBound:           s.Params.BaseLowerBound,
			LoanTokenDecimals:        s.Params.LoanTokenDecimals,
			CollateralTokenDecimals:  s.Params.CollateralTokenDecimals,
		},
		Owner:          s.Owner,
		Executors:      append([]common.Address(nil), s.Executors...),
		PrimarySource:  s.PrimarySource,
		FallbackSource: s.FallbackSource,
		SavedAt:        now.UTC(),
	}
}

func (r stateRecord) toState() (aggregator.State, error) {
	if r.Version != recordVersion {
		return aggregator.State{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, r.Version)
	}
	var (
		s   aggregator.State
		err error
	)
	if s.LatestAnswer, err = parseBig(r.LatestAnswer); err != nil {
		return aggregator.State{}, fmt.Errorf("latestAnswer: %w", err)
	}
	if s.LatestEMA, err = parseBig(r.LatestEMA); err != nil {
		return aggregator.State{}, fmt.Errorf("latestEma: %w", err)
	}
	if s.EMAUpperBound, err = parseUint(r.EMAUpperBound); err != nil {
		return aggregator.State{}, fmt.Errorf("emaUpperBound: %w", err)
	}
	if s.EMALowerBound, err = parseUint(r.EMALowerBound); err != nil {
		return aggregator.State{}, fmt.Errorf("emaLowerBound: %w", err)
	}
	if s.LastPrimary, err = r.LastPrimary.toReading(); err != nil {
		return aggregator.State{}, fmt.Errorf("lastPrimary: %w", err)
	}
	if s.LastFallback, err = r.LastFallback.toReading(); err != nil {
		return aggregator.State{}, fmt.Errorf("lastFallback: %w", err)
	}
	s.LastEMAUpdateTimestamp = r.LastEMAUpdateTimestamp
	s.LastAnswerUpdateTimestamp = r.LastAnswerUpdateTimestamp
	s.Params = aggregator.Params{
		MaxPriceAge:             time.Duration(r.Params.MaxPriceAgeSeconds) * time.Second,
		MinEMAUpdateDelay:       time.Duration(r.Params.MinEMAUpdateDelaySeconds) * time.Second,
		Multiplier:              r.Params.Multiplier,
		BaseUpperBound:          r.Params.BaseUpperBound,
		BaseLowerBound:          r.Params.BaseLowerBound,
		LoanTokenDecimals:       r.Params.LoanTokenDecimals,
		CollateralTokenDecimals: r.Params.CollateralTokenDecimals,
	}
	s.Owner = r.Owner
	s.Executors = append([]common.Address(nil), r.Executors...)
	s.PrimarySource = r.PrimarySource
	s.FallbackSource = r.FallbackSource
	return s, nil
}

func toReadingRecord(r sources.PriceReading) readingRecord {
	return readingRecord{Price: bigString(r.Price), Timestamp: r.Timestamp}
}

func (r readingRecord) toReading() (sources.PriceReading, error) {
	if r.Price == "" {
		return sources.PriceReading{Timestamp: r.Timestamp}, nil
	}
	p, err := parseBig(r.Price)
	if err != nil {
		return sources.PriceReading{}, err
	}
	return sources.PriceReading{Price: p, Timestamp: r.Timestamp}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func uintString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCorruptRecord, s)
	}
	return v, nil
}

func parseUint(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCorruptRecord, s, err)
	}
	return v, nil
}
