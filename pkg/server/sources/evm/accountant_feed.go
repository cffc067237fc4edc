package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// DefaultRateDecimals is the precision of the accountant exchange rate.
const DefaultRateDecimals = 6

// AccountantFeed converts an accountant exchange rate into 8-decimal round
// data. A paused accountant fails the read.
type AccountantFeed struct {
	*sources.BaseFeed
	accountant   Accountant
	address      common.Address
	rateDecimals uint8
}

var (
	_ sources.Feed               = (*AccountantFeed)(nil)
	_ sources.AccountantProvider = (*AccountantFeed)(nil)
)

// NewAccountantFeed wraps an Accountant.
func NewAccountantFeed(base *sources.BaseFeed, accountant Accountant, address common.Address, rateDecimals uint8) *AccountantFeed {
	return &AccountantFeed{
		BaseFeed:     base,
		accountant:   accountant,
		address:      address,
		rateDecimals: rateDecimals,
	}
}

// NewAccountantFeedFromConfig creates an accountant feed.
// Config keys: address (required), rate_decimals (default 6), client.
func NewAccountantFeedFromConfig(config map[string]interface{}) (sources.Feed, error) {
	client, err := sources.GetCallerFromConfig(config)
	if err != nil {
		return nil, err
	}
	address, err := sources.GetAddressFromConfig(config, "address")
	if err != nil {
		return nil, err
	}
	rateDecimals, err := sources.GetDecimalsFromConfig(config, "rate_decimals", DefaultRateDecimals)
	if err != nil {
		return nil, err
	}

	accountant, err := NewEVMAccountant(client, address)
	if err != nil {
		return nil, err
	}

	name := sources.GetNameFromConfig(config, "accountant")
	base := sources.NewBaseFeed(name, sources.SourceTypeAccountant, sources.GetLoggerFromConfig(config))
	return NewAccountantFeed(base, accountant, address, rateDecimals), nil
}

// Accountant returns the accountant contract address.
func (f *AccountantFeed) Accountant() common.Address {
	return f.address
}

// LatestRoundData reads the accountant state and rescales the rate.
func (f *AccountantFeed) LatestRoundData(ctx context.Context) (sources.RoundData, error) {
	state, err := f.accountant.AccountantState(ctx)
	if err != nil {
		return sources.RoundData{}, err
	}
	if state.IsPaused {
		return sources.RoundData{}, fmt.Errorf("%w: accountant %s", sources.ErrPaused, f.address.Hex())
	}

	answer := fixedpoint.Rescale(state.ExchangeRate, f.rateDecimals, fixedpoint.PriceDecimals)

	f.Logger().Debug("Read accountant rate",
		"rate", state.ExchangeRate.String(),
		"answer", fixedpoint.PriceString(answer),
		"updated_at", state.LastUpdateTimestamp)

	return sources.NewRoundData(answer, state.LastUpdateTimestamp), nil
}
