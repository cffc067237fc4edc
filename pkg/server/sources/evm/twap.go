package evm

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// DefaultTWAPPeriod is the averaging window used when none is configured.
const DefaultTWAPPeriod = 30 * time.Minute

// Pool ABI (only observe function).
const poolABIJSON = `[{
	"inputs": [{"internalType": "uint32[]", "name": "secondsAgos", "type": "uint32[]"}],
	"name": "observe",
	"outputs": [
		{"internalType": "int56[]", "name": "tickCumulatives", "type": "int56[]"},
		{"internalType": "uint160[]", "name": "secondsPerLiquidityCumulativeX128s", "type": "uint160[]"}
	],
	"stateMutability": "view",
	"type": "function"
}]`

// TWAPFeed derives a price from a pool's time-weighted average tick.
type TWAPFeed struct {
	*sources.BaseFeed
	client        sources.ContractCaller
	pool          common.Address
	baseToken     common.Address
	quoteToken    common.Address
	baseDecimals  uint8
	quoteDecimals uint8
	period        uint32
	poolABI       abi.ABI
}

// Ensure TWAPFeed implements Feed interface.
var _ sources.Feed = (*TWAPFeed)(nil)

// TWAPConfig holds the pool binding of a TWAP feed.
type TWAPConfig struct {
	Pool          common.Address
	BaseToken     common.Address
	QuoteToken    common.Address
	BaseDecimals  uint8
	QuoteDecimals uint8
	Period        time.Duration
}

// NewTWAPFeed creates a TWAP feed.
func NewTWAPFeed(base *sources.BaseFeed, client sources.ContractCaller, cfg TWAPConfig) (*TWAPFeed, error) {
	if client == nil {
		return nil, fmt.Errorf("%w", sources.ErrClientNotInitialized)
	}
	if cfg.Pool == (common.Address{}) {
		return nil, fmt.Errorf("%w: pool", sources.ErrAddressRequired)
	}
	if cfg.BaseToken == cfg.QuoteToken {
		return nil, fmt.Errorf("%w", ErrSameToken)
	}
	secs := cfg.Period / time.Second
	if secs <= 0 || secs > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTWAPPeriod, cfg.Period)
	}

	poolABI, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	return &TWAPFeed{
		BaseFeed:      base,
		client:        client,
		pool:          cfg.Pool,
		baseToken:     cfg.BaseToken,
		quoteToken:    cfg.QuoteToken,
		baseDecimals:  cfg.BaseDecimals,
		quoteDecimals: cfg.QuoteDecimals,
		period:        uint32(secs),
		poolABI:       poolABI,
	}, nil
}

// NewTWAPFeedFromConfig creates a TWAP feed.
// Config keys: pool, base_token, quote_token (required), base_decimals
// (default 18), quote_decimals (default 6), period (default 30m), client.
func NewTWAPFeedFromConfig(config map[string]interface{}) (sources.Feed, error) {
	client, err := sources.GetCallerFromConfig(config)
	if err != nil {
		return nil, err
	}

	var cfg TWAPConfig
	if cfg.Pool, err = sources.GetAddressFromConfig(config, "pool"); err != nil {
		return nil, err
	}
	if cfg.BaseToken, err = sources.GetAddressFromConfig(config, "base_token"); err != nil {
		return nil, err
	}
	if cfg.QuoteToken, err = sources.GetAddressFromConfig(config, "quote_token"); err != nil {
		return nil, err
	}
	if cfg.BaseDecimals, err = sources.GetDecimalsFromConfig(config, "base_decimals", 18); err != nil {
		return nil, err
	}
	if cfg.QuoteDecimals, err = sources.GetDecimalsFromConfig(config, "quote_decimals", 6); err != nil {
		return nil, err
	}
	if cfg.Period, err = sources.GetDurationFromConfig(config, "period", DefaultTWAPPeriod); err != nil {
		return nil, err
	}

	name := sources.GetNameFromConfig(config, "twap")
	base := sources.NewBaseFeed(name, sources.SourceTypeTWAP, sources.GetLoggerFromConfig(config))
	return NewTWAPFeed(base, client, cfg)
}

// LatestRoundData computes the TWAP price of one base token in quote tokens,
// stamped with the latest block time.
func (s *TWAPFeed) LatestRoundData(ctx context.Context) (sources.RoundData, error) {
	cumulatives, err := s.observe(ctx)
	if err != nil {
		return sources.RoundData{}, err
	}

	tick, err := MeanTick(cumulatives[0], cumulatives[1], s.period)
	if err != nil {
		return sources.RoundData{}, err
	}

	quote, err := QuoteAtTick(tick, fixedpoint.Pow10(uint(s.baseDecimals)), s.baseToken, s.quoteToken)
	if err != nil {
		return sources.RoundData{}, err
	}
	answer := fixedpoint.Rescale(quote, s.quoteDecimals, fixedpoint.PriceDecimals)

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return sources.RoundData{}, fmt.Errorf("failed to fetch latest header: %w", err)
	}

	s.Logger().Debug("Computed pool TWAP",
		"pool", s.pool.Hex(),
		"period", s.period,
		"mean_tick", tick,
		"answer", fixedpoint.PriceString(answer))

	return sources.NewRoundData(answer, header.Time), nil
}

// observe calls observe([period, 0]) and returns the two tick cumulatives.
func (s *TWAPFeed) observe(ctx context.Context) ([]*big.Int, error) {
	data, err := s.poolABI.Pack("observe", []uint32{s.period, 0})
	if err != nil {
		return nil, fmt.Errorf("failed to pack observe call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.pool,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call observe: %w", err)
	}

	out, err := s.poolABI.Unpack("observe", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack observe result: %w", err)
	}
	if len(out) != 2 {
		return nil, fmt.Errorf("%w: %d outputs", ErrInvalidObservation, len(out))
	}
	ticks, ok := out[0].([]*big.Int)
	if !ok || len(ticks) != 2 {
		return nil, fmt.Errorf("%w: tick cumulatives %T", ErrInvalidObservation, out[0])
	}
	return ticks, nil
}
