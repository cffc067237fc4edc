package evm

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

var poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")

func twapConfig(caller *fakeCaller) map[string]interface{} {
	return map[string]interface{}{
		"pool":           poolAddr.Hex(),
		"base_token":     lowToken.Hex(),
		"quote_token":    highToken.Hex(),
		"base_decimals":  6,
		"quote_decimals": 6,
		"period":         "30m",
		"client":         caller,
	}
}

func TestTWAPFeed_LatestRoundData(t *testing.T) {
	caller := newFakeCaller()
	caller.blockTime = 1_700_000_123
	caller.respond(t, poolABIJSON, "observe",
		[]*big.Int{big.NewInt(0), big.NewInt(18_000)},
		[]*big.Int{big.NewInt(0), big.NewInt(0)},
	)

	feed, err := sources.Create(string(sources.SourceTypeTWAP), "pool_twap", twapConfig(caller))
	require.NoError(t, err)

	round, err := feed.LatestRoundData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100_100_000), round.Answer.Int64())
	assert.Equal(t, uint64(1_700_000_123), round.UpdatedAt)
}

func TestTWAPFeed_ObserveFailure(t *testing.T) {
	caller := newFakeCaller()

	feed, err := NewTWAPFeedFromConfig(twapConfig(caller))
	require.NoError(t, err)

	_, err = feed.LatestRoundData(context.Background())
	assert.ErrorContains(t, err, "observe")
}

func TestTWAPFeedFromConfig_Defaults(t *testing.T) {
	caller := newFakeCaller()
	cfg := twapConfig(caller)
	delete(cfg, "period")
	delete(cfg, "base_decimals")
	delete(cfg, "quote_decimals")

	feed, err := NewTWAPFeedFromConfig(cfg)
	require.NoError(t, err)

	twap := feed.(*TWAPFeed)
	assert.Equal(t, uint32(DefaultTWAPPeriod/time.Second), twap.period)
	assert.Equal(t, uint8(18), twap.baseDecimals)
	assert.Equal(t, uint8(6), twap.quoteDecimals)
}

func TestTWAPFeedFromConfig_Validation(t *testing.T) {
	caller := newFakeCaller()

	cfg := twapConfig(caller)
	cfg["period"] = "0s"
	_, err := NewTWAPFeedFromConfig(cfg)
	assert.ErrorIs(t, err, ErrInvalidTWAPPeriod)

	cfg = twapConfig(caller)
	cfg["quote_token"] = lowToken.Hex()
	_, err = NewTWAPFeedFromConfig(cfg)
	assert.ErrorIs(t, err, ErrSameToken)

	cfg = twapConfig(caller)
	delete(cfg, "pool")
	_, err = NewTWAPFeedFromConfig(cfg)
	assert.ErrorIs(t, err, sources.ErrAddressRequired)
}
