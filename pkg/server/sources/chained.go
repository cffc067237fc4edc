package sources

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
)

func init() {
	Register(SourceTypeChained, NewChainedFeedFromConfig)
}

// ChainedFeed multiplies two feeds, e.g. a wrapped-asset rate times the
// underlying asset's USD price. The combined timestamp is the older of the two.
type ChainedFeed struct {
	*BaseFeed
	first  Feed
	second Feed
}

// Ensure ChainedFeed implements Feed interface.
var _ Feed = (*ChainedFeed)(nil)

// NewChainedFeed combines two 8-decimal feeds.
func NewChainedFeed(base *BaseFeed, first, second Feed) (*ChainedFeed, error) {
	if first == nil || second == nil {
		return nil, fmt.Errorf("%w", ErrChainedFeedsRequired)
	}
	return &ChainedFeed{BaseFeed: base, first: first, second: second}, nil
}

// NewChainedFeedFromConfig builds a chained feed from two nested feed configs.
func NewChainedFeedFromConfig(config map[string]interface{}) (Feed, error) {
	inner, err := ParseInnerFeeds(config)
	if err != nil {
		return nil, err
	}
	if len(inner) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrChainedFeedsRequired, len(inner))
	}

	name := GetNameFromConfig(config, "chained")
	feeds := make([]Feed, 0, 2)
	for i, fc := range inner {
		cfg := make(map[string]interface{}, len(fc.Config)+2)
		for k, v := range fc.Config {
			cfg[k] = v
		}
		// inner feeds share the outer client and logger
		for _, key := range []string{"logger", "client"} {
			if _, ok := cfg[key]; !ok {
				if v, ok := config[key]; ok {
					cfg[key] = v
				}
			}
		}
		innerName := fc.Name
		if innerName == "" {
			innerName = fmt.Sprintf("%s[%d]", name, i)
		}
		feed, err := Create(fc.Type, innerName, cfg)
		if err != nil {
			return nil, fmt.Errorf("chained feed %s: inner feed %d: %w", name, i, err)
		}
		feeds = append(feeds, feed)
	}

	base := NewBaseFeed(name, SourceTypeChained, GetLoggerFromConfig(config))
	return NewChainedFeed(base, feeds[0], feeds[1])
}

// LatestRoundData reads both feeds and combines them.
func (c *ChainedFeed) LatestRoundData(ctx context.Context) (RoundData, error) {
	a, err := c.first.LatestRoundData(ctx)
	if err != nil {
		return RoundData{}, fmt.Errorf("%s: %w", c.first.Name(), err)
	}
	b, err := c.second.LatestRoundData(ctx)
	if err != nil {
		return RoundData{}, fmt.Errorf("%s: %w", c.second.Name(), err)
	}
	if a.Answer == nil || b.Answer == nil {
		return RoundData{}, fmt.Errorf("%w: missing answer", ErrInvalidResponse)
	}

	combined := new(big.Int).Mul(a.Answer, b.Answer)
	combined.Quo(combined, fixedpoint.Pow10(fixedpoint.PriceDecimals))

	ts := a.UpdatedAt
	if b.UpdatedAt < ts {
		ts = b.UpdatedAt
	}

	return NewRoundData(combined, ts), nil
}

// Accountant exposes the accountant of the first feed when it has one.
func (c *ChainedFeed) Accountant() common.Address {
	if p, ok := c.first.(AccountantProvider); ok {
		return p.Accountant()
	}
	return common.Address{}
}
