package sources

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SourceType identifies the shape of a price feed
type SourceType string

const (
	SourceTypeAccountant SourceType = "accountant"
	SourceTypeChained    SourceType = "chained"
	SourceTypeTWAP       SourceType = "twap"
)

// PriceReading is a price with 8 decimals and the unix time it was produced.
type PriceReading struct {
	Price     *big.Int `json:"price"`
	Timestamp uint64   `json:"timestamp"`
}

// IsPositive reports whether the reading carries a usable price.
func (r PriceReading) IsPositive() bool {
	return r.Price != nil && r.Price.Sign() > 0
}

// Clone returns a deep copy.
func (r PriceReading) Clone() PriceReading {
	out := PriceReading{Timestamp: r.Timestamp}
	if r.Price != nil {
		out.Price = new(big.Int).Set(r.Price)
	}
	return out
}

// RoundData is the standard five-field price feed answer.
type RoundData struct {
	RoundID         uint64   `json:"round_id"`
	Answer          *big.Int `json:"answer"`
	StartedAt       uint64   `json:"started_at"`
	UpdatedAt       uint64   `json:"updated_at"`
	AnsweredInRound uint64   `json:"answered_in_round"`
}

// Reading extracts the price reading reported by a round.
func (r RoundData) Reading() PriceReading {
	return PriceReading{Price: r.Answer, Timestamp: r.UpdatedAt}.Clone()
}

// NewRoundData builds round data for a single, non-historical answer.
func NewRoundData(answer *big.Int, timestamp uint64) RoundData {
	return RoundData{
		Answer:    new(big.Int).Set(answer),
		StartedAt: timestamp,
		UpdatedAt: timestamp,
	}
}

// Feed is a pull-based price source producing 8-decimal round data.
type Feed interface {
	// Name returns the unique name of this feed
	Name() string

	// Type returns the shape of this feed
	Type() SourceType

	// LatestRoundData reads the current answer. It fails when the upstream
	// source is unavailable or paused.
	LatestRoundData(ctx context.Context) (RoundData, error)
}

// AccountantProvider is implemented by feeds backed by an Accountant contract.
type AccountantProvider interface {
	Accountant() common.Address
}

// ContractCaller is the subset of the Ethereum RPC used by EVM feeds.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// SourceFactory is a function that creates a new Feed instance
type SourceFactory func(config map[string]interface{}) (Feed, error)
