package aggregator

import (
	"math/big"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
)

var basisPoints = big.NewInt(fixedpoint.BasisPoints)

// nextEMA returns (price*multiplier + ema*(10000-multiplier)) / 10000,
// truncated toward zero.
func nextEMA(price, ema *big.Int, multiplier uint64) *big.Int {
	m := new(big.Int).SetUint64(multiplier)
	weighted := new(big.Int).Mul(price, m)
	rest := new(big.Int).Sub(basisPoints, m)
	weighted.Add(weighted, rest.Mul(rest, ema))
	return weighted.Quo(weighted, basisPoints)
}

// emaGateOpen reports whether a reading at ts may feed the EMA.
func emaGateOpen(s State, ts uint64) bool {
	return ts > s.LastEMAUpdateTimestamp+s.Params.emaDelaySeconds()
}
