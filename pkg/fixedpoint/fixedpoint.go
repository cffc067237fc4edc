// Package fixedpoint holds the integer fixed-point helpers used by price math.
//
// Policy arithmetic is done on integers only. Decimal values exist for display.
package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// PriceDecimals is the precision of every price reading and round answer.
	PriceDecimals = 8
	// BasisPoints is the scale of the EMA multiplier and bound factors.
	BasisPoints = 10000
)

var ten = big.NewInt(10)

// Pow10 returns 10^n.
func Pow10(n uint) *big.Int {
	return new(big.Int).Exp(ten, new(big.Int).SetUint64(uint64(n)), nil)
}

// Rescale converts v from one decimal precision to another. Scaling down
// truncates toward zero.
func Rescale(v *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(v)
	case to > from:
		return new(big.Int).Mul(v, Pow10(uint(to-from)))
	default:
		return new(big.Int).Quo(v, Pow10(uint(from-to)))
	}
}

// MulBps returns v * bps / BasisPoints on unsigned 256-bit integers. The
// boolean reports overflow of the intermediate product.
func MulBps(v *uint256.Int, bps uint64) (*uint256.Int, bool) {
	out, overflow := new(uint256.Int).MulOverflow(v, uint256.NewInt(bps))
	if overflow {
		return nil, true
	}
	return out.Div(out, uint256.NewInt(BasisPoints)), false
}

// ToDecimal renders a fixed-point integer as a decimal.
func ToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// PriceString renders an 8-decimal price for logs and API responses.
func PriceString(v *big.Int) string {
	return ToDecimal(v, PriceDecimals).StringFixed(PriceDecimals)
}
