package evm

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tick bounds of concentrated-liquidity pools (log base sqrt(1.0001) of 2^-128 and 2^128).
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")

	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	q128       = new(big.Int).Lsh(big.NewInt(1), 128)
	q192       = new(big.Int).Lsh(big.NewInt(1), 192)
)

// tickRatios[i] = 2^128 / sqrt(1.0001)^(2^i), rounded as in the reference
// pool implementation. tickRatios[0] is only used for odd ticks.
var tickRatios = [20]*uint256.Int{
	uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 number, rounded up.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}
	if absTick > MaxTick {
		return nil, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}

	ratio := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(tickRatios[0])
	}
	for i := 1; i < len(tickRatios); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, tickRatios[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(new(uint256.Int).SetAllOne(), ratio)
	}

	// Q128.128 -> Q64.96, rounding up
	rem := new(uint256.Int).And(ratio, uint256.NewInt(0xffffffff))
	sqrtPrice := new(uint256.Int).Rsh(ratio, 32)
	if !rem.IsZero() {
		sqrtPrice.AddUint64(sqrtPrice, 1)
	}
	return sqrtPrice, nil
}

// QuoteAtTick returns how much quoteToken baseAmount of baseToken is worth at
// the given tick. Token order is derived from the addresses.
func QuoteAtTick(tick int32, baseAmount *big.Int, baseToken, quoteToken common.Address) (*big.Int, error) {
	if baseToken == quoteToken {
		return nil, fmt.Errorf("%w", ErrSameToken)
	}
	sqrtRatio, err := SqrtRatioAtTick(tick)
	if err != nil {
		return nil, err
	}
	sqrt := sqrtRatio.ToBig()
	baseIsToken0 := bytes.Compare(baseToken.Bytes(), quoteToken.Bytes()) < 0

	out := new(big.Int)
	if sqrt.Cmp(maxUint128) <= 0 {
		ratioX192 := new(big.Int).Mul(sqrt, sqrt)
		if baseIsToken0 {
			out.Mul(ratioX192, baseAmount).Quo(out, q192)
		} else {
			out.Mul(q192, baseAmount).Quo(out, ratioX192)
		}
		return out, nil
	}

	ratioX128 := new(big.Int).Mul(sqrt, sqrt)
	ratioX128.Rsh(ratioX128, 64)
	if baseIsToken0 {
		out.Mul(ratioX128, baseAmount).Quo(out, q128)
	} else {
		out.Mul(q128, baseAmount).Quo(out, ratioX128)
	}
	return out, nil
}

// MeanTick averages two tick cumulatives over period seconds, rounding toward
// negative infinity.
func MeanTick(older, newer *big.Int, period uint32) (int32, error) {
	if period == 0 {
		return 0, fmt.Errorf("%w", ErrInvalidTWAPPeriod)
	}
	delta := new(big.Int).Sub(newer, older)
	p := new(big.Int).SetUint64(uint64(period))

	mean, rem := new(big.Int).QuoRem(delta, p, new(big.Int))
	if delta.Sign() < 0 && rem.Sign() != 0 {
		mean.Sub(mean, big.NewInt(1))
	}
	if !mean.IsInt64() || mean.Int64() < MinTick || mean.Int64() > MaxTick {
		return 0, fmt.Errorf("%w: mean tick %s", ErrTickOutOfRange, mean.String())
	}
	return int32(mean.Int64()), nil // #nosec G115 -- bounded by MaxTick above
}
