package aggregator

import (
	"fmt"
	"time"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
)

// Params holds the owner-controlled policy configuration.
type Params struct {
	MaxPriceAge       time.Duration
	MinEMAUpdateDelay time.Duration
	// Multiplier is the EMA smoothing weight in basis points.
	Multiplier uint64
	// BaseUpperBound and BaseLowerBound scale the EMA into the acceptance band, in basis points.
	BaseUpperBound          uint64
	BaseLowerBound          uint64
	LoanTokenDecimals       uint8
	CollateralTokenDecimals uint8
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MaxPriceAge:             48 * time.Hour,
		MinEMAUpdateDelay:       time.Hour,
		Multiplier:              2000,
		BaseUpperBound:          10500,
		BaseLowerBound:          9500,
		LoanTokenDecimals:       6,
		CollateralTokenDecimals: 18,
	}
}

// Validate checks every parameter against the admin setter rules.
func (p Params) Validate() error {
	if err := validateMaxPriceAge(p.MaxPriceAge); err != nil {
		return err
	}
	if err := validateEMADelay(p.MinEMAUpdateDelay); err != nil {
		return err
	}
	if err := validateMultiplier(p.Multiplier); err != nil {
		return err
	}
	if err := validateBounds(p.BaseUpperBound, p.BaseLowerBound); err != nil {
		return err
	}
	if p.LoanTokenDecimals > 77 || p.CollateralTokenDecimals > 77 {
		return fmt.Errorf("%w: loan=%d collateral=%d", ErrInvalidDecimals, p.LoanTokenDecimals, p.CollateralTokenDecimals)
	}
	return nil
}

func (p Params) maxAgeSeconds() uint64 {
	return uint64(p.MaxPriceAge / time.Second)
}

func (p Params) emaDelaySeconds() uint64 {
	return uint64(p.MinEMAUpdateDelay / time.Second)
}

func validateMaxPriceAge(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("%w: %s", ErrInvalidMaxPriceAge, d)
	}
	return nil
}

func validateEMADelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEMADelay, d)
	}
	return nil
}

func validateMultiplier(m uint64) error {
	if m == 0 || m > fixedpoint.BasisPoints {
		return fmt.Errorf("%w: %d", ErrInvalidMultiplier, m)
	}
	return nil
}

func validateBounds(upper, lower uint64) error {
	if upper <= fixedpoint.BasisPoints || lower >= fixedpoint.BasisPoints || lower >= upper {
		return fmt.Errorf("%w: upper=%d lower=%d", ErrInvalidBounds, upper, lower)
	}
	return nil
}
