// Package aggregator implements the primary/fallback price policy: it keeps an
// EMA reference price, decides each cycle which source to trust and publishes
// the last known good answer.
package aggregator

import "errors"

var (
	// ErrNotOwner indicates that an admin operation was called by someone other than the owner.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrNotExecutor indicates that UpdatePrice was called by an address outside the executor set.
	ErrNotExecutor = errors.New("caller is not an executor")
	// ErrReentrantCall indicates that UpdatePrice was entered while another update was in flight.
	ErrReentrantCall = errors.New("reentrant update")
	// ErrPrimaryUnavailable indicates that the primary source read failed and the cycle was aborted.
	ErrPrimaryUnavailable = errors.New("primary source unavailable")
	// ErrSourceChanged indicates that a source was replaced while its reading was in flight.
	ErrSourceChanged = errors.New("price source replaced during update")
	// ErrNonPositivePrice indicates that a source reported a zero or negative price.
	ErrNonPositivePrice = errors.New("non-positive price")
	// ErrPrecisionUnderflow indicates that 36 + loan - collateral decimals is below the answer precision.
	ErrPrecisionUnderflow = errors.New("price precision underflow")
	// ErrPriceOverflow indicates that the scaled price does not fit in 256 bits.
	ErrPriceOverflow = errors.New("price overflows uint256")
	// ErrNegativeAnswer indicates that the stored answer is negative.
	ErrNegativeAnswer = errors.New("negative answer")
	// ErrZeroAddress indicates that a zero address was supplied.
	ErrZeroAddress = errors.New("zero address")
	// ErrNilFeed indicates that a nil source was supplied.
	ErrNilFeed = errors.New("nil price source")
	// ErrInvalidMultiplier indicates a multiplier outside (0, 10000].
	ErrInvalidMultiplier = errors.New("multiplier must be in (0, 10000]")
	// ErrInvalidBounds indicates bounds violating lower < 10000 < upper.
	ErrInvalidBounds = errors.New("bounds must satisfy lower < 10000 < upper")
	// ErrInvalidMaxPriceAge indicates a max price age below one second.
	ErrInvalidMaxPriceAge = errors.New("max price age must be at least 1s")
	// ErrInvalidEMADelay indicates a negative EMA update delay.
	ErrInvalidEMADelay = errors.New("min EMA update delay must not be negative")
	// ErrInvalidDecimals indicates token decimals above 77.
	ErrInvalidDecimals = errors.New("token decimals must be at most 77")
	// ErrSourceTestReadFailed indicates that a replacement source failed its test read.
	ErrSourceTestReadFailed = errors.New("source test read failed")
	// ErrExecutorNotFound indicates removal of an address that is not an executor.
	ErrExecutorNotFound = errors.New("executor not found")
	// ErrStateNotFound is returned by a StateStore that holds no state yet.
	ErrStateNotFound = errors.New("aggregator state not found")
)

// IsAuthorizationError reports whether err is a caller authorization failure.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotOwner) || errors.Is(err, ErrNotExecutor)
}

// IsConfigurationError reports whether err is a rejected parameter or address.
func IsConfigurationError(err error) bool {
	for _, target := range []error{
		ErrZeroAddress, ErrNilFeed, ErrInvalidMultiplier, ErrInvalidBounds,
		ErrInvalidMaxPriceAge, ErrInvalidEMADelay, ErrInvalidDecimals,
		ErrExecutorNotFound, ErrNonPositivePrice, ErrSourceTestReadFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
