package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/logging"
	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// Config is the initial configuration used when no stored state exists.
type Config struct {
	Params    Params
	Owner     common.Address
	Executors []common.Address
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock sets the time source used for freshness checks.
func WithClock(clock Clock) Option {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithStore persists every committed state change to store and restores
// from it on construction.
func WithStore(store StateStore) Option {
	return func(a *Aggregator) {
		a.store = store
	}
}

// Aggregator combines a primary and a fallback feed into one answer guarded
// by an exponential moving average.
type Aggregator struct {
	mu       sync.RWMutex
	state    State
	primary  sources.Feed
	fallback sources.Feed

	// updating is held for the whole of UpdatePrice, source reads included.
	updating atomic.Bool

	events eventHub
	logger *logging.Logger
	clock  Clock
	store  StateStore
}

// New builds an aggregator. If the store holds state it is restored;
// otherwise the state is seeded from one successful primary read and a best
// effort fallback read.
func New(ctx context.Context, cfg Config, primary, fallback sources.Feed, opts ...Option) (*Aggregator, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("%w", ErrNilFeed)
	}

	a := &Aggregator{
		primary:  primary,
		fallback: fallback,
		logger:   logging.NewNoopLogger(),
		clock:    ClockFunc(time.Now),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.events.logger = a.logger

	if a.store != nil {
		restored, err := a.store.Load(ctx)
		switch {
		case err == nil:
			if err := a.restore(restored); err != nil {
				return nil, err
			}
			return a, nil
		case !errors.Is(err, ErrStateNotFound):
			return nil, fmt.Errorf("failed to load aggregator state: %w", err)
		}
	}

	if err := a.seed(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Aggregator) restore(s State) error {
	if err := s.Params.Validate(); err != nil {
		return fmt.Errorf("stored params: %w", err)
	}
	if s.LatestAnswer == nil || s.LatestEMA == nil {
		return errors.New("stored aggregator state has no answer")
	}
	if s.PrimarySource != a.primary.Name() || s.FallbackSource != a.fallback.Name() {
		a.logger.Warn("Configured sources differ from stored state, using configured sources",
			"stored_primary", s.PrimarySource,
			"stored_fallback", s.FallbackSource,
			"primary", a.primary.Name(),
			"fallback", a.fallback.Name())
		s.PrimarySource = a.primary.Name()
		s.FallbackSource = a.fallback.Name()
	}
	if err := s.deriveBounds(); err != nil {
		return err
	}
	a.state = s
	a.logger.Info("Restored aggregator state",
		"answer", fixedpoint.PriceString(s.LatestAnswer),
		"ema", fixedpoint.PriceString(s.LatestEMA),
		"answer_updated_at", s.LastAnswerUpdateTimestamp)
	a.recordState(s)
	return nil
}

func (a *Aggregator) seed(ctx context.Context, cfg Config) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	if cfg.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner", ErrZeroAddress)
	}

	s := State{
		Params:         cfg.Params,
		Owner:          cfg.Owner,
		PrimarySource:  a.primary.Name(),
		FallbackSource: a.fallback.Name(),
	}
	for _, e := range cfg.Executors {
		if e == (common.Address{}) {
			return fmt.Errorf("%w: executor", ErrZeroAddress)
		}
		s.addExecutor(e)
	}

	p, err := readFeed(ctx, a.primary)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrimaryUnavailable, err)
	}
	s.LastPrimary = p
	s.LatestAnswer = cloneBig(p.Price)
	s.LatestEMA = cloneBig(p.Price)
	s.LastEMAUpdateTimestamp = p.Timestamp
	s.LastAnswerUpdateTimestamp = p.Timestamp
	if err := s.deriveBounds(); err != nil {
		return err
	}

	if f, err := readFeed(ctx, a.fallback); err == nil {
		s.LastFallback = f
	} else {
		a.logger.Warn("Initial fallback read failed", "source", a.fallback.Name(), "error", err)
	}

	if err := a.persist(ctx, s); err != nil {
		return err
	}
	a.state = s
	a.logger.Info("Seeded aggregator state",
		"primary", s.PrimarySource,
		"fallback", s.FallbackSource,
		"answer", fixedpoint.PriceString(s.LatestAnswer))
	a.recordState(s)
	return nil
}

// UpdatePrice runs one update cycle on behalf of caller, which must be an
// executor. It returns the published event.
func (a *Aggregator) UpdatePrice(ctx context.Context, caller common.Address) (Event, error) {
	a.mu.RLock()
	authorized := a.state.IsExecutor(caller)
	a.mu.RUnlock()
	if !authorized {
		return Event{}, fmt.Errorf("%w: %s", ErrNotExecutor, caller.Hex())
	}

	if !a.updating.CompareAndSwap(false, true) {
		return Event{}, fmt.Errorf("%w", ErrReentrantCall)
	}
	defer a.updating.Store(false)

	start := time.Now()

	// executors may have changed while the flag was being taken
	a.mu.RLock()
	authorized = a.state.IsExecutor(caller)
	primary, fallback := a.primary, a.fallback
	a.mu.RUnlock()
	if !authorized {
		return Event{}, fmt.Errorf("%w: %s", ErrNotExecutor, caller.Hex())
	}

	p, primaryErr := readFeed(ctx, primary)
	f, fallbackErr := readFeed(ctx, fallback)

	if primaryErr != nil {
		ev := a.primaryFailureEvent(caller, primary, fallback, fallbackErr, primaryErr)
		a.logger.Warn("Primary read failed, update aborted",
			"source", primary.Name(),
			"error", primaryErr)
		metrics.RecordSourceHealth(primary.Name(), "primary", false)
		metrics.RecordUpdate(string(ev.Outcome), time.Since(start))
		a.events.publish(ev)
		return ev, fmt.Errorf("%w: %w", ErrPrimaryUnavailable, primaryErr)
	}
	if fallbackErr != nil {
		a.logger.Warn("Fallback read failed, using cached reading",
			"source", fallback.Name(),
			"error", fallbackErr)
	}

	a.mu.Lock()
	if !a.state.IsExecutor(caller) {
		a.mu.Unlock()
		return Event{}, fmt.Errorf("%w: %s", ErrNotExecutor, caller.Hex())
	}
	if a.primary != primary || a.fallback != fallback {
		a.mu.Unlock()
		return Event{}, fmt.Errorf("%w", ErrSourceChanged)
	}

	next := a.state.Clone()
	var fresh *sources.PriceReading
	if fallbackErr == nil {
		fresh = &f
	}
	ev, err := decide(&next, p, fresh, a.now())
	if err != nil {
		a.mu.Unlock()
		return Event{}, err
	}
	if err := a.persist(ctx, next); err != nil {
		a.mu.Unlock()
		return Event{}, err
	}
	a.state = next
	a.mu.Unlock()

	ev.Caller = caller
	ev.Primary.Name = primary.Name()
	ev.Fallback.Name = fallback.Name()

	a.logger.Info("Price update",
		"outcome", string(ev.Outcome),
		"answer", fixedpoint.PriceString(ev.Answer),
		"answer_updated", ev.AnswerUpdated,
		"ema", fixedpoint.PriceString(ev.EMA),
		"ema_updated", ev.EMAUpdated,
		"primary_price", fixedpoint.PriceString(p.Price),
		"primary_fresh", ev.Primary.Fresh,
		"fallback_fresh", ev.Fallback.Fresh)

	metrics.RecordSourceHealth(primary.Name(), "primary", true)
	metrics.RecordSourceHealth(fallback.Name(), "fallback", fallbackErr == nil)
	metrics.RecordSourceReading(primary.Name(), p.Timestamp)
	if fallbackErr == nil {
		metrics.RecordSourceReading(fallback.Name(), f.Timestamp)
	}
	metrics.RecordUpdate(string(ev.Outcome), time.Since(start))
	a.recordState(next)
	a.events.publish(ev)

	return ev, nil
}

// decide applies one cycle of the price policy to s. primary is the fresh
// primary reading; fallback is nil when the fallback read failed.
func decide(s *State, primary sources.PriceReading, fallback *sources.PriceReading, now uint64) (Event, error) {
	s.LastPrimary = primary.Clone()
	if fallback != nil {
		s.LastFallback = fallback.Clone()
	}
	fb := s.LastFallback

	maxAge := s.Params.maxAgeSeconds()
	primaryFresh := isFresh(primary, now, maxAge)
	fallbackFresh := isFresh(fb, now, maxAge)
	// Bounds are those of the EMA before this cycle.
	primaryInRange := !s.outOfRange(primary.Price)
	fallbackInRange := fb.IsPositive() && !s.outOfRange(fb.Price)

	ev := Event{
		Time: now,
		Primary: SourceStatus{
			Price:     cloneBig(primary.Price),
			Timestamp: primary.Timestamp,
			Fresh:     primaryFresh,
			InRange:   primaryInRange,
		},
		Fallback: SourceStatus{
			Price:      cloneBig(fb.Price),
			Timestamp:  fb.Timestamp,
			Fresh:      fallbackFresh,
			InRange:    fallbackInRange,
			ReadFailed: fallback == nil,
		},
	}

	var feed *sources.PriceReading
	switch {
	case primaryFresh && primaryInRange:
		ev.Outcome = OutcomePrimaryUsed
		feed = &primary
	case fallbackFresh && fallbackInRange:
		if primaryFresh {
			ev.Outcome = OutcomeFallbackUsedOutOfBounds
		} else {
			ev.Outcome = OutcomeFallbackUsedStalePrimary
		}
		feed = &fb
	case primaryFresh:
		ev.Outcome = OutcomePrimaryUsedNoAnswerUpdate
		feed = &primary
	case fallbackFresh:
		ev.Outcome = OutcomeFallbackUsedNoAnswerUpdate
		feed = &fb
	default:
		ev.Outcome = OutcomeNoFreshSource
	}

	if ev.Outcome.AnswerUpdated() {
		s.LatestAnswer = cloneBig(feed.Price)
		s.LastAnswerUpdateTimestamp = feed.Timestamp
		ev.AnswerUpdated = true
	}

	if feed != nil && emaGateOpen(*s, feed.Timestamp) {
		s.LatestEMA = nextEMA(feed.Price, s.LatestEMA, s.Params.Multiplier)
		if err := s.deriveBounds(); err != nil {
			return Event{}, err
		}
		s.LastEMAUpdateTimestamp = feed.Timestamp
		ev.EMAUpdated = true
	}

	ev.Answer = cloneBig(s.LatestAnswer)
	ev.EMA = cloneBig(s.LatestEMA)
	ev.EMAUpperBound = s.EMAUpperBound.ToBig()
	ev.EMALowerBound = s.EMALowerBound.ToBig()
	return ev, nil
}

func (a *Aggregator) primaryFailureEvent(caller common.Address, primary, fallback sources.Feed, fallbackErr, primaryErr error) Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.state
	return Event{
		Outcome: OutcomePrimaryReadFailed,
		Caller:  caller,
		Time:    a.now(),
		Answer:  cloneBig(s.LatestAnswer),
		EMA:     cloneBig(s.LatestEMA),
		Primary: SourceStatus{
			Name:       primary.Name(),
			Price:      cloneBig(s.LastPrimary.Price),
			Timestamp:  s.LastPrimary.Timestamp,
			ReadFailed: true,
		},
		Fallback: SourceStatus{
			Name:       fallback.Name(),
			Price:      cloneBig(s.LastFallback.Price),
			Timestamp:  s.LastFallback.Timestamp,
			ReadFailed: fallbackErr != nil,
		},
		Error: primaryErr.Error(),
	}
}

// readFeed reads one round and rejects non-positive answers. Failed reads are
// counted here only; feeds just return errors.
func readFeed(ctx context.Context, feed sources.Feed) (sources.PriceReading, error) {
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		metrics.RecordSourceReadFailure(feed.Name(), readFailureReason(err))
		return sources.PriceReading{}, fmt.Errorf("%s: %w", feed.Name(), err)
	}
	r := round.Reading()
	if !r.IsPositive() {
		metrics.RecordSourceReadFailure(feed.Name(), "non_positive")
		return sources.PriceReading{}, fmt.Errorf("%w: %s reported %v", ErrNonPositivePrice, feed.Name(), r.Price)
	}
	return r, nil
}

func readFailureReason(err error) string {
	switch {
	case errors.Is(err, sources.ErrPaused):
		return "paused"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "read"
	}
}

func (a *Aggregator) persist(ctx context.Context, s State) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to persist aggregator state: %w", err)
	}
	return nil
}

func (a *Aggregator) now() uint64 {
	t := a.clock.Now().Unix()
	if t < 0 {
		return 0
	}
	return uint64(t)
}

func (a *Aggregator) recordState(s State) {
	f := func(v *big.Int) float64 {
		out, _ := fixedpoint.ToDecimal(v, fixedpoint.PriceDecimals).Float64()
		return out
	}
	metrics.RecordState(f(s.LatestAnswer), f(s.LatestEMA),
		f(s.EMAUpperBound.ToBig()), f(s.EMALowerBound.ToBig()), s.LastAnswerUpdateTimestamp)
}

// Price returns the answer scaled to 36 + loan - collateral decimals.
func (a *Aggregator) Price() (*uint256.Int, error) {
	a.mu.RLock()
	answer := cloneBig(a.state.LatestAnswer)
	p := a.state.Params
	a.mu.RUnlock()

	exp := 36 + int(p.LoanTokenDecimals) - int(p.CollateralTokenDecimals) - fixedpoint.PriceDecimals
	if exp < 0 {
		return nil, fmt.Errorf("%w: exponent %d", ErrPrecisionUnderflow, exp)
	}
	if answer.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAnswer, answer.String())
	}
	scaled := answer.Mul(answer, fixedpoint.Pow10(uint(exp)))
	out, overflow := uint256.FromBig(scaled)
	if overflow {
		return nil, fmt.Errorf("%w", ErrPriceOverflow)
	}
	return out, nil
}

// LatestRoundData returns (0, answer, t, t, 0) where t is the timestamp of
// the adopted answer.
func (a *Aggregator) LatestRoundData() sources.RoundData {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return sources.NewRoundData(a.state.LatestAnswer, a.state.LastAnswerUpdateTimestamp)
}

// Decimals returns the precision of LatestRoundData answers.
func (a *Aggregator) Decimals() uint8 {
	return fixedpoint.PriceDecimals
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

// Owner returns the current owner.
func (a *Aggregator) Owner() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Owner
}

// IsExecutor reports whether addr may call UpdatePrice.
func (a *Aggregator) IsExecutor(addr common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.IsExecutor(addr)
}

// Sources returns the current primary and fallback feeds.
func (a *Aggregator) Sources() (primary, fallback sources.Feed) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.primary, a.fallback
}

// AddSubscriber registers ch to receive update events.
func (a *Aggregator) AddSubscriber(ch chan<- Event) {
	a.events.AddSubscriber(ch)
}

// RemoveSubscriber unregisters ch.
func (a *Aggregator) RemoveSubscriber(ch chan<- Event) {
	a.events.RemoveSubscriber(ch)
}
