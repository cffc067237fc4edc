package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

// DefaultSchedule triggers an update every five minutes.
const DefaultSchedule = "@every 5m"

// State represents the current state of the keeper loop
type State string

const (
	StateIdle     State = "idle"
	StateUpdating State = "updating"
	StateError    State = "error"
)

// Updater runs one aggregator update cycle.
type Updater interface {
	UpdatePrice(ctx context.Context, caller common.Address) (aggregator.Event, error)
}

// Config contains keeper configuration
type Config struct {
	Executor      common.Address
	Schedule      string
	MaxRetries    int
	RetryInterval time.Duration
	// Timeout bounds one update attempt, zero for none.
	Timeout time.Duration
}

// Keeper calls UpdatePrice as an executor on a cron schedule.
type Keeper struct {
	updater       Updater
	executor      common.Address
	schedule      cron.Schedule
	spec          string
	maxRetries    int
	retryInterval time.Duration
	timeout       time.Duration
	logger        zerolog.Logger

	mu          sync.Mutex
	state       State
	lastRun     time.Time
	lastOutcome aggregator.Outcome
	lastErr     error
}

// New creates a keeper.
func New(cfg Config, updater Updater, logger zerolog.Logger) (*Keeper, error) {
	if updater == nil {
		return nil, ErrNoUpdater
	}
	if cfg.Executor == (common.Address{}) {
		return nil, ErrNoExecutor
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Keeper{
		updater:       updater,
		executor:      cfg.Executor,
		schedule:      schedule,
		spec:          spec,
		maxRetries:    maxRetries,
		retryInterval: cfg.RetryInterval,
		timeout:       cfg.Timeout,
		logger:        logger.With().Str("component", "keeper").Logger(),
		state:         StateIdle,
	}, nil
}

// Start runs the schedule until ctx is canceled. Runs never overlap.
func (k *Keeper) Start(ctx context.Context) error {
	k.logger.Info().
		Str("executor", k.executor.Hex()).
		Str("schedule", k.spec).
		Msg("Starting keeper")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(k.schedule, cron.FuncJob(func() {
		if err := k.RunOnce(ctx); err != nil {
			k.logger.Error().Err(err).Msg("Update run failed")
		}
	}))
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	k.logger.Info().Msg("Keeper stopped")
	return ctx.Err()
}

// RunOnce performs one update, retrying transient failures.
func (k *Keeper) RunOnce(ctx context.Context) error {
	k.setState(StateUpdating)

	var lastErr error
	for attempt := 0; attempt < k.maxRetries; attempt++ {
		if attempt > 0 {
			k.logger.Debug().
				Int("attempt", attempt+1).
				Int("max", k.maxRetries).
				Msg("Retrying update")
			select {
			case <-ctx.Done():
				k.finish("", ctx.Err())
				return ctx.Err()
			case <-time.After(k.retryInterval):
			}
		}

		ev, err := k.attempt(ctx)
		if err == nil {
			k.logger.Info().
				Str("outcome", string(ev.Outcome)).
				Bool("answer_updated", ev.AnswerUpdated).
				Bool("ema_updated", ev.EMAUpdated).
				Msg("Update successful")
			k.finish(ev.Outcome, nil)
			metrics.RecordKeeperRun("ok")
			return nil
		}

		lastErr = err
		k.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Update failed")
		if !retryable(err) {
			break
		}
	}

	k.finish("", lastErr)
	metrics.RecordKeeperRun("error")
	return fmt.Errorf("update failed: %w", lastErr)
}

func (k *Keeper) attempt(ctx context.Context) (aggregator.Event, error) {
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	return k.updater.UpdatePrice(ctx, k.executor)
}

// retryable reports whether a failed update may succeed on another attempt.
func retryable(err error) bool {
	switch {
	case aggregator.IsAuthorizationError(err),
		aggregator.IsConfigurationError(err) && !errors.Is(err, aggregator.ErrPrimaryUnavailable),
		errors.Is(err, aggregator.ErrReentrantCall),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func (k *Keeper) setState(s State) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state = s
}

func (k *Keeper) finish(outcome aggregator.Outcome, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastRun = time.Now()
	k.lastErr = err
	if err != nil {
		k.state = StateError
		return
	}
	k.lastOutcome = outcome
	k.state = StateIdle
}

// GetState returns the current keeper state
func (k *Keeper) GetState() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// LastRun returns the time, outcome and error of the last finished run.
func (k *Keeper) LastRun() (time.Time, aggregator.Outcome, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastRun, k.lastOutcome, k.lastErr
}
