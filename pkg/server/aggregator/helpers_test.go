package aggregator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

const (
	t0   uint64 = 1_700_000_000
	hour uint64 = 3600
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	executor = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

// testFeed is a controllable feed.
type testFeed struct {
	mu     sync.Mutex
	name   string
	price  int64
	ts     uint64
	err    error
	reads  int
	onRead func()
}

func newTestFeed(name string, price int64, ts uint64) *testFeed {
	return &testFeed{name: name, price: price, ts: ts}
}

func (f *testFeed) Name() string             { return f.name }
func (f *testFeed) Type() sources.SourceType { return "test" }

func (f *testFeed) LatestRoundData(context.Context) (sources.RoundData, error) {
	f.mu.Lock()
	f.reads++
	hook := f.onRead
	price, ts, err := f.price, f.ts, f.err
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return sources.RoundData{}, err
	}
	return sources.NewRoundData(big.NewInt(price), ts), nil
}

func (f *testFeed) set(price int64, ts uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.ts, f.err = price, ts, nil
}

func (f *testFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *testFeed) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(int64(c.now), 0)
}

func (c *testClock) set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// testStore keeps state in memory and can be told to fail.
type testStore struct {
	mu       sync.Mutex
	state    *State
	failSave bool
	saves    int
}

func (s *testStore) Load(context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return State{}, ErrStateNotFound
	}
	return s.state.Clone(), nil
}

func (s *testStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	c := state.Clone()
	s.state = &c
	s.saves++
	return nil
}

type fixture struct {
	agg      *Aggregator
	primary  *testFeed
	fallback *testFeed
	clock    *testClock
}

func testConfig() Config {
	return Config{
		Params:    DefaultParams(),
		Owner:     owner,
		Executors: []common.Address{executor},
	}
}

// newFixture seeds an aggregator with both feeds at 1.00000000 at t0.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		primary:  newTestFeed("primary", 100_000_000, t0),
		fallback: newTestFeed("fallback", 100_000_000, t0),
		clock:    &testClock{now: t0},
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	agg, err := New(context.Background(), testConfig(), f.primary, f.fallback, opts...)
	require.NoError(t, err)
	f.agg = agg
	return f
}

// at moves the clock and sets both feed readings.
func (f *fixture) at(now uint64, primary int64, primaryTs uint64, fallback int64, fallbackTs uint64) {
	f.clock.set(now)
	f.primary.set(primary, primaryTs)
	f.fallback.set(fallback, fallbackTs)
}

func (f *fixture) update(t *testing.T) Event {
	t.Helper()
	ev, err := f.agg.UpdatePrice(context.Background(), executor)
	require.NoError(t, err)
	return ev
}

func requireBoundsContainEMA(t *testing.T, s State) {
	t.Helper()
	require.True(t, s.EMALowerBound.ToBig().Cmp(s.LatestEMA) <= 0, "lower bound above EMA")
	require.True(t, s.LatestEMA.Cmp(s.EMAUpperBound.ToBig()) <= 0, "upper bound below EMA")
}
