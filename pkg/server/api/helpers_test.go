package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

const t0 int64 = 1_700_000_000

type stubFeed struct {
	mu    sync.Mutex
	name  string
	price int64
	ts    uint64
	err   error
}

func (f *stubFeed) Name() string             { return f.name }
func (f *stubFeed) Type() sources.SourceType { return "stub" }

func (f *stubFeed) LatestRoundData(context.Context) (sources.RoundData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sources.RoundData{}, f.err
	}
	return sources.NewRoundData(big.NewInt(f.price), f.ts), nil
}

func (f *stubFeed) set(price int64, ts uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price, f.ts, f.err = price, ts, nil
}

type testEnv struct {
	agg         *aggregator.Aggregator
	server      *Server
	http        *httptest.Server
	primary     *stubFeed
	alternative *stubFeed
	ownerKey    *ecdsa.PrivateKey
	executorKey *ecdsa.PrivateKey
	strangerKey *ecdsa.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		primary:     &stubFeed{name: "accountant", price: 100_000_000, ts: uint64(t0)},
		alternative: &stubFeed{name: "twap", price: 100_050_000, ts: uint64(t0)},
	}
	fallback := &stubFeed{name: "chained", price: 100_000_000, ts: uint64(t0)}

	var err error
	env.ownerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	env.executorKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	env.strangerKey, err = crypto.GenerateKey()
	require.NoError(t, err)

	clock := aggregator.ClockFunc(func() time.Time { return time.Unix(t0, 0) })
	env.agg, err = aggregator.New(context.Background(), aggregator.Config{
		Params:    aggregator.DefaultParams(),
		Owner:     crypto.PubkeyToAddress(env.ownerKey.PublicKey),
		Executors: []common.Address{crypto.PubkeyToAddress(env.executorKey.PublicKey)},
	}, env.primary, fallback, aggregator.WithClock(clock))
	require.NoError(t, err)

	catalog := sources.Catalog{
		env.primary.name:     env.primary,
		fallback.name:        fallback,
		env.alternative.name: env.alternative,
	}
	env.server = NewServer(":0", env.agg, catalog, nil)
	env.server.now = clock.Now
	env.server.SetWebSocketServer(NewWebSocketServer(nil))

	env.http = httptest.NewServer(env.server.Handler())
	t.Cleanup(env.http.Close)
	return env
}

// post signs body with key and posts it to path.
func (e *testEnv) post(t *testing.T, path string, key *ecdsa.PrivateKey, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.http.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	if key != nil {
		sig, err := SignRequest(raw, key)
		require.NoError(t, err)
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) executorAddr() common.Address {
	return crypto.PubkeyToAddress(e.executorKey.PublicKey)
}

// signed marshals body and signs it with key.
func signed(t *testing.T, key *ecdsa.PrivateKey, body interface{}) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	sig, err := SignRequest(raw, key)
	require.NoError(t, err)
	return raw, sig
}

// postRaw posts raw with the given signature header.
func (e *testEnv) postRaw(t *testing.T, path string, raw []byte, sig string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.http.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set(SignatureHeader, sig)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// rawRecoveryID re-encodes a 27/28 signature with a 0/1 recovery id.
func rawRecoveryID(sig string) string {
	raw := []byte(sig)
	last := raw[len(raw)-2:]
	if string(last) == "1b" {
		copy(last, "00")
	} else {
		copy(last, "01")
	}
	return string(raw)
}
