package api

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
)

func TestSignRequest_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	body := []byte(`{"timestamp":1700000000}`)

	sig, err := SignRequest(body, key)
	require.NoError(t, err)

	signer, err := RecoverSigner(body, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	// a different body recovers a different address
	other, err := RecoverSigner([]byte(`{"timestamp":1700000001}`), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer, other)
}

func TestRecoverSigner_RawRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	body := []byte("hello")

	sig, err := SignRequest(body, key)
	require.NoError(t, err)

	signer, err := RecoverSigner(body, rawRecoveryID(sig))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecoverSigner_Invalid(t *testing.T) {
	for _, sig := range []string{"", "0x1234", "not-hex"} {
		_, err := RecoverSigner([]byte("x"), sig)
		assert.ErrorIs(t, err, ErrInvalidSignature, "signature %q", sig)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(0), health.AnswerAgeSeconds)
	assert.Equal(t, int64(48*3600), health.MaxAgeSeconds)
	assert.Equal(t, "accountant", health.PrimarySource)
	assert.Equal(t, "chained", health.FallbackSource)
}

func TestHandleHealth_Stale(t *testing.T) {
	env := newTestEnv(t)
	env.server.now = func() time.Time { return time.Unix(t0+49*3600, 0) }

	health := decode[HealthResponse](t, env.get(t, "/health"))
	assert.Equal(t, "stale", health.Status)
}

func TestHandlePrice(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/v1/price")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[PriceResponse](t, resp)
	// 1.00000000 scaled to 36 + 6 - 18 decimals
	assert.Equal(t, "1000000000000000000000000", p.Price)
	assert.Equal(t, 24, p.Precision)
}

func TestHandleRound(t *testing.T) {
	env := newTestEnv(t)

	round := decode[RoundResponse](t, env.get(t, "/v1/round"))
	assert.Equal(t, uint64(0), round.RoundID)
	assert.Equal(t, "100000000", round.Answer)
	assert.Equal(t, "1.00000000", round.Price)
	assert.Equal(t, uint64(t0), round.StartedAt)
	assert.Equal(t, uint64(t0), round.UpdatedAt)
	assert.Equal(t, uint64(0), round.AnsweredInRound)
	assert.Equal(t, uint8(8), round.Decimals)
}

func TestHandleState(t *testing.T) {
	env := newTestEnv(t)

	st := decode[StateResponse](t, env.get(t, "/v1/state"))
	assert.Equal(t, "100000000", st.LatestAnswer)
	assert.Equal(t, "100000000", st.LatestEMA)
	assert.Equal(t, "105000000", st.EMAUpperBound)
	assert.Equal(t, "95000000", st.EMALowerBound)
	assert.Equal(t, uint64(2000), st.Params.Multiplier)
	assert.Equal(t, int64(3600), st.Params.MinEMAUpdateDelaySeconds)
	assert.Equal(t, crypto.PubkeyToAddress(env.ownerKey.PublicKey).Hex(), st.Owner)
	assert.Equal(t, []string{crypto.PubkeyToAddress(env.executorKey.PublicKey).Hex()}, st.Executors)
}

func TestHandleUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.primary.set(100_100_000, uint64(t0))

	resp := env.post(t, "/v1/update", env.executorKey, UpdateRequest{Timestamp: t0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev := decode[aggregator.Event](t, resp)
	assert.Equal(t, aggregator.OutcomePrimaryUsed, ev.Outcome)
	assert.True(t, ev.AnswerUpdated)
	assert.Equal(t, crypto.PubkeyToAddress(env.executorKey.PublicKey), ev.Caller)
	assert.Equal(t, int64(100_100_000), env.agg.Snapshot().LatestAnswer.Int64())
}

func TestHandleUpdate_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		key    *ecdsa.PrivateKey
		body   UpdateRequest
		status int
	}{
		{"unsigned", nil, UpdateRequest{Timestamp: t0}, http.StatusUnauthorized},
		{"stale timestamp", env.executorKey, UpdateRequest{Timestamp: t0 - 600}, http.StatusUnauthorized},
		{"future timestamp", env.executorKey, UpdateRequest{Timestamp: t0 + 600}, http.StatusUnauthorized},
		{"not executor", env.strangerKey, UpdateRequest{Timestamp: t0}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/v1/update", tt.key, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
		})
	}
	assert.Equal(t, int64(100_000_000), env.agg.Snapshot().LatestAnswer.Int64())
}

func TestHandleUpdate_PrimaryUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.primary.mu.Lock()
	env.primary.err = errors.New("execution reverted")
	env.primary.mu.Unlock()

	resp := env.post(t, "/v1/update", env.executorKey, UpdateRequest{Timestamp: t0})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHandleAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := func(v uint64) *uint64 { return &v }
	secs := func(v int64) *int64 { return &v }
	stranger := crypto.PubkeyToAddress(env.strangerKey.PublicKey).Hex()

	tests := []struct {
		name   string
		req    AdminRequest
		status int
	}{
		{"multiplier", AdminRequest{Op: OpSetMultiplier, Value: u(4000)}, http.StatusOK},
		{"invalid multiplier", AdminRequest{Op: OpSetMultiplier, Value: u(0)}, http.StatusBadRequest},
		{"missing value", AdminRequest{Op: OpSetMultiplier}, http.StatusBadRequest},
		{"bounds", AdminRequest{Op: OpSetBounds, Upper: u(11000), Lower: u(9000)}, http.StatusOK},
		{"invalid bounds", AdminRequest{Op: OpSetBounds, Upper: u(9000), Lower: u(8000)}, http.StatusBadRequest},
		{"max age", AdminRequest{Op: OpSetMaxPriceAge, Seconds: secs(3600)}, http.StatusOK},
		{"zero max age", AdminRequest{Op: OpSetMaxPriceAge, Seconds: secs(0)}, http.StatusBadRequest},
		{"negative max age", AdminRequest{Op: OpSetMaxPriceAge, Seconds: secs(-3600)}, http.StatusBadRequest},
		{"overflowing max age", AdminRequest{Op: OpSetMaxPriceAge, Seconds: secs(36028797018967568)}, http.StatusBadRequest},
		{"overflowing ema delay", AdminRequest{Op: OpSetMinEMAUpdateDelay, Seconds: secs(maxDurationSeconds + 1)}, http.StatusBadRequest},
		{"ema delay", AdminRequest{Op: OpSetMinEMAUpdateDelay, Seconds: secs(600)}, http.StatusOK},
		{"add executor", AdminRequest{Op: OpAddExecutor, Address: stranger}, http.StatusOK},
		{"bad address", AdminRequest{Op: OpAddExecutor, Address: "0x12"}, http.StatusBadRequest},
		{"remove executor", AdminRequest{Op: OpRemoveExecutor, Address: stranger}, http.StatusOK},
		{"remove unknown executor", AdminRequest{Op: OpRemoveExecutor, Address: stranger, Timestamp: t0 + 1}, http.StatusBadRequest},
		{"primary source", AdminRequest{Op: OpSetPrimarySource, Source: "twap"}, http.StatusOK},
		{"unknown source", AdminRequest{Op: OpSetFallbackSource, Source: "kraken"}, http.StatusBadRequest},
		{"unknown op", AdminRequest{Op: "pause"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.req.Timestamp == 0 {
				tt.req.Timestamp = t0
			}
			resp := env.post(t, "/v1/admin", env.ownerKey, tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	st := env.agg.Snapshot()
	assert.Equal(t, uint64(4000), st.Params.Multiplier)
	assert.Equal(t, uint64(11000), st.Params.BaseUpperBound)
	assert.Equal(t, time.Hour, st.Params.MaxPriceAge)
	assert.Equal(t, 10*time.Minute, st.Params.MinEMAUpdateDelay)
	assert.Equal(t, "twap", st.PrimarySource)
	assert.Len(t, st.Executors, 1)
}

func TestHandleAdmin_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	v := uint64(4000)

	resp := env.post(t, "/v1/admin", env.executorKey, AdminRequest{Op: OpSetMultiplier, Value: &v, Timestamp: t0})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, uint64(2000), env.agg.Snapshot().Params.Multiplier)
}

func TestHandleAdmin_TransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	next := crypto.PubkeyToAddress(env.strangerKey.PublicKey)

	resp := env.post(t, "/v1/admin", env.ownerKey, AdminRequest{Op: OpTransferOwnership, Address: next.Hex(), Timestamp: t0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[StateResponse](t, resp)
	assert.Equal(t, next.Hex(), st.Owner)

	v := uint64(3000)
	resp = env.post(t, "/v1/admin", env.ownerKey, AdminRequest{Op: OpSetMultiplier, Value: &v, Timestamp: t0})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandleAdmin_RejectsReplayedRequest(t *testing.T) {
	env := newTestEnv(t)
	u := func(v uint64) *uint64 { return &v }

	rawA, sigA := signed(t, env.ownerKey, AdminRequest{Op: OpSetMultiplier, Value: u(3000), Timestamp: t0})
	rawB, sigB := signed(t, env.ownerKey, AdminRequest{Op: OpSetMultiplier, Value: u(2500), Timestamp: t0})

	require.Equal(t, http.StatusOK, env.postRaw(t, "/v1/admin", rawA, sigA).StatusCode)
	require.Equal(t, http.StatusOK, env.postRaw(t, "/v1/admin", rawB, sigB).StatusCode)

	resp := env.postRaw(t, "/v1/admin", rawA, sigA)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "already used")

	// same body, recovery id re-encoded
	resp = env.postRaw(t, "/v1/admin", rawA, rawRecoveryID(sigA))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, uint64(2500), env.agg.Snapshot().Params.Multiplier)
}

func TestHandleUpdate_RejectsReplayedRequest(t *testing.T) {
	env := newTestEnv(t)
	env.primary.set(100_100_000, uint64(t0))

	// another signer's identical body does not consume the executor's
	resp := env.post(t, "/v1/update", env.strangerKey, UpdateRequest{Timestamp: t0})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	raw, sig := signed(t, env.executorKey, UpdateRequest{Timestamp: t0})
	require.Equal(t, http.StatusOK, env.postRaw(t, "/v1/update", raw, sig).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, env.postRaw(t, "/v1/update", raw, sig).StatusCode)

	resp = env.post(t, "/v1/update", env.executorKey, UpdateRequest{Timestamp: t0 + 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReplayGuard_ForgetsExpiredDigests(t *testing.T) {
	g := newReplayGuard()
	now := time.Unix(t0, 0)
	a := crypto.Keccak256Hash([]byte("a"))
	b := crypto.Keccak256Hash([]byte("b"))

	assert.True(t, g.accept(a, now.Add(time.Minute), now))
	assert.False(t, g.accept(a, now.Add(time.Minute), now.Add(time.Minute)))

	assert.True(t, g.accept(b, now.Add(10*time.Minute), now.Add(2*time.Minute)))
	assert.Equal(t, 1, g.size())
	assert.True(t, g.accept(a, now.Add(3*time.Minute), now.Add(2*time.Minute)))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrMissingSignature, http.StatusUnauthorized},
		{fmt.Errorf("%w: bad", ErrInvalidSignature), http.StatusUnauthorized},
		{ErrStaleRequest, http.StatusUnauthorized},
		{aggregator.ErrNotOwner, http.StatusForbidden},
		{aggregator.ErrNotExecutor, http.StatusForbidden},
		{aggregator.ErrReentrantCall, http.StatusConflict},
		{aggregator.ErrSourceChanged, http.StatusConflict},
		{fmt.Errorf("%w: %w", aggregator.ErrPrimaryUnavailable, aggregator.ErrNonPositivePrice), http.StatusBadGateway},
		{aggregator.ErrInvalidBounds, http.StatusBadRequest},
		{ErrUnknownOperation, http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusCode(tt.err), tt.err.Error())
	}
}
