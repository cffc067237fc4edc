package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

// fakeCaller answers contract calls by method selector.
type fakeCaller struct {
	responses map[string][]byte
	callErr   error
	blockTime uint64
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{responses: make(map[string][]byte)}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	out, ok := f.responses[string(msg.Data[:4])]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func (f *fakeCaller) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Time: f.blockTime}, nil
}

// respond registers the packed outputs of method.
func (f *fakeCaller) respond(t *testing.T, abiJSON, method string, values ...interface{}) {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	require.NoError(t, err)
	m, ok := parsed.Methods[method]
	require.True(t, ok, "unknown method %s", method)
	packed, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	f.responses[string(m.ID)] = packed
}
