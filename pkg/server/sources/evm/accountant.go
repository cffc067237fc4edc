package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// Accountant is a rate registry reporting the vault share exchange rate.
type Accountant interface {
	// GetRate returns the exchange rate, paused or not.
	GetRate(ctx context.Context) (*big.Int, error)
	// GetRateSafe returns the exchange rate or sources.ErrPaused.
	GetRateSafe(ctx context.Context) (*big.Int, error)
	// AccountantState returns the full accountant state.
	AccountantState(ctx context.Context) (AccountantState, error)
}

// AccountantState mirrors the accountant's public state struct.
type AccountantState struct {
	PayoutAddress                  common.Address
	HighwaterMark                  *big.Int
	FeesOwedInBase                 *big.Int
	TotalSharesLastUpdate          *big.Int
	ExchangeRate                   *big.Int
	AllowedExchangeRateChangeUpper uint16
	AllowedExchangeRateChangeLower uint16
	LastUpdateTimestamp            uint64
	IsPaused                       bool
	MinimumUpdateDelayInSeconds    *big.Int
	ManagementFee                  uint16
}

// Accountant ABI (read-only subset).
const accountantABIJSON = `[
	{
		"inputs": [],
		"name": "getRate",
		"outputs": [{"internalType": "uint256", "name": "rate", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getRateSafe",
		"outputs": [{"internalType": "uint256", "name": "rate", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "accountantState",
		"outputs": [
			{"internalType": "address", "name": "payoutAddress", "type": "address"},
			{"internalType": "uint96", "name": "highwaterMark", "type": "uint96"},
			{"internalType": "uint128", "name": "feesOwedInBase", "type": "uint128"},
			{"internalType": "uint128", "name": "totalSharesLastUpdate", "type": "uint128"},
			{"internalType": "uint96", "name": "exchangeRate", "type": "uint96"},
			{"internalType": "uint16", "name": "allowedExchangeRateChangeUpper", "type": "uint16"},
			{"internalType": "uint16", "name": "allowedExchangeRateChangeLower", "type": "uint16"},
			{"internalType": "uint64", "name": "lastUpdateTimestamp", "type": "uint64"},
			{"internalType": "bool", "name": "isPaused", "type": "bool"},
			{"internalType": "uint24", "name": "minimumUpdateDelayInSeconds", "type": "uint24"},
			{"internalType": "uint16", "name": "managementFee", "type": "uint16"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// EVMAccountant reads an Accountant contract over JSON-RPC.
type EVMAccountant struct {
	client  sources.ContractCaller
	address common.Address
	abi     abi.ABI
}

// Ensure EVMAccountant implements Accountant interface.
var _ Accountant = (*EVMAccountant)(nil)

// NewEVMAccountant binds an accountant contract.
func NewEVMAccountant(client sources.ContractCaller, address common.Address) (*EVMAccountant, error) {
	if client == nil {
		return nil, fmt.Errorf("%w", sources.ErrClientNotInitialized)
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: accountant", sources.ErrAddressRequired)
	}
	parsed, err := abi.JSON(strings.NewReader(accountantABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse accountant ABI: %w", err)
	}
	return &EVMAccountant{client: client, address: address, abi: parsed}, nil
}

// Address returns the contract address.
func (a *EVMAccountant) Address() common.Address {
	return a.address
}

// GetRate calls getRate(). AccountantFeed reads the rate together with its
// timestamp from accountantState(); GetRate and GetRateSafe are for callers
// that need only the rate.
func (a *EVMAccountant) GetRate(ctx context.Context) (*big.Int, error) {
	return a.callRate(ctx, "getRate")
}

// GetRateSafe checks the paused flag before calling getRateSafe(), so a paused
// accountant surfaces as sources.ErrPaused rather than an opaque revert.
func (a *EVMAccountant) GetRateSafe(ctx context.Context) (*big.Int, error) {
	state, err := a.AccountantState(ctx)
	if err != nil {
		return nil, err
	}
	if state.IsPaused {
		return nil, fmt.Errorf("%w: accountant %s", sources.ErrPaused, a.address.Hex())
	}
	return a.callRate(ctx, "getRateSafe")
}

// AccountantState calls accountantState().
func (a *EVMAccountant) AccountantState(ctx context.Context) (AccountantState, error) {
	result, err := a.call(ctx, "accountantState")
	if err != nil {
		return AccountantState{}, err
	}

	var state AccountantState
	if err := a.abi.UnpackIntoInterface(&state, "accountantState", result); err != nil {
		return AccountantState{}, fmt.Errorf("failed to unpack accountantState result: %w", err)
	}
	if state.ExchangeRate == nil {
		return AccountantState{}, fmt.Errorf("%w: missing exchange rate", sources.ErrInvalidResponse)
	}
	return state, nil
}

func (a *EVMAccountant) callRate(ctx context.Context, method string) (*big.Int, error) {
	result, err := a.call(ctx, method)
	if err != nil {
		return nil, err
	}
	out, err := a.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", sources.ErrInvalidResponse, method, len(out))
	}
	rate, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", sources.ErrInvalidResponse, method, out[0])
	}
	return rate, nil
}

func (a *EVMAccountant) call(ctx context.Context, method string) ([]byte, error) {
	data, err := a.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &a.address,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return result, nil
}
