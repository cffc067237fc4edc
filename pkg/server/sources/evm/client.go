package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to an EVM JSON-RPC endpoint and checks that it answers.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, ErrRPCURLRequired
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC: %w", err)
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	return client, nil
}
