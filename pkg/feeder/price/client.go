package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SuperReturn/Oracle/pkg/version"
)

// Round is the round data served by the oracle API.
type Round struct {
	RoundID         uint64          `json:"round_id"`
	Answer          string          `json:"answer"`
	Price           decimal.Decimal `json:"price"`
	StartedAt       uint64          `json:"started_at"`
	UpdatedAt       uint64          `json:"updated_at"`
	AnsweredInRound uint64          `json:"answered_in_round"`
	Decimals        uint8           `json:"decimals"`
}

// AnswerInt parses the raw 8-decimal answer.
func (r Round) AnswerInt() (*big.Int, error) {
	v, ok := new(big.Int).SetString(r.Answer, 10)
	if !ok {
		return nil, fmt.Errorf("%w: answer %q", ErrInvalidResponse, r.Answer)
	}
	return v, nil
}

// Price is the collateral valuation served by the oracle API.
type Price struct {
	Price     string `json:"price"`
	Precision int    `json:"precision"`
}

// Client interface for reading the oracle
type Client interface {
	GetRound(ctx context.Context) (Round, error)
	GetPrice(ctx context.Context) (Price, error)
}

// HTTPClient implements Client using HTTP requests
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP oracle client
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrBaseURLRequired
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetRound fetches the latest round data
func (c *HTTPClient) GetRound(ctx context.Context) (Round, error) {
	var round Round
	if err := c.get(ctx, "/v1/round", &round); err != nil {
		return Round{}, err
	}
	return round, nil
}

// GetPrice fetches the scaled collateral price
func (c *HTTPClient) GetPrice(ctx context.Context) (Price, error) {
	var p Price
	if err := c.get(ctx, "/v1/price", &p); err != nil {
		return Price{}, err
	}
	return p, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.AgentString())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d: %s", ErrPriceServerHTTPError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
