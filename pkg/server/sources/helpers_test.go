package sources

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAddressFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    common.Address
		wantErr error
	}{
		{"valid", "0x3000000000000000000000000000000000000003", common.HexToAddress("0x3000000000000000000000000000000000000003"), nil},
		{"padded", "  0x3000000000000000000000000000000000000003 ", common.HexToAddress("0x3000000000000000000000000000000000000003"), nil},
		{"missing", nil, common.Address{}, ErrAddressRequired},
		{"zero", "0x0000000000000000000000000000000000000000", common.Address{}, ErrAddressRequired},
		{"not hex", "accountant", common.Address{}, ErrInvalidConfig},
		{"wrong type", 42, common.Address{}, ErrAddressRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := map[string]interface{}{}
			if tt.value != nil {
				config["address"] = tt.value
			}
			got, err := GetAddressFromConfig(config, "address")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetDecimalsFromConfig(t *testing.T) {
	d, err := GetDecimalsFromConfig(map[string]interface{}{}, "rate_decimals", 6)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	d, err = GetDecimalsFromConfig(map[string]interface{}{"rate_decimals": 18}, "rate_decimals", 6)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), d)

	_, err = GetDecimalsFromConfig(map[string]interface{}{"rate_decimals": 78}, "rate_decimals", 6)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = GetDecimalsFromConfig(map[string]interface{}{"rate_decimals": -1}, "rate_decimals", 6)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetDurationFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    time.Duration
		wantErr bool
	}{
		{"default", nil, 30 * time.Minute, false},
		{"string", "15m", 15 * time.Minute, false},
		{"seconds", 600, 10 * time.Minute, false},
		{"float seconds", float64(60), time.Minute, false},
		{"bad string", "soon", 0, true},
		{"negative", -5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := map[string]interface{}{}
			if tt.value != nil {
				config["period"] = tt.value
			}
			got, err := GetDurationFromConfig(config, "period", 30*time.Minute)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetNameFromConfig(t *testing.T) {
	assert.Equal(t, "fallback", GetNameFromConfig(map[string]interface{}{}, "fallback"))
	assert.Equal(t, "fallback", GetNameFromConfig(map[string]interface{}{"name": "  "}, "fallback"))
	assert.Equal(t, "twap", GetNameFromConfig(map[string]interface{}{"name": "twap"}, "fallback"))
}

func TestGetCallerFromConfig_Missing(t *testing.T) {
	_, err := GetCallerFromConfig(map[string]interface{}{"client": "not a client"})
	assert.True(t, errors.Is(err, ErrClientNotInitialized))
}

func TestParseInnerFeeds(t *testing.T) {
	feeds, err := ParseInnerFeeds(map[string]interface{}{
		"feeds": []interface{}{
			map[string]interface{}{"type": "accountant", "name": "rate", "config": map[string]interface{}{"address": "0x1"}},
			map[string]interface{}{"type": "twap"},
		},
	})
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, "accountant", feeds[0].Type)
	assert.Equal(t, "rate", feeds[0].Name)
	assert.Equal(t, "0x1", feeds[0].Config["address"])
	assert.Equal(t, "twap", feeds[1].Type)
	assert.Empty(t, feeds[1].Config)

	_, err = ParseInnerFeeds(map[string]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseInnerFeeds(map[string]interface{}{"feeds": []interface{}{"accountant"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseInnerFeeds(map[string]interface{}{"feeds": []interface{}{map[string]interface{}{"name": "x"}}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegistry_CreateAndList(t *testing.T) {
	assert.Contains(t, List(), "static")
	assert.Contains(t, List(), string(SourceTypeChained))

	feed, err := Create("static", "usdc_usd", map[string]interface{}{"answer": 100_000_000})
	require.NoError(t, err)
	assert.Equal(t, "usdc_usd", feed.Name())

	_, err = Create("binance", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownSourceType)
}

func TestCatalog(t *testing.T) {
	c := Catalog{
		"twap":       &staticFeed{name: "twap"},
		"accountant": &staticFeed{name: "accountant"},
	}
	assert.Equal(t, []string{"accountant", "twap"}, c.Names())

	f, ok := c.Get("twap")
	require.True(t, ok)
	assert.Equal(t, "twap", f.Name())

	_, ok = c.Get("chained")
	assert.False(t, ok)
}
