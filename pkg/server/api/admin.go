package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// Admin operations accepted by /v1/admin.
const (
	OpSetPrimarySource     = "set_primary_source"
	OpSetFallbackSource    = "set_fallback_source"
	OpSetMaxPriceAge       = "set_max_price_age"
	OpSetMultiplier        = "set_multiplier"
	OpSetBounds            = "set_bounds"
	OpSetMinEMAUpdateDelay = "set_min_ema_update_delay"
	OpAddExecutor          = "add_executor"
	OpRemoveExecutor       = "remove_executor"
	OpTransferOwnership    = "transfer_ownership"
)

// maxDurationSeconds is the largest seconds value that fits a time.Duration.
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

// AdminRequest is a signed owner operation. Only the fields used by Op are read.
type AdminRequest struct {
	Op        string `json:"op"`
	Timestamp int64  `json:"timestamp"`

	// Source names a feed from the configured catalog.
	Source string `json:"source,omitempty"`
	// Seconds carries durations for set_max_price_age and set_min_ema_update_delay.
	Seconds *int64 `json:"seconds,omitempty"`
	// Value carries the multiplier in basis points.
	Value *uint64 `json:"value,omitempty"`
	Upper *uint64 `json:"upper,omitempty"`
	Lower *uint64 `json:"lower,omitempty"`
	// Address carries the executor or the new owner.
	Address string `json:"address,omitempty"`
}

func (r *AdminRequest) signedAt() int64 { return r.Timestamp }

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, fmt.Sprint(status), time.Since(start))
	}()

	var req AdminRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		status = s.sendError(w, err)
		return
	}
	if err := s.applyAdmin(r.Context(), caller, req); err != nil {
		status = s.sendError(w, err)
		return
	}

	s.logger.Info("Admin request applied", "op", req.Op, "caller", caller.Hex())
	s.sendJSON(w, status, newStateResponse(s.oracle.Snapshot()))
}

func (s *Server) applyAdmin(ctx context.Context, caller common.Address, req AdminRequest) error {
	switch req.Op {
	case OpSetPrimarySource, OpSetFallbackSource:
		feed, ok := s.catalog.Get(req.Source)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSource, req.Source)
		}
		if req.Op == OpSetPrimarySource {
			return s.oracle.SetPrimarySource(ctx, caller, feed)
		}
		return s.oracle.SetFallbackSource(ctx, caller, feed)

	case OpSetMaxPriceAge, OpSetMinEMAUpdateDelay:
		if req.Seconds == nil {
			return fmt.Errorf("%w: %s requires seconds", ErrBadRequest, req.Op)
		}
		if *req.Seconds < 0 || *req.Seconds > maxDurationSeconds {
			return fmt.Errorf("%w: seconds out of range: %d", ErrBadRequest, *req.Seconds)
		}
		d := time.Duration(*req.Seconds) * time.Second
		if req.Op == OpSetMaxPriceAge {
			return s.oracle.SetMaxPriceAge(ctx, caller, d)
		}
		return s.oracle.SetMinEMAUpdateDelay(ctx, caller, d)

	case OpSetMultiplier:
		if req.Value == nil {
			return fmt.Errorf("%w: %s requires value", ErrBadRequest, req.Op)
		}
		return s.oracle.SetMultiplier(ctx, caller, *req.Value)

	case OpSetBounds:
		if req.Upper == nil || req.Lower == nil {
			return fmt.Errorf("%w: %s requires upper and lower", ErrBadRequest, req.Op)
		}
		return s.oracle.SetBounds(ctx, caller, *req.Upper, *req.Lower)

	case OpAddExecutor, OpRemoveExecutor, OpTransferOwnership:
		if !common.IsHexAddress(req.Address) {
			return fmt.Errorf("%w: %s requires an address, got %q", ErrBadRequest, req.Op, req.Address)
		}
		addr := common.HexToAddress(req.Address)
		switch req.Op {
		case OpAddExecutor:
			return s.oracle.AddExecutor(ctx, caller, addr)
		case OpRemoveExecutor:
			return s.oracle.RemoveExecutor(ctx, caller, addr)
		default:
			return s.oracle.TransferOwnership(ctx, caller, addr)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, req.Op)
	}
}

// ReadingResponse is a cached source reading.
type ReadingResponse struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

// ParamsResponse mirrors aggregator.Params with durations in seconds.
type ParamsResponse struct {
	MaxPriceAgeSeconds       int64  `json:"max_price_age_seconds"`
	MinEMAUpdateDelaySeconds int64  `json:"min_ema_update_delay_seconds"`
	Multiplier               uint64 `json:"multiplier"`
	BaseUpperBound           uint64 `json:"base_upper_bound"`
	BaseLowerBound           uint64 `json:"base_lower_bound"`
	LoanTokenDecimals        uint8  `json:"loan_token_decimals"`
	CollateralTokenDecimals  uint8  `json:"collateral_token_decimals"`
}

// StateResponse is the full aggregator state. Prices are 8-decimal integers
// in string form.
type StateResponse struct {
	LatestAnswer              string          `json:"latest_answer"`
	LatestEMA                 string          `json:"latest_ema"`
	EMAUpperBound             string          `json:"ema_upper_bound"`
	EMALowerBound             string          `json:"ema_lower_bound"`
	LastPrimary               ReadingResponse `json:"last_primary"`
	LastFallback              ReadingResponse `json:"last_fallback"`
	LastEMAUpdateTimestamp    uint64          `json:"last_ema_update_timestamp"`
	LastAnswerUpdateTimestamp uint64          `json:"last_answer_update_timestamp"`
	Params                    ParamsResponse  `json:"params"`
	Owner                     string          `json:"owner"`
	Executors                 []string        `json:"executors"`
	PrimarySource             string          `json:"primary_source"`
	FallbackSource            string          `json:"fallback_source"`
}

func newStateResponse(st aggregator.State) StateResponse {
	executors := make([]string, 0, len(st.Executors))
	for _, e := range st.Executors {
		executors = append(executors, e.Hex())
	}
	return StateResponse{
		LatestAnswer:              st.LatestAnswer.String(),
		LatestEMA:                 st.LatestEMA.String(),
		EMAUpperBound:             st.EMAUpperBound.Dec(),
		EMALowerBound:             st.EMALowerBound.Dec(),
		LastPrimary:               newReadingResponse(st.LastPrimary),
		LastFallback:              newReadingResponse(st.LastFallback),
		LastEMAUpdateTimestamp:    st.LastEMAUpdateTimestamp,
		LastAnswerUpdateTimestamp: st.LastAnswerUpdateTimestamp,
		Params: ParamsResponse{
			MaxPriceAgeSeconds:       int64(st.Params.MaxPriceAge / time.Second),
			MinEMAUpdateDelaySeconds: int64(st.Params.MinEMAUpdateDelay / time.Second),
			Multiplier:               st.Params.Multiplier,
			BaseUpperBound:           st.Params.BaseUpperBound,
			BaseLowerBound:           st.Params.BaseLowerBound,
			LoanTokenDecimals:        st.Params.LoanTokenDecimals,
			CollateralTokenDecimals:  st.Params.CollateralTokenDecimals,
		},
		Owner:          st.Owner.Hex(),
		Executors:      executors,
		PrimarySource:  st.PrimarySource,
		FallbackSource: st.FallbackSource,
	}
}

func newReadingResponse(r sources.PriceReading) ReadingResponse {
	out := ReadingResponse{Timestamp: r.Timestamp}
	if r.Price != nil {
		out.Price = r.Price.String()
	} else {
		out.Price = "0"
	}
	return out
}
