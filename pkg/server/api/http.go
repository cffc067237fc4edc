// Package api exposes the aggregator over HTTP and streams its update events
// over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SuperReturn/Oracle/pkg/fixedpoint"
	"github.com/SuperReturn/Oracle/pkg/logging"
	"github.com/SuperReturn/Oracle/pkg/metrics"
	"github.com/SuperReturn/Oracle/pkg/server/aggregator"
	"github.com/SuperReturn/Oracle/pkg/server/sources"
)

// Oracle is the aggregator surface served by the API.
type Oracle interface {
	UpdatePrice(ctx context.Context, caller common.Address) (aggregator.Event, error)
	Price() (*uint256.Int, error)
	LatestRoundData() sources.RoundData
	Decimals() uint8
	Snapshot() aggregator.State

	SetPrimarySource(ctx context.Context, caller common.Address, feed sources.Feed) error
	SetFallbackSource(ctx context.Context, caller common.Address, feed sources.Feed) error
	SetMaxPriceAge(ctx context.Context, caller common.Address, age time.Duration) error
	SetMultiplier(ctx context.Context, caller common.Address, multiplier uint64) error
	SetBounds(ctx context.Context, caller common.Address, upper, lower uint64) error
	SetMinEMAUpdateDelay(ctx context.Context, caller common.Address, delay time.Duration) error
	AddExecutor(ctx context.Context, caller, addr common.Address) error
	RemoveExecutor(ctx context.Context, caller, addr common.Address) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
}

// Server represents the HTTP API server.
type Server struct {
	addr     string
	oracle   Oracle
	catalog  sources.Catalog
	server   *http.Server
	logger   *logging.Logger
	wsServer *WebSocketServer // Optional WebSocket server mounted at /ws
	maxSkew  time.Duration
	replay   *replayGuard
	now      func() time.Time
	tlsCert  string
	tlsKey   string
}

// NewServer creates a new HTTP API server. catalog lists the feeds that admin
// requests may switch to.
func NewServer(addr string, oracle Oracle, catalog sources.Catalog, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:    addr,
		oracle:  oracle,
		catalog: catalog,
		logger:  logger,
		maxSkew: DefaultMaxRequestSkew,
		replay:  newReplayGuard(),
		now:     time.Now,
	}
}

// SetWebSocketServer mounts ws at /ws.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// SetMaxRequestSkew changes how far a signed timestamp may drift from now.
func (s *Server) SetMaxRequestSkew(d time.Duration) {
	if d > 0 {
		s.maxSkew = d
	}
}

// SetTLS makes Start serve HTTPS with the given certificate and key files.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.tlsCert, s.tlsKey = certFile, keyFile
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/price", s.handlePrice)
	mux.HandleFunc("GET /v1/round", s.handleRound)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/update", s.handleUpdate)
	mux.HandleFunc("POST /v1/admin", s.handleAdmin)
	if s.wsServer != nil {
		mux.Handle("/ws", s.wsServer)
	}
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var err error
	if s.tlsCert != "" {
		s.logger.Info("Starting HTTPS server", "addr", s.addr)
		err = s.server.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		s.logger.Info("Starting HTTP server", "addr", s.addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// HealthResponse reports whether the adopted answer is still within the
// freshness window.
type HealthResponse struct {
	Status           string `json:"status"`
	AnswerAgeSeconds int64  `json:"answer_age_seconds"`
	MaxAgeSeconds    int64  `json:"max_age_seconds"`
	PrimarySource    string `json:"primary_source"`
	FallbackSource   string `json:"fallback_source"`
}

// handleHealth handles /health. The service stays up while the answer is
// stale, so the status is reported rather than failed.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	st := s.oracle.Snapshot()
	age := s.now().Unix() - int64(st.LastAnswerUpdateTimestamp)
	resp := HealthResponse{
		Status:           "ok",
		AnswerAgeSeconds: age,
		MaxAgeSeconds:    int64(st.Params.MaxPriceAge / time.Second),
		PrimarySource:    st.PrimarySource,
		FallbackSource:   st.FallbackSource,
	}
	if age > resp.MaxAgeSeconds {
		resp.Status = "stale"
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// PriceResponse is the collateral valuation of one collateral unit.
type PriceResponse struct {
	Price     string `json:"price"`
	Precision int    `json:"precision"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, fmt.Sprint(status), time.Since(start))
	}()

	p, err := s.oracle.Price()
	if err != nil {
		status = s.sendError(w, err)
		return
	}
	params := s.oracle.Snapshot().Params
	s.sendJSON(w, status, PriceResponse{
		Price:     p.Dec(),
		Precision: 36 + int(params.LoanTokenDecimals) - int(params.CollateralTokenDecimals),
	})
}

// RoundResponse is the latest round in wire form.
type RoundResponse struct {
	RoundID         uint64 `json:"round_id"`
	Answer          string `json:"answer"`
	Price           string `json:"price"`
	StartedAt       uint64 `json:"started_at"`
	UpdatedAt       uint64 `json:"updated_at"`
	AnsweredInRound uint64 `json:"answered_in_round"`
	Decimals        uint8  `json:"decimals"`
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, "200", time.Since(start))
	}()

	round := s.oracle.LatestRoundData()
	s.sendJSON(w, http.StatusOK, RoundResponse{
		RoundID:         round.RoundID,
		Answer:          round.Answer.String(),
		Price:           fixedpoint.PriceString(round.Answer),
		StartedAt:       round.StartedAt,
		UpdatedAt:       round.UpdatedAt,
		AnsweredInRound: round.AnsweredInRound,
		Decimals:        s.oracle.Decimals(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, "200", time.Since(start))
	}()

	s.sendJSON(w, http.StatusOK, newStateResponse(s.oracle.Snapshot()))
}

// UpdateRequest triggers one update cycle on behalf of its signer.
type UpdateRequest struct {
	Timestamp int64 `json:"timestamp"`
}

func (r *UpdateRequest) signedAt() int64 { return r.Timestamp }

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		metrics.RecordHTTPRequest(r.URL.Path, fmt.Sprint(status), time.Since(start))
	}()

	var req UpdateRequest
	caller, err := s.authenticate(r, &req)
	if err != nil {
		status = s.sendError(w, err)
		return
	}

	ev, err := s.oracle.UpdatePrice(r.Context(), caller)
	if err != nil {
		status = s.sendError(w, err)
		return
	}
	s.sendJSON(w, status, ev)
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// sendError writes err with its mapped status and returns the status.
func (s *Server) sendError(w http.ResponseWriter, err error) int {
	status := statusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "error", err)
	} else {
		s.logger.Debug("Request rejected", "status", status, "error", err)
	}
	s.sendJSON(w, status, ErrorResponse{Error: err.Error()})
	return status
}
