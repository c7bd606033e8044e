package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/engine"
	"github.com/wayfinder-exchange/wayfinder/models"
	"github.com/wayfinder-exchange/wayfinder/oracle"
	"github.com/wayfinder-exchange/wayfinder/planner"
)

// Handler serves the JSON API over the engine, oracle and planner.
type Handler struct {
	svc     *engine.Service
	oracle  *oracle.Oracle
	planner *planner.Planner
}

func NewHandler(svc *engine.Service, o *oracle.Oracle, p *planner.Planner) *Handler {
	return &Handler{svc: svc, oracle: o, planner: p}
}

type errorBody struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	Message   string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	writeJSON(w, status, errorBody{ErrorCode: code, Message: message})
}

// Execute runs a swap end to end. The body is a models.ExecutionRequest; the
// response is always a models.ExecutionResult, HTTP 200 whether the
// execution succeeded or failed, so clients branch on the error code alone.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req models.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrExecutionFailed, "malformed request body")
		return
	}

	started := time.Now()
	result := h.svc.Execute(r.Context(), req)

	executionsTotal.WithLabelValues(result.Chain, executionOutcome(result.Success, string(result.ErrorCode))).Inc()
	executionDuration.WithLabelValues(result.Chain).Observe(time.Since(started).Seconds())

	writeJSON(w, http.StatusOK, result)
}

// FindRoute plans without executing.
func (h *Handler) FindRoute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrExecutionFailed, "malformed request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, models.ErrExecutionFailed, "amount must be a positive decimal")
		return
	}

	route := h.planner.FindBestRoute(planner.Request{
		Base:      req.Base,
		Quote:     req.Quote,
		Amount:    amount,
		Side:      req.Side,
		FromChain: req.FromChain,
		ToChain:   req.ToChain,
		Mode:      req.Mode,
	})
	if route == nil {
		routeLookupsTotal.WithLabelValues("no_route").Inc()
		writeError(w, http.StatusNotFound, models.ErrNoRoute, "no route found for pair")
		return
	}
	routeLookupsTotal.WithLabelValues("found").Inc()
	writeJSON(w, http.StatusOK, route)
}

type poolView struct {
	Chain     string `json:"chain"`
	Pool      string `json:"pool"`
	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
	Fee       string `json:"fee"`
	SpotPrice string `json:"spot_price"`
	Enabled   bool   `json:"enabled"`
	Depth     string `json:"depth,omitempty"`
}

// Pools lists the snapshot's pools, optionally filtered by ?chain=.
func (h *Handler) Pools(w http.ResponseWriter, r *http.Request) {
	pools := h.oracle.Pools(r.URL.Query().Get("chain"))
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, poolView{
			Chain:     p.Chain,
			Pool:      p.ID(),
			Reserve0:  p.Reserve0.String(),
			Reserve1:  p.Reserve1.String(),
			Fee:       p.Fee.String(),
			SpotPrice: p.SpotPrice().String(),
			Enabled:   p.Enabled,
			Depth:     p.Depth,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_version": h.oracle.Version(),
		"pools":            views,
	})
}

// Depth returns the market depth ladder for ?chain=&token_in=&token_out=.
func (h *Handler) Depth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, ok := h.oracle.GetMarketDepth(q.Get("chain"), q.Get("token_in"), q.Get("token_out"))
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrNoRoute, "no pool for pair on chain")
		return
	}
	writeJSON(w, http.StatusOK, depth)
}

// Slippage returns the slippage curve for ?chain=&token_in=&token_out=,
// with an optional ?points=.
func (h *Handler) Slippage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	points := 0
	if raw := q.Get("points"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, models.ErrExecutionFailed, "points must be a non-negative integer")
			return
		}
		points = parsed
	}
	curve, ok := h.oracle.GetSlippageCurve(q.Get("chain"), q.Get("token_in"), q.Get("token_out"), points)
	if !ok {
		writeError(w, http.StatusNotFound, models.ErrNoRoute, "no pool for pair on chain")
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// Reload swaps in a fresh liquidity snapshot from the configured source.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.oracle.Reload(); err != nil {
		snapshotReloadsTotal.WithLabelValues("failure").Inc()
		writeError(w, http.StatusInternalServerError, models.ErrInvalidConfig, "snapshot reload failed, previous snapshot kept")
		return
	}
	snapshotReloadsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "reloaded",
		"snapshot_version": h.oracle.Version(),
	})
}
