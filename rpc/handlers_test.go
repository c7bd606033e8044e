package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/engine"
	"github.com/wayfinder-exchange/wayfinder/models"
	"github.com/wayfinder-exchange/wayfinder/oracle"
	"github.com/wayfinder-exchange/wayfinder/planner"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type stubAdapter struct{}

func (stubAdapter) ChainID() string                          { return "xrpl" }
func (stubAdapter) Family() chains.Family                    { return chains.FamilyXRPL }
func (stubAdapter) SupportsPathType(pt models.PathType) bool { return pt == models.PathDirect }
func (stubAdapter) SupportedModes() []models.ExecutionMode {
	return []models.ExecutionMode{models.ModeDemo, models.ModeLive, models.ModeProduction}
}

func (stubAdapter) BuildTransaction(context.Context, *models.Route, chains.BuildParams) (*chains.Unsigned, error) {
	return &chains.Unsigned{
		Payload: "{}",
		From:    "rSigner",
		To:      "rSigner",
		Fee:     dec("0.000012"),
		Extra:   map[string]string{"network": "testnet"},
	}, nil
}

func (stubAdapter) SignAndSubmit(context.Context, *chains.Unsigned) (*chains.Submitted, error) {
	return &chains.Submitted{Hash: "HASH1", Fee: dec("0.000012")}, nil
}

func (stubAdapter) AwaitConfirmation(context.Context, string) (*chains.Confirmation, error) {
	return &chains.Confirmation{Confirmed: true, Confirmations: 1, LedgerPosition: 10}, nil
}

func testRouter() (*chi.Mux, *oracle.Oracle) {
	o := oracle.NewStatic(oracle.SnapshotData{
		Pools: []oracle.Pool{
			{
				Chain:    "xrpl",
				Token0:   "XRP",
				Token1:   "USD",
				Reserve0: dec("1000000"),
				Reserve1: dec("2000000"),
				Fee:      dec("0.003"),
				Enabled:  true,
			},
		},
	})
	p := planner.New(o)
	registry := chains.NewRegistry()
	registry.Register(stubAdapter{})
	svc := engine.New(p, registry, engine.Config{Enabled: true})

	api := NewHandler(svc, o, p)
	mux := chi.NewMux()
	mux.Route("/v1", func(r chi.Router) {
		r.Post("/execute", api.Execute)
		r.Post("/routes", api.FindRoute)
		r.Get("/pools", api.Pools)
		r.Get("/depth", api.Depth)
		r.Get("/slippage", api.Slippage)
	})
	mux.Post("/admin/reload", api.Reload)
	return mux, o
}

func TestExecuteEndpoint(t *testing.T) {
	mux, _ := testRouter()

	body := `{"base":"XRP","quote":"USD","amount":"1000","side":"sell","execution_mode":"demo"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var result models.ExecutionResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "xrpl", result.Chain)
	assert.Equal(t, models.SettlementConfirmed, result.Settlement.Status)
}

func TestExecuteEndpointFailureStillOK(t *testing.T) {
	mux, _ := testRouter()

	// unknown pair: failures travel in the result body, not the HTTP status
	body := `{"base":"DOGE","quote":"PEPE","amount":"5","side":"sell","execution_mode":"demo"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var result models.ExecutionResult
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, models.ErrNoRoute, result.ErrorCode)
}

func TestExecuteEndpointBadBody(t *testing.T) {
	mux, _ := testRouter()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/execute", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var e errorBody
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, models.ErrExecutionFailed, e.ErrorCode)
}

func TestRoutesEndpoint(t *testing.T) {
	mux, _ := testRouter()

	body := `{"base":"XRP","quote":"USD","amount":"1000","side":"sell"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routes", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var route models.Route
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	assert.Equal(t, models.PathDirect, route.PathType)
	assert.Equal(t, "xrpl", route.Chain)
}

func TestRoutesEndpointNoRoute(t *testing.T) {
	mux, _ := testRouter()

	body := `{"base":"DOGE","quote":"PEPE","amount":"5","side":"sell"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routes", strings.NewReader(body)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var e errorBody
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, models.ErrNoRoute, e.ErrorCode)
}

func TestRoutesEndpointRejectsBadAmount(t *testing.T) {
	mux, _ := testRouter()

	body := `{"base":"XRP","quote":"USD","amount":"-1","side":"sell"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/routes", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var e errorBody
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, models.ErrExecutionFailed, e.ErrorCode)
}

func TestPoolsEndpoint(t *testing.T) {
	mux, _ := testRouter()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/pools?chain=xrpl", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SnapshotVersion uint64     `json:"snapshot_version"`
		Pools           []poolView `json:"pools"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, len(body.Pools))
	assert.Equal(t, "XRP/USD", body.Pools[0].Pool)
	assert.Equal(t, "2", body.Pools[0].SpotPrice)
}

func TestDepthEndpoint(t *testing.T) {
	mux, _ := testRouter()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/depth?chain=xrpl&token_in=XRP&token_out=USD", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var depth oracle.MarketDepth
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &depth))
	assert.Equal(t, 5, len(depth.Levels))
}

func TestSlippageEndpoint(t *testing.T) {
	mux, _ := testRouter()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/slippage?chain=xrpl&token_in=XRP&token_out=USD&points=4", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var curve oracle.SlippageCurve
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &curve))
	assert.Equal(t, 4, len(curve.Points))
}

func TestSlippageEndpointUnknownPool(t *testing.T) {
	mux, _ := testRouter()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/slippage?chain=xrpl&token_in=DOGE&token_out=PEPE", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadEndpointWithoutSource(t *testing.T) {
	mux, o := testRouter()

	// a static oracle has no source file; reload is a no-op that keeps
	// the current snapshot
	before := o.Version()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before, o.Version())
}
