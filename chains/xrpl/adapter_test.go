package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
)

// fakeCaller replays canned results per command and records the requests.
type fakeCaller struct {
	results map[string]string
	errs    map[string]error
	calls   []string
	params  map[string]map[string]any
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		results: map[string]string{},
		errs:    map[string]error{},
		params:  map[string]map[string]any{},
	}
}

func (f *fakeCaller) Call(_ context.Context, command string, params map[string]any, result any) error {
	f.calls = append(f.calls, command)
	f.params[command] = params
	if err, ok := f.errs[command]; ok {
		return err
	}
	body, ok := f.results[command]
	if !ok {
		return errors.New("unexpected command: " + command)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), result)
}

func testConfig() Config {
	return Config{
		ChainID:     "xrpl",
		Endpoint:    "wss://s.altnet.rippletest.net:51233",
		Network:     "testnet",
		DemoAddress: "rDemoAccount111111111111111111111",
		DemoSecret:  "sDemoSecretNeverLogged",
		TokenIssuers: map[string]string{
			"USD": "rIssuerAccount11111111111111111111",
		},
	}
}

func directRoute() *models.Route {
	return &models.Route{
		Chain:          "xrpl",
		PathType:       models.PathDirect,
		TokenIn:        "XRP",
		TokenOut:       "USD",
		AmountIn:       "1000",
		ExpectedOutput: "1992.01",
		Hops:           []models.Hop{{Type: models.HopPool, Chain: "xrpl", Pool: "XRP/USD"}},
	}
}

func TestBuildPaymentTransaction(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["account_info"] = `{"account_data":{"Sequence":42,"Balance":"100000000"}}`
	rpc.results["fee"] = `{"drops":{"open_ledger_fee":"12","base_fee":"10"}}`
	a := newAdapterWithCaller(testConfig(), rpc)

	unsigned, err := a.BuildTransaction(context.Background(), directRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)

	var tx map[string]any
	assert.NoError(t, json.Unmarshal([]byte(unsigned.Payload), &tx))
	assert.Equal(t, "Payment", tx["TransactionType"])
	assert.Equal(t, tx["Account"], tx["Destination"])
	assert.Equal(t, "1000000000", tx["SendMax"])
	amount := tx["Amount"].(map[string]any)
	assert.Equal(t, "USD", amount["currency"])
	assert.Equal(t, "1992.01", amount["value"])
	assert.Equal(t, float64(42), tx["Sequence"])
	assert.Equal(t, "42", unsigned.Extra["sequence"])
}

func TestBuildOfferCreate(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["account_info"] = `{"account_data":{"Sequence":7,"Balance":"100000000"}}`
	rpc.results["fee"] = `{"drops":{"open_ledger_fee":"15"}}`
	a := newAdapterWithCaller(testConfig(), rpc)

	route := directRoute()
	route.PathType = models.PathOrderBook
	unsigned, err := a.BuildTransaction(context.Background(), route, chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.NewFromInt(1000),
	})
	assert.NoError(t, err)

	var tx map[string]any
	assert.NoError(t, json.Unmarshal([]byte(unsigned.Payload), &tx))
	assert.Equal(t, "OfferCreate", tx["TransactionType"])
	assert.Equal(t, "1000000000", tx["TakerGets"])
	takerPays := tx["TakerPays"].(map[string]any)
	assert.Equal(t, "USD", takerPays["currency"])
}

func TestBuildRejectsUnknownIssuer(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["account_info"] = `{"account_data":{"Sequence":1}}`
	rpc.results["fee"] = `{"drops":{"base_fee":"10"}}`
	a := newAdapterWithCaller(testConfig(), rpc)

	route := directRoute()
	route.TokenOut = "EUR"
	_, err := a.BuildTransaction(context.Background(), route, chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.NewFromInt(10),
	})
	assert.Error(t, err)
	assert.Equal(t, models.ErrInvalidConfig, chains.AsError(err).Code)
}

func TestBuildNetworkFailure(t *testing.T) {
	rpc := newFakeCaller()
	rpc.errs["account_info"] = errors.New("dial tcp: connection refused")
	a := newAdapterWithCaller(testConfig(), rpc)

	_, err := a.BuildTransaction(context.Background(), directRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.NewFromInt(10),
	})
	assert.Error(t, err)
	assert.Equal(t, models.ErrNetwork, chains.AsError(err).Code)
}

func TestSignAndSubmitSuccess(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["submit"] = `{"engine_result":"tesSUCCESS","tx_json":{"hash":"ABC123"}}`
	a := newAdapterWithCaller(testConfig(), rpc)

	submitted, err := a.SignAndSubmit(context.Background(), &chains.Unsigned{
		Payload: `{"TransactionType":"Payment"}`,
	})
	assert.NoError(t, err)
	assert.Equal(t, "ABC123", submitted.Hash)
	assert.Equal(t, "sDemoSecretNeverLogged", rpc.params["submit"]["secret"])
}

func TestSignAndSubmitUnfunded(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["submit"] = `{"engine_result":"tecUNFUNDED_PAYMENT","engine_result_message":"insufficient balance"}`
	a := newAdapterWithCaller(testConfig(), rpc)

	_, err := a.SignAndSubmit(context.Background(), &chains.Unsigned{
		Payload: `{"TransactionType":"Payment"}`,
	})
	assert.Error(t, err)
	chainErr := chains.AsError(err)
	assert.Equal(t, models.ErrInsufficientFunds, chainErr.Code)
	assert.Equal(t, "tecUNFUNDED_PAYMENT", chainErr.Details["engine_result"])
}

func TestSignAndSubmitWithoutSigner(t *testing.T) {
	cfg := testConfig()
	cfg.DemoSecret = ""
	a := newAdapterWithCaller(cfg, newFakeCaller())

	_, err := a.SignAndSubmit(context.Background(), &chains.Unsigned{Payload: "{}"})
	assert.Error(t, err)
	assert.Equal(t, models.ErrInvalidConfig, chains.AsError(err).Code)
}

func TestAwaitConfirmationValidated(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["tx"] = `{
		"validated": true,
		"ledger_index": 900123,
		"meta": {
			"TransactionResult": "tesSUCCESS",
			"AffectedNodes": [
				{"ModifiedNode": {
					"LedgerEntryType": "AccountRoot",
					"FinalFields": {"Account": "rDemo", "Balance": "99000000"},
					"PreviousFields": {"Balance": "100000000"}
				}}
			]
		}
	}`
	a := newAdapterWithCaller(testConfig(), rpc)

	conf, err := a.AwaitConfirmation(context.Background(), "ABC123")
	assert.NoError(t, err)
	assert.True(t, conf.Confirmed)
	assert.Equal(t, uint64(1), conf.Confirmations)
	assert.Equal(t, uint64(900123), conf.LedgerPosition)
	assert.Equal(t, "-1", conf.BalanceChanges["rDemo:XRP"])
}

func TestAwaitConfirmationFailedResult(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["tx"] = `{"validated": true, "ledger_index": 5, "meta": {"TransactionResult": "tecPATH_DRY"}}`
	a := newAdapterWithCaller(testConfig(), rpc)

	conf, err := a.AwaitConfirmation(context.Background(), "DEF456")
	assert.NoError(t, err)
	assert.False(t, conf.Confirmed)
	assert.Equal(t, "tecPATH_DRY", conf.FailureReason)
}

func TestAwaitConfirmationTimeout(t *testing.T) {
	rpc := newFakeCaller()
	rpc.results["tx"] = `{"validated": false}`
	a := newAdapterWithCaller(testConfig(), rpc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.AwaitConfirmation(ctx, "GHI789")
	assert.Error(t, err)
	assert.Equal(t, models.ErrNetwork, chains.AsError(err).Code)
}

func TestSupportedPathTypes(t *testing.T) {
	a := newAdapterWithCaller(testConfig(), newFakeCaller())
	assert.True(t, a.SupportsPathType(models.PathDirect))
	assert.True(t, a.SupportsPathType(models.PathAMM))
	assert.True(t, a.SupportsPathType(models.PathOrderBook))
	assert.False(t, a.SupportsPathType(models.PathSynthetic))
	assert.False(t, a.SupportsPathType(models.PathBridge))
}

func TestSupportedModesWithoutDemoSigner(t *testing.T) {
	cfg := testConfig()
	cfg.DemoAddress = ""
	cfg.DemoSecret = ""
	a := newAdapterWithCaller(cfg, newFakeCaller())

	modes := a.SupportedModes()
	assert.Equal(t, 2, len(modes))
	for _, m := range modes {
		assert.True(t, m != models.ModeDemo)
	}
}
