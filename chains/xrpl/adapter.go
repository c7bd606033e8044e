package xrpl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
)

// dropsPerXRP converts between XRP and the ledger's integer drop unit.
var dropsPerXRP = decimal.NewFromInt(1_000_000)

// tfPartialPayment lets a cross-currency payment deliver less than Amount
// when the path cannot fill it completely.
const tfPartialPayment = 0x00020000

// Config wires one XRPL adapter instance.
type Config struct {
	ChainID  string
	Endpoint string
	Network  string
	// DemoAddress and DemoSecret identify the server-held demo signer.
	// Both empty disables demo mode for this chain.
	DemoAddress string
	DemoSecret  string
	// TokenIssuers maps issued-currency codes to their issuer accounts.
	TokenIssuers map[string]string
}

// Adapter executes swaps on the XRP Ledger. Direct and AMM paths settle as
// cross-currency self-payments; order book paths settle as OfferCreate.
type Adapter struct {
	cfg Config
	rpc commandCaller
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, rpc: NewClient(cfg.Endpoint)}
}

// newAdapterWithCaller is the test seam.
func newAdapterWithCaller(cfg Config, rpc commandCaller) *Adapter {
	return &Adapter{cfg: cfg, rpc: rpc}
}

func (a *Adapter) ChainID() string {
	if a.cfg.ChainID != "" {
		return a.cfg.ChainID
	}
	return "xrpl"
}

func (a *Adapter) Family() chains.Family { return chains.FamilyXRPL }

func (a *Adapter) SupportsPathType(pt models.PathType) bool {
	switch pt {
	case models.PathDirect, models.PathAMM, models.PathOrderBook:
		return true
	}
	return false
}

func (a *Adapter) SupportedModes() []models.ExecutionMode {
	modes := []models.ExecutionMode{models.ModeLive, models.ModeProduction}
	if a.cfg.DemoAddress != "" && a.cfg.DemoSecret != "" {
		modes = append([]models.ExecutionMode{models.ModeDemo}, modes...)
	}
	return modes
}

// currencyAmount renders a token amount in XRPL wire form: a drop string for
// XRP, a currency/issuer/value object for issued currencies.
func (a *Adapter) currencyAmount(token string, amount decimal.Decimal) (any, error) {
	if token == "XRP" {
		return amount.Mul(dropsPerXRP).Truncate(0).String(), nil
	}
	issuer, ok := a.cfg.TokenIssuers[token]
	if !ok {
		return nil, chains.Errorf(models.ErrInvalidConfig,
			"no issuer configured for token %s on %s", token, a.ChainID())
	}
	return map[string]any{
		"currency": token,
		"issuer":   issuer,
		"value":    amount.String(),
	}, nil
}

type accountInfoResult struct {
	AccountData struct {
		Sequence uint32 `json:"Sequence"`
		Balance  string `json:"Balance"`
	} `json:"account_data"`
}

type feeResult struct {
	Drops struct {
		OpenLedgerFee string `json:"open_ledger_fee"`
		BaseFee       string `json:"base_fee"`
	} `json:"drops"`
}

// BuildTransaction assembles the tx_json for the route. The payload is the
// JSON document rippled expects under submit's tx_json key.
func (a *Adapter) BuildTransaction(ctx context.Context, route *models.Route, params chains.BuildParams) (*chains.Unsigned, error) {
	account := params.WalletAddress
	if params.Mode == models.ModeDemo {
		account = a.cfg.DemoAddress
	}
	if account == "" {
		return nil, chains.Errorf(models.ErrInvalidConfig, "no signing account for %s execution", params.Mode)
	}

	var info accountInfoResult
	err := a.rpc.Call(ctx, "account_info", map[string]any{
		"account":      account,
		"ledger_index": "current",
	}, &info)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "account_info failed", err)
	}

	var fees feeResult
	if err := a.rpc.Call(ctx, "fee", nil, &fees); err != nil {
		return nil, chains.NewError(models.ErrNetwork, "fee lookup failed", err)
	}
	feeDrops := fees.Drops.OpenLedgerFee
	if feeDrops == "" {
		feeDrops = fees.Drops.BaseFee
	}
	if feeDrops == "" {
		feeDrops = "12"
	}

	amountOut, err := decimal.NewFromString(route.ExpectedOutput)
	if err != nil {
		return nil, chains.NewError(models.ErrInvalidConfig, "malformed expected output", err)
	}

	var txJSON map[string]any
	switch route.PathType {
	case models.PathDirect, models.PathAMM:
		// A cross-currency payment to self: rippled routes through the
		// order books and AMM pools to convert SendMax into Amount.
		deliver, err := a.currencyAmount(route.TokenOut, amountOut)
		if err != nil {
			return nil, err
		}
		sendMax, err := a.currencyAmount(route.TokenIn, params.Amount)
		if err != nil {
			return nil, err
		}
		txJSON = map[string]any{
			"TransactionType": "Payment",
			"Account":         account,
			"Destination":     account,
			"Amount":          deliver,
			"SendMax":         sendMax,
			"Flags":           tfPartialPayment,
			"Sequence":        info.AccountData.Sequence,
			"Fee":             feeDrops,
		}
	case models.PathOrderBook:
		takerPays, err := a.currencyAmount(route.TokenOut, amountOut)
		if err != nil {
			return nil, err
		}
		takerGets, err := a.currencyAmount(route.TokenIn, params.Amount)
		if err != nil {
			return nil, err
		}
		txJSON = map[string]any{
			"TransactionType": "OfferCreate",
			"Account":         account,
			"TakerPays":       takerPays,
			"TakerGets":       takerGets,
			"Sequence":        info.AccountData.Sequence,
			"Fee":             feeDrops,
		}
	default:
		return nil, chains.Errorf(models.ErrUnsupportedPathType,
			"path type %s cannot settle on %s", route.PathType, a.ChainID())
	}

	payload, err := json.Marshal(txJSON)
	if err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "failed to encode tx_json", err)
	}
	feeXRP, _ := decimal.NewFromString(feeDrops)

	return &chains.Unsigned{
		Payload: string(payload),
		From:    account,
		To:      account,
		Fee:     feeXRP.Div(dropsPerXRP),
		Extra: map[string]string{
			"sequence":  fmt.Sprintf("%d", info.AccountData.Sequence),
			"fee_drops": feeDrops,
			"network":   a.cfg.Network,
		},
	}, nil
}

type submitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
}

// SignAndSubmit submits via rippled's sign-and-submit form with the demo
// secret. The secret travels only to the configured endpoint, never into
// logs, results or errors.
func (a *Adapter) SignAndSubmit(ctx context.Context, unsigned *chains.Unsigned) (*chains.Submitted, error) {
	if a.cfg.DemoSecret == "" {
		return nil, chains.Errorf(models.ErrInvalidConfig, "no demo signer configured for %s", a.ChainID())
	}

	var txJSON map[string]any
	if err := json.Unmarshal([]byte(unsigned.Payload), &txJSON); err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "malformed unsigned payload", err)
	}

	var res submitResult
	err := a.rpc.Call(ctx, "submit", map[string]any{
		"tx_json": txJSON,
		"secret":  a.cfg.DemoSecret,
	}, &res)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "submit failed", err)
	}

	if !strings.HasPrefix(res.EngineResult, "tes") {
		return nil, classifyEngineResult(res.EngineResult, res.EngineResultMessage)
	}

	xrplLog.Info().Str("hash", res.TxJSON.Hash).Str("engineResult", res.EngineResult).
		Msg("Transaction submitted")
	return &chains.Submitted{Hash: res.TxJSON.Hash, Fee: unsigned.Fee}, nil
}

// classifyEngineResult maps rippled engine results onto the error taxonomy.
func classifyEngineResult(code, message string) *chains.Error {
	e := &chains.Error{
		Message: fmt.Sprintf("submit rejected: %s", message),
		Details: map[string]any{"engine_result": code},
	}
	switch {
	case code == "tecUNFUNDED_PAYMENT" || code == "tecUNFUNDED_OFFER" || code == "terINSUF_FEE_B":
		e.Code = models.ErrInsufficientFunds
	default:
		e.Code = models.ErrExecutionFailed
	}
	return e
}

type txResult struct {
	Validated   bool            `json:"validated"`
	LedgerIndex uint64          `json:"ledger_index"`
	Meta        json.RawMessage `json:"meta"`
	Date        int64           `json:"date"`
}

// AwaitConfirmation polls the tx method until the transaction appears in a
// validated ledger. XRPL validation is final: one validated ledger is the
// terminal state, reported as a single confirmation.
func (a *Adapter) AwaitConfirmation(ctx context.Context, hash string) (*chains.Confirmation, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var res txResult
		err := a.rpc.Call(ctx, "tx", map[string]any{"transaction": hash}, &res)
		if err == nil && res.Validated {
			meta := parseMeta(res.Meta)
			conf := &chains.Confirmation{
				Confirmed:      meta.TransactionResult == "tesSUCCESS",
				Confirmations:  1,
				LedgerPosition: res.LedgerIndex,
				BalanceChanges: meta.balanceChanges(),
				Timestamp:      time.Now().UTC(),
			}
			if !conf.Confirmed {
				conf.FailureReason = meta.TransactionResult
			}
			return conf, nil
		}
		if err != nil {
			// txnNotFound is expected until the ledger closes; anything
			// else is still worth retrying inside the caller's deadline.
			xrplLog.Debug().Err(err).Str("hash", hash).Msg("Transaction not yet validated")
		}

		select {
		case <-ctx.Done():
			return nil, chains.NewError(models.ErrNetwork,
				fmt.Sprintf("confirmation timed out for %s", hash), ctx.Err())
		case <-ticker.C:
		}
	}
}
