package solana

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
)

var lamportsPerSOL = decimal.New(1, 9)

// fallbackFeeLamports is the flat per-signature fee used when the node
// cannot price the message.
const fallbackFeeLamports = 5000

// Config wires one Solana adapter instance.
type Config struct {
	ChainID  string
	Endpoint string
	Network  string
	// DemoAddress is the funded devnet account demo executions run as.
	// The server never holds its key: demo settlement is a node-side
	// simulation of the built transaction.
	DemoAddress string
}

// Adapter executes swaps on Solana. Settlement is a System transfer standing
// in for on-chain program calls; demo mode simulates instead of broadcasting
// because no private key is ever configured.
type Adapter struct {
	cfg Config
	rpc rpcCaller

	mu        sync.Mutex
	simulated map[string]uint64 // simulated hash -> slot
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		cfg:       cfg,
		rpc:       NewRPCClient(cfg.Endpoint),
		simulated: make(map[string]uint64),
	}
}

func newAdapterWithCaller(cfg Config, rpc rpcCaller) *Adapter {
	return &Adapter{cfg: cfg, rpc: rpc, simulated: make(map[string]uint64)}
}

func (a *Adapter) ChainID() string {
	if a.cfg.ChainID != "" {
		return a.cfg.ChainID
	}
	return "solana"
}

func (a *Adapter) Family() chains.Family { return chains.FamilySolana }

func (a *Adapter) SupportsPathType(pt models.PathType) bool {
	switch pt {
	case models.PathDirect, models.PathAMM:
		return true
	}
	return false
}

func (a *Adapter) SupportedModes() []models.ExecutionMode {
	modes := []models.ExecutionMode{models.ModeLive, models.ModeProduction}
	if a.cfg.DemoAddress != "" {
		modes = append([]models.ExecutionMode{models.ModeDemo}, modes...)
	}
	return modes
}

type blockhashResult struct {
	Value struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

type feeResult struct {
	Value *uint64 `json:"value"`
}

// BuildTransaction assembles the legacy transfer message for the route. The
// payload is the base64 message bytes external signers sign directly.
func (a *Adapter) BuildTransaction(ctx context.Context, route *models.Route, params chains.BuildParams) (*chains.Unsigned, error) {
	address := params.WalletAddress
	if params.Mode == models.ModeDemo {
		address = a.cfg.DemoAddress
	}
	if address == "" {
		return nil, chains.Errorf(models.ErrInvalidConfig, "no signing account for %s execution", params.Mode)
	}
	owner, err := decodePubkey(address)
	if err != nil {
		return nil, chains.NewError(models.ErrInvalidConfig, "invalid account address", err)
	}

	var bh blockhashResult
	err = a.rpc.Call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": "confirmed"}}, &bh)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "blockhash lookup failed", err)
	}
	blockhashRaw, err := base58.Decode(bh.Value.Blockhash)
	if err != nil || len(blockhashRaw) != 32 {
		return nil, chains.Errorf(models.ErrNetwork, "node returned malformed blockhash %q", bh.Value.Blockhash)
	}
	var blockhash [32]byte
	copy(blockhash[:], blockhashRaw)

	lamports := params.Amount.Mul(lamportsPerSOL).Truncate(0)
	if !lamports.IsPositive() {
		return nil, chains.Errorf(models.ErrInvalidConfig, "amount %s is below one lamport", params.Amount)
	}
	message := buildTransferMessage(owner, owner, uint64(lamports.IntPart()), blockhash)
	messageB64 := base64.StdEncoding.EncodeToString(message)

	fee := uint64(fallbackFeeLamports)
	var feeRes feeResult
	err = a.rpc.Call(ctx, "getFeeForMessage", []any{messageB64, map[string]any{"commitment": "confirmed"}}, &feeRes)
	if err != nil {
		solLog.Debug().Err(err).Msg("Fee lookup failed, using flat per-signature fee")
	} else if feeRes.Value != nil {
		fee = *feeRes.Value
	}

	var balance balanceResult
	err = a.rpc.Call(ctx, "getBalance", []any{address, map[string]any{"commitment": "confirmed"}}, &balance)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "balance lookup failed", err)
	}
	required := uint64(lamports.IntPart()) + fee
	if balance.Value < required {
		return nil, &chains.Error{
			Code:    models.ErrInsufficientFunds,
			Message: "account cannot cover transfer and fee",
			Details: map[string]any{
				"balance_lamports":  balance.Value,
				"required_lamports": required,
			},
		}
	}

	return &chains.Unsigned{
		Payload: messageB64,
		From:    address,
		To:      address,
		Fee:     decimal.NewFromUint64(fee).Div(lamportsPerSOL),
		Extra: map[string]string{
			"recent_blockhash":        bh.Value.Blockhash,
			"last_valid_block_height": fmt.Sprintf("%d", bh.Value.LastValidBlockHeight),
			"lamports":                lamports.String(),
			"network":                 a.cfg.Network,
		},
	}, nil
}

type simulateResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value struct {
		Err  any      `json:"err"`
		Logs []string `json:"logs"`
	} `json:"value"`
}

// SignAndSubmit runs demo settlement: the node simulates the message against
// current state and a deterministic pseudo-hash stands in for a signature.
// No key exists server-side, so nothing is ever broadcast.
func (a *Adapter) SignAndSubmit(ctx context.Context, unsigned *chains.Unsigned) (*chains.Submitted, error) {
	if a.cfg.DemoAddress == "" {
		return nil, chains.Errorf(models.ErrInvalidConfig, "no demo account configured for %s", a.ChainID())
	}

	message, err := base64.StdEncoding.DecodeString(unsigned.Payload)
	if err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "malformed unsigned payload", err)
	}

	// Wrap the message in a transaction with one zeroed signature slot;
	// sigVerify off lets the node execute it anyway.
	tx := appendCompactU16(nil, 1)
	tx = append(tx, make([]byte, 64)...)
	tx = append(tx, message...)

	var res simulateResult
	err = a.rpc.Call(ctx, "simulateTransaction", []any{
		base64.StdEncoding.EncodeToString(tx),
		map[string]any{"encoding": "base64", "sigVerify": false, "replaceRecentBlockhash": true},
	}, &res)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "simulation request failed", err)
	}
	if res.Value.Err != nil {
		return nil, &chains.Error{
			Code:    models.ErrExecutionFailed,
			Message: "simulation rejected the transaction",
			Details: map[string]any{"simulation_error": fmt.Sprintf("%v", res.Value.Err)},
		}
	}

	digest := sha256.Sum256(message)
	hash := "SIM" + base58.Encode(digest[:])

	a.mu.Lock()
	a.simulated[hash] = res.Context.Slot
	a.mu.Unlock()

	solLog.Info().Str("hash", hash).Uint64("slot", res.Context.Slot).Msg("Simulation accepted")
	return &chains.Submitted{Hash: hash, Fee: unsigned.Fee}, nil
}

type signatureStatusesResult struct {
	Value []*struct {
		Slot               uint64  `json:"slot"`
		Confirmations      *uint64 `json:"confirmations"`
		ConfirmationStatus string  `json:"confirmationStatus"`
		Err                any     `json:"err"`
	} `json:"value"`
}

// AwaitConfirmation resolves simulated demo hashes immediately and polls
// getSignatureStatuses for everything else.
func (a *Adapter) AwaitConfirmation(ctx context.Context, hash string) (*chains.Confirmation, error) {
	a.mu.Lock()
	slot, isSimulated := a.simulated[hash]
	if isSimulated {
		delete(a.simulated, hash)
	}
	a.mu.Unlock()
	if isSimulated {
		return &chains.Confirmation{
			Confirmed:      true,
			Confirmations:  1,
			LedgerPosition: slot,
			Timestamp:      time.Now().UTC(),
		}, nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var res signatureStatusesResult
		err := a.rpc.Call(ctx, "getSignatureStatuses",
			[]any{[]string{hash}, map[string]any{"searchTransactionHistory": true}}, &res)
		if err == nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return &chains.Confirmation{
					Confirmed:      false,
					LedgerPosition: status.Slot,
					FailureReason:  fmt.Sprintf("%v", status.Err),
					Timestamp:      time.Now().UTC(),
				}, nil
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				confirmations := uint64(1)
				if status.Confirmations != nil {
					confirmations = *status.Confirmations
				}
				return &chains.Confirmation{
					Confirmed:      true,
					Confirmations:  confirmations,
					LedgerPosition: status.Slot,
					Timestamp:      time.Now().UTC(),
				}, nil
			}
		}
		if err != nil {
			solLog.Debug().Err(err).Str("hash", hash).Msg("Signature status not yet available")
		}

		select {
		case <-ctx.Done():
			return nil, chains.NewError(models.ErrNetwork,
				fmt.Sprintf("confirmation timed out for %s", hash), ctx.Err())
		case <-ticker.C:
		}
	}
}
