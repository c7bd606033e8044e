package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
)

var evmLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	evmLog = zerolog.New(out).With().Timestamp().Str("component", "evm").Logger()
}

var weiPerEther = decimal.New(1, 18)

// Client is the subset of ethclient used by the adapter, split out so tests
// can stub the node.
type Client interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config wires one EVM adapter instance.
type Config struct {
	ChainID  string
	Endpoint string
	Network  string
	// EVMChainID is the numeric chain id used for replay-protected signing.
	EVMChainID int64
	// DemoKey is the hex-encoded private key of the demo signer. Empty
	// disables demo mode.
	DemoKey string
}

// Adapter executes swaps on EVM chains. Settlement is a value transfer
// standing in for router-contract calls; the swap routing itself happens in
// the planner against the liquidity snapshot.
type Adapter struct {
	cfg    Config
	client Client
}

// NewAdapter dials the configured JSON-RPC endpoint.
func NewAdapter(cfg Config) (*Adapter, error) {
	client, err := ethclient.Dial(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Endpoint, err)
	}
	return &Adapter{cfg: cfg, client: client}, nil
}

// NewAdapterWithClient injects a client, used by tests.
func NewAdapterWithClient(cfg Config, client Client) *Adapter {
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) ChainID() string {
	if a.cfg.ChainID != "" {
		return a.cfg.ChainID
	}
	return "ethereum"
}

func (a *Adapter) Family() chains.Family { return chains.FamilyEVM }

func (a *Adapter) SupportsPathType(pt models.PathType) bool {
	switch pt {
	case models.PathDirect, models.PathAMM, models.PathBridge:
		return true
	}
	return false
}

func (a *Adapter) SupportedModes() []models.ExecutionMode {
	modes := []models.ExecutionMode{models.ModeLive, models.ModeProduction}
	if a.cfg.DemoKey != "" {
		modes = append([]models.ExecutionMode{models.ModeDemo}, modes...)
	}
	return modes
}

// demoAddress derives the demo signer's address without exposing the key.
func (a *Adapter) demoAddress() (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.DemoKey, "0x"))
	if err != nil {
		return common.Address{}, chains.NewError(models.ErrInvalidConfig, "malformed demo key", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// BuildTransaction assembles an EIP-1559 transaction for the route. The
// payload is the unsigned transaction's RLP encoding in hex.
func (a *Adapter) BuildTransaction(ctx context.Context, route *models.Route, params chains.BuildParams) (*chains.Unsigned, error) {
	var from common.Address
	if params.Mode == models.ModeDemo {
		addr, err := a.demoAddress()
		if err != nil {
			return nil, err
		}
		from = addr
	} else {
		if !common.IsHexAddress(params.WalletAddress) {
			return nil, chains.Errorf(models.ErrInvalidConfig,
				"wallet address %q is not a valid EVM address", params.WalletAddress)
		}
		from = common.HexToAddress(params.WalletAddress)
	}
	to := from

	nonce, err := a.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "nonce lookup failed", err)
	}
	tip, err := a.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "gas tip lookup failed", err)
	}
	head, err := a.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, chains.NewError(models.ErrNetwork, "head lookup failed", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}
	// feeCap = 2*baseFee + tip absorbs base fee growth over a few blocks.
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	value := etherToWei(params.Amount)
	gas, err := a.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
	})
	if err != nil {
		return nil, chains.NewError(models.ErrGasEstimation, "gas estimation failed", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(a.cfg.EVMChainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
	})
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "failed to encode transaction", err)
	}

	maxFeeWei := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas))
	return &chains.Unsigned{
		Payload: "0x" + hex.EncodeToString(raw),
		From:    from.Hex(),
		To:      to.Hex(),
		Fee:     weiToEther(maxFeeWei),
		Extra: map[string]string{
			"nonce":           fmt.Sprintf("%d", nonce),
			"gas":             fmt.Sprintf("%d", gas),
			"max_fee_per_gas": feeCap.String(),
			"chain_id":        fmt.Sprintf("%d", a.cfg.EVMChainID),
			"network":         a.cfg.Network,
		},
	}, nil
}

// SignAndSubmit signs the built transaction with the demo key and broadcasts
// it. The key never leaves this method.
func (a *Adapter) SignAndSubmit(ctx context.Context, unsigned *chains.Unsigned) (*chains.Submitted, error) {
	if a.cfg.DemoKey == "" {
		return nil, chains.Errorf(models.ErrInvalidConfig, "no demo signer configured for %s", a.ChainID())
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.DemoKey, "0x"))
	if err != nil {
		return nil, chains.NewError(models.ErrInvalidConfig, "malformed demo key", err)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(unsigned.Payload, "0x"))
	if err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "malformed unsigned payload", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "failed to decode unsigned payload", err)
	}

	signer := types.LatestSignerForChainID(big.NewInt(a.cfg.EVMChainID))
	signed, err := types.SignTx(&tx, signer, key)
	if err != nil {
		return nil, chains.NewError(models.ErrExecutionFailed, "signing failed", err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return nil, classifySendError(err)
	}

	evmLog.Info().Str("hash", signed.Hash().Hex()).Msg("Transaction submitted")
	return &chains.Submitted{Hash: signed.Hash().Hex(), Fee: unsigned.Fee}, nil
}

// classifySendError maps node rejections onto the error taxonomy. Geth
// reports balance problems only through the error string.
func classifySendError(err error) *chains.Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return chains.NewError(models.ErrInsufficientFunds, "account cannot cover value and gas", err)
	case strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction"):
		return chains.NewError(models.ErrExecutionFailed, "nonce conflict", err)
	default:
		return chains.NewError(models.ErrNetwork, "broadcast failed", err)
	}
}

// AwaitConfirmation polls for the receipt and reports confirmations as
// head - receiptBlock + 1.
func (a *Adapter) AwaitConfirmation(ctx context.Context, hash string) (*chains.Confirmation, error) {
	txHash := common.HexToHash(hash)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := a.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			head, headErr := a.client.HeaderByNumber(ctx, nil)
			confirmations := uint64(1)
			if headErr == nil && head.Number.Cmp(receipt.BlockNumber) >= 0 {
				confirmations = new(big.Int).Sub(head.Number, receipt.BlockNumber).Uint64() + 1
			}
			conf := &chains.Confirmation{
				Confirmed:      receipt.Status == types.ReceiptStatusSuccessful,
				Confirmations:  confirmations,
				LedgerPosition: receipt.BlockNumber.Uint64(),
				Timestamp:      time.Now().UTC(),
			}
			if !conf.Confirmed {
				conf.FailureReason = "transaction reverted"
			}
			return conf, nil
		}
		if err != nil {
			evmLog.Debug().Err(err).Str("hash", hash).Msg("Receipt not yet available")
		}

		select {
		case <-ctx.Done():
			return nil, chains.NewError(models.ErrNetwork,
				fmt.Sprintf("confirmation timed out for %s", hash), ctx.Err())
		case <-ticker.C:
		}
	}
}

func etherToWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiPerEther).Truncate(0).BigInt()
}

func weiToEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
}
