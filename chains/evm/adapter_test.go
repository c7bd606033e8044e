package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
)

// hardhat's first development account, safe to hardcode in tests.
const testDemoKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testDemoAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type stubClient struct {
	nonce       uint64
	tip         *big.Int
	baseFee     *big.Int
	gas         uint64
	gasErr      error
	sendErr     error
	sent        *types.Transaction
	receipt     *types.Receipt
	receiptErr  error
	headNumber  *big.Int
	rpcErr      error
}

func (s *stubClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return s.nonce, s.rpcErr
}

func (s *stubClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return s.tip, s.rpcErr
}

func (s *stubClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if s.rpcErr != nil {
		return nil, s.rpcErr
	}
	return &types.Header{Number: s.headNumber, BaseFee: s.baseFee}, nil
}

func (s *stubClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if s.gasErr != nil {
		return 0, s.gasErr
	}
	return s.gas, nil
}

func (s *stubClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = tx
	return nil
}

func (s *stubClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return s.receipt, s.receiptErr
}

func healthyStub() *stubClient {
	return &stubClient{
		nonce:      7,
		tip:        big.NewInt(2_000_000_000),
		baseFee:    big.NewInt(10_000_000_000),
		gas:        21000,
		headNumber: big.NewInt(1000),
	}
}

func testAdapter(client Client) *Adapter {
	return NewAdapterWithClient(Config{
		ChainID:    "ethereum",
		Network:    "sepolia",
		EVMChainID: 11155111,
		DemoKey:    testDemoKey,
	}, client)
}

func evmRoute() *models.Route {
	return &models.Route{
		Chain:          "ethereum",
		PathType:       models.PathDirect,
		TokenIn:        "ETH",
		TokenOut:       "USDC",
		AmountIn:       "0.5",
		ExpectedOutput: "1500",
		Hops:           []models.Hop{{Type: models.HopPool, Chain: "ethereum", Pool: "ETH/USDC"}},
	}
}

func TestBuildTransactionDemo(t *testing.T) {
	client := healthyStub()
	a := testAdapter(client)

	unsigned, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	assert.Equal(t, testDemoAddr, unsigned.From)
	assert.Equal(t, unsigned.From, unsigned.To)
	assert.Equal(t, "7", unsigned.Extra["nonce"])
	assert.Equal(t, "21000", unsigned.Extra["gas"])
	// feeCap = 2*baseFee + tip = 22 gwei
	assert.Equal(t, "22000000000", unsigned.Extra["max_fee_per_gas"])

	var tx types.Transaction
	require.NoError(t, tx.UnmarshalBinary(common.FromHex(unsigned.Payload)))
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, big.NewInt(500_000_000_000_000_000), tx.Value())
}

func TestBuildTransactionLiveWallet(t *testing.T) {
	a := testAdapter(healthyStub())

	wallet := "0x000000000000000000000000000000000000dEaD"
	unsigned, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:          models.ModeLive,
		WalletAddress: wallet,
		Amount:        decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(wallet).Hex(), unsigned.From)
}

func TestBuildTransactionRejectsBadWallet(t *testing.T) {
	a := testAdapter(healthyStub())

	_, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:          models.ModeLive,
		WalletAddress: "not-an-address",
		Amount:        decimal.RequireFromString("0.5"),
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrInvalidConfig, chains.AsError(err).Code)
}

func TestBuildTransactionGasEstimationFailure(t *testing.T) {
	client := healthyStub()
	client.gasErr = errors.New("execution reverted")
	a := testAdapter(client)

	_, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.RequireFromString("0.5"),
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrGasEstimation, chains.AsError(err).Code)
}

func TestBuildTransactionNetworkFailure(t *testing.T) {
	client := healthyStub()
	client.rpcErr = errors.New("connection refused")
	a := testAdapter(client)

	_, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.RequireFromString("0.5"),
	})
	require.Error(t, err)
	assert.Equal(t, models.ErrNetwork, chains.AsError(err).Code)
}

func TestSignAndSubmit(t *testing.T) {
	client := healthyStub()
	a := testAdapter(client)

	unsigned, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	submitted, err := a.SignAndSubmit(context.Background(), unsigned)
	require.NoError(t, err)
	require.NotNil(t, client.sent)
	assert.Equal(t, client.sent.Hash().Hex(), submitted.Hash)

	signer := types.LatestSignerForChainID(big.NewInt(11155111))
	from, err := types.Sender(signer, client.sent)
	require.NoError(t, err)
	assert.Equal(t, testDemoAddr, from.Hex())
}

func TestSignAndSubmitInsufficientFunds(t *testing.T) {
	client := healthyStub()
	client.sendErr = errors.New("insufficient funds for gas * price + value")
	a := testAdapter(client)

	unsigned, err := a.BuildTransaction(context.Background(), evmRoute(), chains.BuildParams{
		Mode:   models.ModeDemo,
		Amount: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	_, err = a.SignAndSubmit(context.Background(), unsigned)
	require.Error(t, err)
	assert.Equal(t, models.ErrInsufficientFunds, chains.AsError(err).Code)
}

func TestAwaitConfirmation(t *testing.T) {
	client := healthyStub()
	client.receipt = &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(995),
	}
	a := testAdapter(client)

	conf, err := a.AwaitConfirmation(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, conf.Confirmed)
	// head 1000, mined at 995: 6 confirmations.
	assert.Equal(t, uint64(6), conf.Confirmations)
	assert.Equal(t, uint64(995), conf.LedgerPosition)
}

func TestAwaitConfirmationReverted(t *testing.T) {
	client := healthyStub()
	client.receipt = &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(999),
	}
	a := testAdapter(client)

	conf, err := a.AwaitConfirmation(context.Background(), "0xdef")
	require.NoError(t, err)
	assert.False(t, conf.Confirmed)
	assert.Equal(t, "transaction reverted", conf.FailureReason)
}

func TestAwaitConfirmationTimeout(t *testing.T) {
	client := healthyStub()
	client.receiptErr = errors.New("not found")
	a := testAdapter(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.AwaitConfirmation(ctx, "0x123")
	require.Error(t, err)
	assert.Equal(t, models.ErrNetwork, chains.AsError(err).Code)
}

func TestSupportedModesWithoutKey(t *testing.T) {
	a := NewAdapterWithClient(Config{ChainID: "ethereum"}, healthyStub())
	assert.NotContains(t, a.SupportedModes(), models.ModeDemo)

	withKey := testAdapter(healthyStub())
	assert.Contains(t, withKey.SupportedModes(), models.ModeDemo)
}
