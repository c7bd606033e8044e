package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/chains"
	"github.com/wayfinder-exchange/wayfinder/models"
	"github.com/wayfinder-exchange/wayfinder/planner"
)

var engineLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	engineLog = zerolog.New(out).With().Timestamp().Str("component", "engine").Logger()
}

// defaultTimeouts bound the dispatch-and-confirm window per ledger family.
// XRPL validates in seconds, EVM can take minutes under load.
var defaultTimeouts = map[chains.Family]time.Duration{
	chains.FamilyXRPL:   30 * time.Second,
	chains.FamilyEVM:    120 * time.Second,
	chains.FamilySolana: 60 * time.Second,
}

// Config gates the execution service.
type Config struct {
	// Enabled is the global kill switch. Off means no planner or network
	// call happens for any request.
	Enabled bool
	// ProductionChains is the allowlist for production-mode execution.
	ProductionChains []string
	// Timeouts overrides the per-family confirmation deadlines.
	Timeouts map[chains.Family]time.Duration
}

func (c Config) timeout(family chains.Family) time.Duration {
	if d, ok := c.Timeouts[family]; ok {
		return d
	}
	if d, ok := defaultTimeouts[family]; ok {
		return d
	}
	return 60 * time.Second
}

func (c Config) productionAllowed(chainID string) bool {
	for _, id := range c.ProductionChains {
		if id == chainID {
			return true
		}
	}
	return false
}

// Service drives a request through planning, dispatch and settlement,
// producing one ExecutionResult whatever happens.
type Service struct {
	planner  *planner.Planner
	registry *chains.Registry
	cfg      Config

	mu      sync.Mutex
	signers map[string]*sync.Mutex
}

func New(p *planner.Planner, registry *chains.Registry, cfg Config) *Service {
	return &Service{
		planner:  p,
		registry: registry,
		cfg:      cfg,
		signers:  make(map[string]*sync.Mutex),
	}
}

// signerLock serializes build-sign-submit per (chain, signing account) so
// concurrent requests cannot race a sequence number or nonce.
func (s *Service) signerLock(chainID, signer string) *sync.Mutex {
	key := chainID + "|" + signer
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.signers[key]
	if !ok {
		lock = &sync.Mutex{}
		s.signers[key] = lock
	}
	return lock
}

func validMode(mode models.ExecutionMode) bool {
	switch mode {
	case models.ModeDemo, models.ModeLive, models.ModeProduction:
		return true
	}
	return false
}

// Execute runs one request end to end. The returned result always carries a
// timestamp and elapsed time; failures carry a stable error code.
func (s *Service) Execute(ctx context.Context, req models.ExecutionRequest) *models.ExecutionResult {
	started := time.Now()
	log := engineLog.With().
		Str("base", req.Base).
		Str("quote", req.Quote).
		Str("executionMode", string(req.ExecutionMode)).
		Logger()
	log.Info().Str("state", "RECEIVED").Msg("Execution request received")

	fail := func(code models.ErrorCode, message string, details map[string]any) *models.ExecutionResult {
		log.Warn().Str("state", "FAILED").Str("errorCode", string(code)).Msg(message)
		return &models.ExecutionResult{
			Success:         false,
			ExecutionMode:   req.ExecutionMode,
			ErrorCode:       code,
			Message:         message,
			Details:         details,
			Timestamp:       time.Now().UTC(),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}
	}

	// The kill switch is absolute: checked before anything touches the
	// planner or a network.
	if !s.cfg.Enabled {
		return fail(models.ErrExecutionDisabled, "execution is disabled", nil)
	}

	if !validMode(req.ExecutionMode) {
		return fail(models.ErrInvalidExecutionMode,
			"execution_mode must be demo, live or production",
			map[string]any{"execution_mode": string(req.ExecutionMode)})
	}
	if req.ExecutionMode != models.ModeDemo && req.WalletAddress == "" {
		return fail(models.ErrInvalidExecutionMode,
			"wallet_address is required outside demo mode", nil)
	}
	if req.RouteID != "" {
		return fail(models.ErrNotImplemented, "executing a previously quoted route is not implemented", nil)
	}
	log.Debug().Str("state", "MODE_VALIDATED").Msg("Execution mode accepted")

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return fail(models.ErrExecutionFailed, "amount must be a positive decimal",
			map[string]any{"amount": req.Amount})
	}

	route := s.planner.FindBestRoute(planner.Request{
		Base:      req.Base,
		Quote:     req.Quote,
		Amount:    amount,
		Side:      req.Side,
		FromChain: req.FromChain,
		ToChain:   req.ToChain,
		Mode:      req.Mode,
	})
	if route == nil {
		return fail(models.ErrNoRoute, "no route found for pair",
			map[string]any{"base": req.Base, "quote": req.Quote})
	}
	log = log.With().Str("chain", route.Chain).Str("pathType", string(route.PathType)).Logger()
	log.Info().Str("state", "ROUTE_RESOLVED").Str("expectedOutput", route.ExpectedOutput).
		Msg("Route resolved")

	// Synthetic routes are pricing estimates with no settlement path, so
	// they never reach an adapter.
	if route.PathType == models.PathSynthetic {
		return fail(models.ErrUnsupportedPathType, "synthetic routes cannot be executed",
			map[string]any{"path_type": string(route.PathType)})
	}

	adapter, ok := s.registry.Get(route.Chain)
	if !ok {
		return fail(models.ErrUnsupportedChain, "no adapter for chain",
			map[string]any{"chain": route.Chain, "supported_chains": s.registry.Chains()})
	}
	if !adapter.SupportsPathType(route.PathType) {
		return fail(models.ErrUnsupportedPathType, "chain cannot settle this path type",
			map[string]any{"chain": route.Chain, "path_type": string(route.PathType)})
	}
	if !modeSupported(adapter, req.ExecutionMode) {
		return fail(models.ErrInvalidExecutionMode, "chain does not support this execution mode",
			map[string]any{"chain": route.Chain, "execution_mode": string(req.ExecutionMode)})
	}
	if req.ExecutionMode == models.ModeProduction && !s.cfg.productionAllowed(route.Chain) {
		return fail(models.ErrInvalidExecutionMode, "production execution is not enabled for chain",
			map[string]any{"chain": route.Chain, "production_chains": s.cfg.ProductionChains})
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.cfg.timeout(adapter.Family()))
	defer cancel()

	signer := req.WalletAddress
	if req.ExecutionMode == models.ModeDemo {
		signer = "demo"
	}
	lock := s.signerLock(route.Chain, signer)
	lock.Lock()

	unsigned, err := adapter.BuildTransaction(dispatchCtx, route, chains.BuildParams{
		Mode:          req.ExecutionMode,
		WalletAddress: req.WalletAddress,
		Amount:        amount,
	})
	if err != nil {
		lock.Unlock()
		return s.failFromErr(fail, route, err)
	}
	log.Info().Str("state", "CHAIN_DISPATCHED").Msg("Transaction built")

	route.Fees.NetworkFee = unsigned.Fee.String()

	// Live and production hand the unsigned payload back for external
	// signing; settlement is the caller's business from here.
	if req.ExecutionMode != models.ModeDemo {
		lock.Unlock()
		return &models.ExecutionResult{
			Success:       true,
			Chain:         route.Chain,
			ExecutionMode: req.ExecutionMode,
			Route:         route,
			Transaction: &models.Transaction{
				Fee:             unsigned.Fee.String(),
				From:            unsigned.From,
				To:              unsigned.To,
				Currency:        route.TokenIn,
				Network:         unsigned.Extra["network"],
				UnsignedPayload: unsigned.Payload,
				Extra:           unsigned.Extra,
			},
			Settlement: &models.Settlement{
				Status:    models.SettlementAwaitingSignature,
				Timestamp: time.Now().UTC(),
			},
			Timestamp:       time.Now().UTC(),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}
	}

	submitted, err := adapter.SignAndSubmit(dispatchCtx, unsigned)
	lock.Unlock()
	if err != nil {
		return s.failFromErr(fail, route, err)
	}

	conf, err := adapter.AwaitConfirmation(dispatchCtx, submitted.Hash)
	if err != nil {
		return s.failFromErr(fail, route, err)
	}

	settlement := &models.Settlement{
		Confirmations:  conf.Confirmations,
		LedgerPosition: conf.LedgerPosition,
		Timestamp:      conf.Timestamp,
		BalanceChanges: conf.BalanceChanges,
	}
	tx := &models.Transaction{
		Hash:     submitted.Hash,
		Fee:      submitted.Fee.String(),
		From:     unsigned.From,
		To:       unsigned.To,
		Currency: route.TokenIn,
		Network:  unsigned.Extra["network"],
	}

	if !conf.Confirmed {
		settlement.Status = models.SettlementFailed
		log.Warn().Str("state", "FAILED").Str("reason", conf.FailureReason).
			Msg("Transaction did not settle")
		return &models.ExecutionResult{
			Success:         false,
			Chain:           route.Chain,
			ExecutionMode:   req.ExecutionMode,
			Route:           route,
			Transaction:     tx,
			Settlement:      settlement,
			ErrorCode:       models.ErrExecutionFailed,
			Message:         "transaction failed on ledger: " + conf.FailureReason,
			Timestamp:       time.Now().UTC(),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}
	}

	settlement.Status = models.SettlementConfirmed
	log.Info().Str("state", "CONFIRMED").Str("hash", submitted.Hash).
		Uint64("confirmations", conf.Confirmations).Msg("Execution confirmed")
	return &models.ExecutionResult{
		Success:         true,
		Chain:           route.Chain,
		ExecutionMode:   req.ExecutionMode,
		Route:           route,
		Transaction:     tx,
		Settlement:      settlement,
		Timestamp:       time.Now().UTC(),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
}

func modeSupported(a chains.Adapter, mode models.ExecutionMode) bool {
	for _, m := range a.SupportedModes() {
		if m == mode {
			return true
		}
	}
	return false
}

// failFromErr normalizes an adapter failure into the result contract,
// attaching the resolved route for debuggability.
func (s *Service) failFromErr(fail func(models.ErrorCode, string, map[string]any) *models.ExecutionResult, route *models.Route, err error) *models.ExecutionResult {
	chainErr := chains.AsError(err)
	res := fail(chainErr.Code, chainErr.Message, chainErr.Details)
	res.Chain = route.Chain
	res.Route = route
	return res
}
