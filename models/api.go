package models

import "time"

// ExecutionMode selects how a transaction gets signed and submitted.
type ExecutionMode string

const (
	// ModeDemo uses the server-held demo signer against a test network.
	ModeDemo ExecutionMode = "demo"
	// ModeLive returns an unsigned payload for external wallet signing.
	ModeLive ExecutionMode = "live"
	// ModeProduction is live execution restricted to allowlisted chains.
	ModeProduction ExecutionMode = "production"
)

// Side of the trade from the caller's perspective.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PathType is the execution strategy a route uses.
type PathType string

const (
	// PathDirect is a single-pool swap on one chain.
	PathDirect PathType = "direct"
	// PathOrderBook is a ledger-native order book operation.
	PathOrderBook PathType = "orderbook"
	// PathAMM is a ledger-native AMM swap.
	PathAMM PathType = "amm"
	// PathBridge is the two-hop case: bridge transfer then a pool swap on
	// the destination chain. The only multi-hop shape supported.
	PathBridge PathType = "bridge"
	// PathSynthetic is a pricing estimate with no settlement path.
	PathSynthetic PathType = "synthetic"
)

// ErrorCode is the stable machine-readable failure classification callers
// branch on. Network errors are retryable, everything else is terminal.
type ErrorCode string

const (
	ErrExecutionDisabled    ErrorCode = "EXECUTION_DISABLED"
	ErrUnsupportedChain     ErrorCode = "UNSUPPORTED_CHAIN"
	ErrInvalidExecutionMode ErrorCode = "INVALID_EXECUTION_MODE"
	ErrNotImplemented       ErrorCode = "NOT_IMPLEMENTED"
	ErrInvalidConfig        ErrorCode = "INVALID_CONFIG"
	ErrNoRoute              ErrorCode = "NO_ROUTE"
	ErrUnsupportedPathType  ErrorCode = "UNSUPPORTED_PATH_TYPE"
	ErrUnsupportedRoute     ErrorCode = "UNSUPPORTED_ROUTE"
	ErrInsufficientFunds    ErrorCode = "INSUFFICIENT_FUNDS"
	ErrNetwork              ErrorCode = "NETWORK_ERROR"
	ErrGasEstimation        ErrorCode = "GAS_ESTIMATION_FAILED"
	ErrExecutionFailed      ErrorCode = "EXECUTION_FAILED"
)

// HopType distinguishes the two kinds of route hops.
type HopType string

const (
	HopPool   HopType = "pool"
	HopBridge HopType = "bridge"
)

// Hop is one step of a route.
type Hop struct {
	Type  HopType `json:"type"`
	Chain string  `json:"chain"`
	// Pool reference ("TOKEN0/TOKEN1") for pool hops.
	Pool string `json:"pool,omitempty"`
	// Source chain of a bridge hop; Chain holds the destination.
	FromChain string `json:"from_chain,omitempty"`
	Token     string `json:"token,omitempty"`
}

// FeeBreakdown itemizes the cost of a route. Amounts are decimal strings in
// the output token unless stated otherwise.
type FeeBreakdown struct {
	PoolFee   string `json:"pool_fee"`
	BridgeFee string `json:"bridge_fee"`
	// NetworkFee is filled in by the executing adapter, native units.
	NetworkFee string `json:"network_fee,omitempty"`
}

// Route is the planner's output and the execution service's input.
// Invariants: ExpectedOutput >= 0; direct routes have exactly one hop;
// synthetic routes have none.
type Route struct {
	Chain          string       `json:"chain"`
	PathType       PathType     `json:"path_type"`
	TokenIn        string       `json:"token_in"`
	TokenOut       string       `json:"token_out"`
	AmountIn       string       `json:"amount_in"`
	ExpectedOutput string       `json:"expected_output"`
	Hops           []Hop        `json:"hops"`
	Fees           FeeBreakdown `json:"fees"`
	// Slippage is the price impact as a percentage of the input-side
	// reserve consumed.
	Slippage string `json:"slippage"`
}

// RouteRequest asks the planner for a route without executing it.
type RouteRequest struct {
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Amount string `json:"amount"`
	// sell swaps base->quote with Amount in base units,
	// buy swaps quote->base with Amount in quote units.
	Side      Side   `json:"side"`
	FromChain string `json:"from_chain,omitempty"`
	ToChain   string `json:"to_chain,omitempty"`
	// Mode "auto" (default) searches every chain; an explicit chain id
	// restricts the search.
	Mode string `json:"mode,omitempty"`
}

// ExecutionRequest is the caller's full intent: a trade plus how to settle it.
type ExecutionRequest struct {
	Base          string        `json:"base"`
	Quote         string        `json:"quote"`
	Amount        string        `json:"amount"`
	Side          Side          `json:"side"`
	FromChain     string        `json:"from_chain,omitempty"`
	ToChain       string        `json:"to_chain,omitempty"`
	Mode          string        `json:"mode,omitempty"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	WalletAddress string        `json:"wallet_address,omitempty"`
	RouteID       string        `json:"route_id,omitempty"`
}

// Transaction is the normalized record of what was (or is to be) submitted.
type Transaction struct {
	Hash     string `json:"hash,omitempty"`
	Fee      string `json:"fee"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Currency string `json:"currency,omitempty"`
	Network  string `json:"network,omitempty"`
	// UnsignedPayload carries the serialized transaction when the caller
	// signs externally (live/production).
	UnsignedPayload string `json:"unsigned_payload,omitempty"`
	// Extra holds chain-specific fields (sequence, nonce, blockhash, ...).
	Extra map[string]string `json:"extra,omitempty"`
}

// Settlement statuses.
const (
	SettlementConfirmed         = "confirmed"
	SettlementFailed            = "failed"
	SettlementAwaitingSignature = "awaiting_signature"
)

// Settlement is the terminal state of a submitted transaction.
type Settlement struct {
	Status         string            `json:"status"`
	Confirmations  uint64            `json:"confirmations"`
	LedgerPosition uint64            `json:"ledger_position,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	BalanceChanges map[string]string `json:"balance_changes,omitempty"`
}

// ExecutionResult is the single response contract for every execution,
// success or failure. Every result carries a timestamp; failures carry a
// stable error code plus a details map for machine-usable context.
type ExecutionResult struct {
	Success       bool          `json:"success"`
	Chain         string        `json:"chain,omitempty"`
	ExecutionMode ExecutionMode `json:"execution_mode,omitempty"`
	Route         *Route        `json:"route,omitempty"`
	Transaction   *Transaction  `json:"transaction,omitempty"`
	Settlement    *Settlement   `json:"settlement,omitempty"`

	ErrorCode ErrorCode      `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`

	Timestamp       time.Time `json:"timestamp"`
	ExecutionTimeMs int64     `json:"execution_time_ms,omitempty"`
}
