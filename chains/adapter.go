package chains

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/models"
)

// Family groups chains by their ledger protocol. One adapter implementation
// serves every chain of its family.
type Family string

const (
	FamilyXRPL   Family = "xrpl"
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// BuildParams carries the execution-time inputs an adapter needs on top of
// the route itself.
type BuildParams struct {
	Mode models.ExecutionMode
	// WalletAddress is the caller's address in live and production modes.
	// Demo mode ignores it and uses the configured demo signer.
	WalletAddress string
	Amount        decimal.Decimal
}

// Unsigned is a built but not yet submitted transaction together with the
// metadata needed to sign or hand it to an external wallet.
type Unsigned struct {
	// Payload is the chain-native serialized form: JSON for XRPL commands,
	// hex RLP for EVM, base64 message bytes for Solana.
	Payload string
	From    string
	To      string
	// Fee is the estimated network fee in the chain's native unit.
	Fee decimal.Decimal
	// Extra holds chain-specific fields (sequence, nonce, blockhash, ...)
	// that external signers need to reproduce the transaction.
	Extra map[string]string
}

// Submitted identifies a transaction accepted by the network.
type Submitted struct {
	Hash string
	Fee  decimal.Decimal
}

// Confirmation is the terminal settlement state of a submitted transaction.
type Confirmation struct {
	Confirmed      bool
	Confirmations  uint64
	LedgerPosition uint64
	// FailureReason is the ledger-level result for unconfirmed transactions.
	FailureReason  string
	BalanceChanges map[string]string
	Timestamp      time.Time
}

// Adapter is one ledger family's execution surface. Implementations are safe
// for concurrent use; serialization per signing account is the execution
// service's job.
type Adapter interface {
	// ChainID is the chain this adapter instance serves ("xrpl", "ethereum", ...).
	ChainID() string
	Family() Family
	// SupportsPathType reports whether the family can settle a path shape.
	SupportsPathType(pt models.PathType) bool
	// SupportedModes lists the execution modes this instance can run,
	// given its configuration (a demo signer may be absent).
	SupportedModes() []models.ExecutionMode

	// BuildTransaction constructs the chain-native transaction for a route.
	BuildTransaction(ctx context.Context, route *models.Route, params BuildParams) (*Unsigned, error)
	// SignAndSubmit signs with the configured demo signer and broadcasts.
	// Only valid in demo mode.
	SignAndSubmit(ctx context.Context, unsigned *Unsigned) (*Submitted, error)
	// AwaitConfirmation blocks until the transaction reaches a terminal
	// state or ctx expires.
	AwaitConfirmation(ctx context.Context, hash string) (*Confirmation, error)
}

// Error is the failure type every adapter returns: a stable code the caller
// branches on, a human-readable message, and optional machine-usable details.
type Error struct {
	Code    models.ErrorCode
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an adapter error wrapping an underlying cause.
func NewError(code models.ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Errorf builds an adapter error with a formatted message and no cause.
func Errorf(code models.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the structured adapter error from an error chain. Errors
// with no adapter classification map to EXECUTION_FAILED.
func AsError(err error) *Error {
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr
	}
	return &Error{Code: models.ErrExecutionFailed, Message: err.Error(), Err: err}
}

// Registry holds the configured adapters keyed by chain id. Populated once at
// startup, read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its chain id, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.ChainID()] = a
}

// Get returns the adapter for a chain id.
func (r *Registry) Get(chainID string) (Adapter, bool) {
	a, ok := r.adapters[chainID]
	return a, ok
}

// Chains lists the registered chain ids, sorted.
func (r *Registry) Chains() []string {
	chains := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		chains = append(chains, id)
	}
	sort.Strings(chains)
	return chains
}
