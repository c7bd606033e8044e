package oracle

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var oracleLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	oracleLog = zerolog.New(out).With().Timestamp().Str("component", "oracle").Logger()
}

// maxInputFraction is the hard business rule for liquidity checks: a swap
// consuming more than half of the input-side reserve is rejected.
var maxInputFraction = decimal.NewFromFloat(0.5)

var oneHundred = decimal.NewFromInt(100)

// Oracle answers pricing, depth and slippage queries against an immutable
// snapshot of simulated pools, bridges and reference prices. Reload swaps the
// snapshot pointer atomically, so concurrent readers always see a full
// snapshot, old or new, never a mix.
type Oracle struct {
	source string
	snap   atomic.Pointer[snapshot]
}

// New creates an Oracle from a snapshot file. A missing or malformed file is
// not fatal: the oracle starts empty and every query answers "not found".
func New(path string) *Oracle {
	o := &Oracle{source: path}

	data, err := LoadSnapshotData(path)
	if err != nil {
		oracleLog.Warn().Err(err).Str("path", path).
			Msg("Snapshot load failed, starting with an empty snapshot")
		o.snap.Store(emptySnapshot(1))
		return o
	}

	snap := buildSnapshot(data, 1)
	o.snap.Store(snap)
	oracleLog.Info().
		Int("pools", len(snap.pools)).
		Int("bridges", len(snap.bridges)).
		Int("prices", len(snap.prices)).
		Msg("Snapshot loaded")
	return o
}

// NewStatic creates an Oracle from in-memory data. Used by tests and
// embedders that do not read a file.
func NewStatic(data SnapshotData) *Oracle {
	o := &Oracle{}
	o.snap.Store(buildSnapshot(data, 1))
	return o
}

// Reload replaces the snapshot from the configured source. Readers in flight
// keep the snapshot they started with.
func (o *Oracle) Reload() error {
	if o.source == "" {
		return nil
	}
	data, err := LoadSnapshotData(o.source)
	if err != nil {
		oracleLog.Error().Err(err).Msg("Snapshot reload failed, keeping current snapshot")
		return err
	}
	next := buildSnapshot(data, o.snap.Load().version+1)
	o.snap.Store(next)
	oracleLog.Info().Uint64("version", next.version).Int("pools", len(next.pools)).
		Msg("Snapshot reloaded")
	return nil
}

// Version is the monotonically increasing snapshot version.
func (o *Oracle) Version() uint64 {
	return o.snap.Load().version
}

// GetPool looks up a pool by chain and token pair. The reversed key is tried
// second and returned as a swapped view with the inverted spot price.
func (o *Oracle) GetPool(chain, tokenA, tokenB string) (Pool, bool) {
	snap := o.snap.Load()
	if pool, ok := snap.pools[poolKey(chain, tokenA, tokenB)]; ok && pool.Enabled {
		return pool, true
	}
	if pool, ok := snap.pools[poolKey(chain, tokenB, tokenA)]; ok && pool.Enabled {
		return pool.reversed(), true
	}
	return Pool{}, false
}

// Pools returns the pools of one chain, or every pool when chain is empty.
func (o *Oracle) Pools(chain string) []Pool {
	snap := o.snap.Load()
	if chain != "" {
		pools := make([]Pool, len(snap.chains[chain]))
		copy(pools, snap.chains[chain])
		return pools
	}
	var pools []Pool
	for _, id := range snap.sortedChains() {
		pools = append(pools, snap.chains[id]...)
	}
	return pools
}

// Chains lists every chain with at least one pool, sorted.
func (o *Oracle) Chains() []string {
	return o.snap.Load().sortedChains()
}

// ChainsWithPool lists the chains holding an enabled pool for the pair,
// sorted for deterministic planning.
func (o *Oracle) ChainsWithPool(tokenA, tokenB string) []string {
	snap := o.snap.Load()
	var chains []string
	for _, chain := range snap.sortedChains() {
		if _, ok := snap.pools[poolKey(chain, tokenA, tokenB)]; ok {
			chains = append(chains, chain)
			continue
		}
		if _, ok := snap.pools[poolKey(chain, tokenB, tokenA)]; ok {
			chains = append(chains, chain)
		}
	}
	// Enabled filter happens in GetPool; drop chains whose only pool is off.
	filtered := chains[:0]
	for _, chain := range chains {
		if _, ok := o.GetPool(chain, tokenA, tokenB); ok {
			filtered = append(filtered, chain)
		}
	}
	return filtered
}

// GetSpotPrice resolves a reference price for tokenA quoted in tokenB.
// Resolution order: USD-stable quote, synthetic pair, ratio of USD prices.
func (o *Oracle) GetSpotPrice(tokenA, tokenB string) (decimal.Decimal, bool) {
	snap := o.snap.Load()

	if snap.stables[tokenB] {
		if usd, ok := snap.prices[tokenA]; ok {
			return usd, true
		}
	}
	if spot, ok := snap.synthetic[tokenA+"|"+tokenB]; ok {
		return spot, true
	}
	priceA, okA := snap.prices[tokenA]
	priceB, okB := snap.prices[tokenB]
	if okA && okB && priceB.IsPositive() {
		return priceA.Div(priceB), true
	}
	return decimal.Zero, false
}

// SwapQuote is the outcome of simulating a swap against one pool.
type SwapQuote struct {
	AmountOut decimal.Decimal
	// PriceImpact is amountIn / reserveIn * 100: the percentage of the
	// input-side reserve the trade consumes. A simplified proxy, kept
	// exactly for compatibility with existing consumers.
	PriceImpact    decimal.Decimal
	EffectivePrice decimal.Decimal
	Pool           Pool
}

// CalculateSwapOutput simulates a constant-product swap with the fee taken
// out of the input before the invariant applies:
//
//	effective = amountIn * (1 - fee)
//	amountOut = effective * reserveOut / (reserveIn + effective)
func (o *Oracle) CalculateSwapOutput(chain, tokenIn, tokenOut string, amountIn decimal.Decimal) (SwapQuote, bool) {
	if !amountIn.IsPositive() {
		return SwapQuote{}, false
	}
	pool, ok := o.GetPool(chain, tokenIn, tokenOut)
	if !ok {
		return SwapQuote{}, false
	}

	effective := amountIn.Mul(decimal.NewFromInt(1).Sub(pool.Fee))
	amountOut := effective.Mul(pool.Reserve1).Div(pool.Reserve0.Add(effective))
	impact := amountIn.Div(pool.Reserve0).Mul(oneHundred)

	return SwapQuote{
		AmountOut:      amountOut,
		PriceImpact:    impact,
		EffectivePrice: amountOut.Div(amountIn),
		Pool:           pool,
	}, true
}

// LiquidityCheck reports whether a pool can absorb a trade.
type LiquidityCheck struct {
	Sufficient bool
	Reason     string
	MaxAmount  decimal.Decimal
}

// CheckLiquidity rejects swaps consuming more than 50% of the input-side
// reserve. The 0.5 fraction is a business rule, not a tunable.
func (o *Oracle) CheckLiquidity(chain, tokenIn, tokenOut string, amountIn decimal.Decimal) LiquidityCheck {
	pool, ok := o.GetPool(chain, tokenIn, tokenOut)
	if !ok {
		return LiquidityCheck{Sufficient: false, Reason: "no pool for pair on chain"}
	}
	maxAmount := pool.Reserve0.Mul(maxInputFraction)
	if amountIn.GreaterThan(maxAmount) {
		return LiquidityCheck{
			Sufficient: false,
			Reason:     "amount exceeds 50% of pool reserve",
			MaxAmount:  maxAmount,
		}
	}
	return LiquidityCheck{Sufficient: true, MaxAmount: maxAmount}
}

// GetBridge looks up a configured bridge between two chains.
func (o *Oracle) GetBridge(fromChain, toChain string) (Bridge, bool) {
	bridge, ok := o.snap.Load().bridges[bridgeKey(fromChain, toChain)]
	if !ok || !bridge.Enabled {
		return Bridge{}, false
	}
	return bridge, true
}

// CanBridge reports whether a token can cross between two chains.
func (o *Oracle) CanBridge(fromChain, toChain, token string) bool {
	bridge, ok := o.GetBridge(fromChain, toChain)
	if !ok {
		return false
	}
	return bridge.Supports(token)
}
