package oracle

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// Pool is a simulated two-asset liquidity reserve on one chain, priced via
// the constant-product formula. Reserves of an enabled pool are positive and
// fee is in [0, 1).
type Pool struct {
	Chain    string
	Token0   string
	Token1   string
	Reserve0 decimal.Decimal
	Reserve1 decimal.Decimal
	Fee      decimal.Decimal
	Enabled  bool
	Depth    string
}

// SpotPrice is the marginal price of token0 in token1 units.
func (p Pool) SpotPrice() decimal.Decimal {
	if p.Reserve0.IsZero() {
		return decimal.Zero
	}
	return p.Reserve1.Div(p.Reserve0)
}

// ID is the pool's reference used in route hops.
func (p Pool) ID() string {
	return p.Token0 + "/" + p.Token1
}

// reversed returns the pool viewed from the other side: tokens and reserves
// swapped, so the spot price inverts. The snapshot itself is never mutated.
func (p Pool) reversed() Pool {
	return Pool{
		Chain:    p.Chain,
		Token0:   p.Token1,
		Token1:   p.Token0,
		Reserve0: p.Reserve1,
		Reserve1: p.Reserve0,
		Fee:      p.Fee,
		Enabled:  p.Enabled,
		Depth:    p.Depth,
	}
}

// Bridge is a configured cross-chain transfer route for a set of tokens.
// An enabled bridge carries at least one token.
type Bridge struct {
	FromChain string
	ToChain   string
	Tokens    []string
	Enabled   bool
}

// Supports reports whether the bridge carries the given token.
func (b Bridge) Supports(token string) bool {
	for _, t := range b.Tokens {
		if t == token {
			return true
		}
	}
	return false
}

// SyntheticPair is a precomputed cross rate between two tokens that are not
// directly pooled anywhere.
type SyntheticPair struct {
	Base  string
	Quote string
	Spot  decimal.Decimal
}

// SnapshotData is the deserialized configuration a snapshot is built from.
// Tests and embedders construct it directly; the service loads it from TOML.
type SnapshotData struct {
	Pools     []Pool
	Bridges   []Bridge
	Prices    map[string]decimal.Decimal
	Synthetic []SyntheticPair
	Stables   []string
}

// defaultStables are the USD reference symbols used when the snapshot does
// not name its own.
var defaultStables = []string{"USD", "USDT", "USDC", "DAI"}

// snapshot is the immutable indexed view all queries read from. Replaced
// wholesale on reload, never patched.
type snapshot struct {
	pools     map[string]Pool            // chain|token0|token1
	chains    map[string][]Pool          // chain -> pools (load order)
	bridges   map[string]Bridge          // from|to
	prices    map[string]decimal.Decimal // symbol -> USD
	synthetic map[string]decimal.Decimal // base|quote -> spot
	stables   map[string]bool
	version   uint64
	loadedAt  time.Time
}

func poolKey(chain, token0, token1 string) string {
	return chain + "|" + token0 + "|" + token1
}

func bridgeKey(from, to string) string {
	return from + "|" + to
}

// emptySnapshot answers "not found" to every query. It is the fallback when
// configuration is missing or malformed: the process must keep serving.
func emptySnapshot(version uint64) *snapshot {
	return &snapshot{
		pools:     map[string]Pool{},
		chains:    map[string][]Pool{},
		bridges:   map[string]Bridge{},
		prices:    map[string]decimal.Decimal{},
		synthetic: map[string]decimal.Decimal{},
		stables:   map[string]bool{},
		version:   version,
		loadedAt:  time.Now().UTC(),
	}
}

// buildSnapshot indexes the data, dropping invalid entries with a warning
// instead of failing the whole load.
func buildSnapshot(data SnapshotData, version uint64) *snapshot {
	snap := emptySnapshot(version)

	for _, pool := range data.Pools {
		if pool.Enabled && (!pool.Reserve0.IsPositive() || !pool.Reserve1.IsPositive()) {
			oracleLog.Warn().
				Str("chain", pool.Chain).
				Str("pool", pool.ID()).
				Msg("Dropping enabled pool with non-positive reserves")
			continue
		}
		if pool.Fee.IsNegative() || pool.Fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			oracleLog.Warn().
				Str("chain", pool.Chain).
				Str("pool", pool.ID()).
				Str("fee", pool.Fee.String()).
				Msg("Dropping pool with fee outside [0, 1)")
			continue
		}
		snap.pools[poolKey(pool.Chain, pool.Token0, pool.Token1)] = pool
		snap.chains[pool.Chain] = append(snap.chains[pool.Chain], pool)
	}

	for _, bridge := range data.Bridges {
		if bridge.Enabled && len(bridge.Tokens) == 0 {
			oracleLog.Warn().
				Str("from", bridge.FromChain).
				Str("to", bridge.ToChain).
				Msg("Dropping enabled bridge with empty token set")
			continue
		}
		snap.bridges[bridgeKey(bridge.FromChain, bridge.ToChain)] = bridge
	}

	for symbol, usd := range data.Prices {
		snap.prices[symbol] = usd
	}
	for _, pair := range data.Synthetic {
		snap.synthetic[pair.Base+"|"+pair.Quote] = pair.Spot
	}

	stables := data.Stables
	if len(stables) == 0 {
		stables = defaultStables
	}
	for _, s := range stables {
		snap.stables[s] = true
	}

	return snap
}

// TOML schema for the snapshot file.

type snapshotFile struct {
	StableSymbols []string         `toml:"stable_symbols"`
	Pools         []poolEntry      `toml:"pools"`
	Bridges       []bridgeEntry    `toml:"bridges"`
	Prices        []priceEntry     `toml:"prices"`
	Synthetic     []syntheticEntry `toml:"synthetic_pairs"`
}

type poolEntry struct {
	Chain    string  `toml:"chain"`
	Token0   string  `toml:"token0"`
	Token1   string  `toml:"token1"`
	Reserve0 string  `toml:"reserve0"`
	Reserve1 string  `toml:"reserve1"`
	Fee      float64 `toml:"fee"`
	Enabled  bool    `toml:"enabled"`
	Depth    string  `toml:"depth"`
}

type bridgeEntry struct {
	FromChain string   `toml:"from_chain"`
	ToChain   string   `toml:"to_chain"`
	Tokens    []string `toml:"tokens"`
	Enabled   bool     `toml:"enabled"`
}

type priceEntry struct {
	Symbol string `toml:"symbol"`
	USD    string `toml:"usd"`
}

type syntheticEntry struct {
	Base  string `toml:"base"`
	Quote string `toml:"quote"`
	Spot  string `toml:"spot"`
}

// LoadSnapshotData reads and parses a snapshot TOML file.
func LoadSnapshotData(path string) (SnapshotData, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return SnapshotData{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var file snapshotFile
	if err := toml.Unmarshal(body, &file); err != nil {
		return SnapshotData{}, fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	data := SnapshotData{
		Prices:  make(map[string]decimal.Decimal, len(file.Prices)),
		Stables: file.StableSymbols,
	}

	for _, entry := range file.Pools {
		reserve0, err := decimal.NewFromString(strings.TrimSpace(entry.Reserve0))
		if err != nil {
			oracleLog.Warn().Str("chain", entry.Chain).Str("reserve0", entry.Reserve0).
				Msg("Skipping pool with malformed reserve0")
			continue
		}
		reserve1, err := decimal.NewFromString(strings.TrimSpace(entry.Reserve1))
		if err != nil {
			oracleLog.Warn().Str("chain", entry.Chain).Str("reserve1", entry.Reserve1).
				Msg("Skipping pool with malformed reserve1")
			continue
		}
		data.Pools = append(data.Pools, Pool{
			Chain:    entry.Chain,
			Token0:   entry.Token0,
			Token1:   entry.Token1,
			Reserve0: reserve0,
			Reserve1: reserve1,
			Fee:      decimal.NewFromFloat(entry.Fee),
			Enabled:  entry.Enabled,
			Depth:    entry.Depth,
		})
	}

	for _, entry := range file.Bridges {
		data.Bridges = append(data.Bridges, Bridge{
			FromChain: entry.FromChain,
			ToChain:   entry.ToChain,
			Tokens:    entry.Tokens,
			Enabled:   entry.Enabled,
		})
	}

	for _, entry := range file.Prices {
		usd, err := decimal.NewFromString(strings.TrimSpace(entry.USD))
		if err != nil {
			oracleLog.Warn().Str("symbol", entry.Symbol).Str("usd", entry.USD).
				Msg("Skipping malformed USD price")
			continue
		}
		data.Prices[entry.Symbol] = usd
	}

	for _, entry := range file.Synthetic {
		spot, err := decimal.NewFromString(strings.TrimSpace(entry.Spot))
		if err != nil {
			oracleLog.Warn().Str("base", entry.Base).Str("quote", entry.Quote).
				Msg("Skipping malformed synthetic spot price")
			continue
		}
		data.Synthetic = append(data.Synthetic, SyntheticPair{
			Base:  entry.Base,
			Quote: entry.Quote,
			Spot:  spot,
		})
	}

	return data, nil
}

// sortedChains returns the chain ids present in the snapshot in stable order.
func (s *snapshot) sortedChains() []string {
	chains := make([]string, 0, len(s.chains))
	for chain := range s.chains {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	return chains
}
