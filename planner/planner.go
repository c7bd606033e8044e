package planner

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wayfinder-exchange/wayfinder/models"
	"github.com/wayfinder-exchange/wayfinder/oracle"
)

var plannerLog zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	plannerLog = zerolog.New(out).With().Timestamp().Str("component", "planner").Logger()
}

// Planner selects the best execution path for a trade by querying the
// liquidity oracle. It holds no state of its own: two calls with identical
// inputs against an unchanged snapshot return equal routes.
type Planner struct {
	oracle *oracle.Oracle
}

// New creates a Planner over the given oracle.
func New(o *oracle.Oracle) *Planner {
	return &Planner{oracle: o}
}

// Request is the planning input. Side orients the swap: sell trades
// base->quote with Amount in base units, buy trades quote->base with Amount
// in quote units.
type Request struct {
	Base      string
	Quote     string
	Amount    decimal.Decimal
	Side      models.Side
	FromChain string
	ToChain   string
	// Mode "auto" (or empty) searches all chains; an explicit chain id
	// restricts the search to that chain.
	Mode string
}

// tokens resolves the swap direction from the trade side.
func (r Request) tokens() (tokenIn, tokenOut string) {
	if r.Side == models.SideBuy {
		return r.Quote, r.Base
	}
	return r.Base, r.Quote
}

// candidate is a priced direct-pool route on one chain, kept for the
// tie-break between chains.
type candidate struct {
	chain string
	quote oracle.SwapQuote
}

// FindBestRoute returns the best feasible route for the request, or nil when
// nothing can serve the pair.
//
// Priority order: 1) direct pool (lowest price impact wins across chains),
// 2) bridge plus destination-chain pool, 3) synthetic price estimate. The
// synthetic fallback applies only when the pair has no pool or bridge path
// at all: a pool that cannot absorb the amount means no route.
func (p *Planner) FindBestRoute(req Request) *models.Route {
	tokenIn, tokenOut := req.tokens()

	plannerLog.Info().
		Str("tokenIn", tokenIn).
		Str("tokenOut", tokenOut).
		Str("amount", req.Amount.String()).
		Str("fromChain", req.FromChain).
		Str("toChain", req.ToChain).
		Msg("Planning route")

	if !req.Amount.IsPositive() {
		plannerLog.Warn().Str("amount", req.Amount.String()).Msg("Non-positive amount")
		return nil
	}

	// Cross-chain hints take the bridge path; everything else is a
	// direct-pool search over one or all chains.
	if req.FromChain != "" && req.ToChain != "" && req.FromChain != req.ToChain {
		route, bridgeable := p.bridgeRoute(req, tokenIn, tokenOut)
		if route != nil {
			plannerLog.Info().Str("chain", route.Chain).Msg("Found bridge route")
			return route
		}
		if bridgeable {
			plannerLog.Warn().Msg("Bridge destination pool cannot absorb the amount")
			return nil
		}
		plannerLog.Debug().Msg("No bridge route found")
		return p.syntheticRoute(req, tokenIn, tokenOut)
	}

	route, poolsExist := p.directRoute(req, tokenIn, tokenOut)
	if route != nil {
		plannerLog.Info().
			Str("chain", route.Chain).
			Str("expectedOutput", route.ExpectedOutput).
			Msg("Found direct route")
		return route
	}
	if poolsExist {
		plannerLog.Warn().Msg("Every candidate pool rejected the amount")
		return nil
	}
	plannerLog.Debug().Msg("No direct route found")

	return p.syntheticRoute(req, tokenIn, tokenOut)
}

// directRoute searches the candidate chains for a single-pool swap. In auto
// mode every chain holding the pair competes; the lowest price impact wins,
// ties broken by the highest expected output. The second return reports
// whether any candidate pool existed, so the caller can tell "no pool" apart
// from "pools exist but none can absorb the amount".
func (p *Planner) directRoute(req Request, tokenIn, tokenOut string) (*models.Route, bool) {
	chains := p.candidateChains(req, tokenIn, tokenOut)
	if len(chains) == 0 {
		return nil, false
	}

	var best *candidate
	for _, chain := range chains {
		check := p.oracle.CheckLiquidity(chain, tokenIn, tokenOut, req.Amount)
		if !check.Sufficient {
			plannerLog.Debug().
				Str("chain", chain).
				Str("reason", check.Reason).
				Msg("Candidate rejected by liquidity check")
			continue
		}
		quote, ok := p.oracle.CalculateSwapOutput(chain, tokenIn, tokenOut, req.Amount)
		if !ok {
			continue
		}
		if best == nil || betterCandidate(quote, best.quote) {
			best = &candidate{chain: chain, quote: quote}
		}
	}
	if best == nil {
		return nil, true
	}

	poolFee := req.Amount.Mul(best.quote.Pool.Fee).Mul(best.quote.Pool.SpotPrice())
	return &models.Route{
		Chain:          best.chain,
		PathType:       models.PathDirect,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       req.Amount.String(),
		ExpectedOutput: best.quote.AmountOut.String(),
		Hops: []models.Hop{{
			Type:  models.HopPool,
			Chain: best.chain,
			Pool:  best.quote.Pool.ID(),
		}},
		Fees: models.FeeBreakdown{
			PoolFee:   poolFee.String(),
			BridgeFee: "0",
		},
		Slippage: best.quote.PriceImpact.String(),
	}, true
}

// betterCandidate prefers lower price impact, then higher output.
func betterCandidate(next, current oracle.SwapQuote) bool {
	if next.PriceImpact.LessThan(current.PriceImpact) {
		return true
	}
	if next.PriceImpact.Equal(current.PriceImpact) {
		return next.AmountOut.GreaterThan(current.AmountOut)
	}
	return false
}

// candidateChains narrows the search space from the request hints.
func (p *Planner) candidateChains(req Request, tokenIn, tokenOut string) []string {
	if req.Mode != "" && req.Mode != "auto" {
		if _, ok := p.oracle.GetPool(req.Mode, tokenIn, tokenOut); ok {
			return []string{req.Mode}
		}
		return nil
	}
	if req.FromChain != "" && req.FromChain == req.ToChain {
		if _, ok := p.oracle.GetPool(req.FromChain, tokenIn, tokenOut); ok {
			return []string{req.FromChain}
		}
		return nil
	}
	if req.FromChain != "" && req.ToChain == "" {
		if _, ok := p.oracle.GetPool(req.FromChain, tokenIn, tokenOut); ok {
			return []string{req.FromChain}
		}
		// Fall through to the full search: the hint only expresses a
		// preference, not a hard restriction.
	}
	return p.oracle.ChainsWithPool(tokenIn, tokenOut)
}

// bridgeRoute builds the only multi-hop shape supported: a bridge transfer
// of the input token followed by a pool swap on the destination chain. The
// second return reports whether the bridge-plus-pool path exists at all.
func (p *Planner) bridgeRoute(req Request, tokenIn, tokenOut string) (*models.Route, bool) {
	if !p.oracle.CanBridge(req.FromChain, req.ToChain, tokenIn) {
		return nil, false
	}
	if _, ok := p.oracle.GetPool(req.ToChain, tokenIn, tokenOut); !ok {
		return nil, false
	}
	check := p.oracle.CheckLiquidity(req.ToChain, tokenIn, tokenOut, req.Amount)
	if !check.Sufficient {
		plannerLog.Debug().
			Str("chain", req.ToChain).
			Str("reason", check.Reason).
			Msg("Bridge destination rejected by liquidity check")
		return nil, true
	}
	quote, ok := p.oracle.CalculateSwapOutput(req.ToChain, tokenIn, tokenOut, req.Amount)
	if !ok {
		return nil, true
	}

	poolFee := req.Amount.Mul(quote.Pool.Fee).Mul(quote.Pool.SpotPrice())
	return &models.Route{
		Chain:          req.ToChain,
		PathType:       models.PathBridge,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       req.Amount.String(),
		ExpectedOutput: quote.AmountOut.String(),
		Hops: []models.Hop{
			{
				Type:      models.HopBridge,
				FromChain: req.FromChain,
				Chain:     req.ToChain,
				Token:     tokenIn,
			},
			{
				Type:  models.HopPool,
				Chain: req.ToChain,
				Pool:  quote.Pool.ID(),
			},
		},
		Fees: models.FeeBreakdown{
			PoolFee:   poolFee.String(),
			BridgeFee: "0",
		},
		Slippage: quote.PriceImpact.String(),
	}, true
}

// syntheticRoute is the pricing-only fallback: expected output from a spot
// price, no hops, no settlement path. The execution service refuses these.
func (p *Planner) syntheticRoute(req Request, tokenIn, tokenOut string) *models.Route {
	spot, ok := p.oracle.GetSpotPrice(tokenIn, tokenOut)
	if !ok {
		plannerLog.Warn().Msg("No route found")
		return nil
	}
	plannerLog.Info().Str("spot", spot.String()).Msg("Falling back to synthetic price")

	chain := req.FromChain
	if chain == "" {
		chain = req.ToChain
	}
	return &models.Route{
		Chain:          chain,
		PathType:       models.PathSynthetic,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       req.Amount.String(),
		ExpectedOutput: req.Amount.Mul(spot).String(),
		Hops:           []models.Hop{},
		Fees: models.FeeBreakdown{
			PoolFee:   "0",
			BridgeFee: "0",
		},
		Slippage: "0",
	}
}
