package oracle

import "github.com/shopspring/decimal"

// Diagnostic read-only views. Not needed for execution correctness, but
// derived from the same pool data so parity tests can reproduce them.

// DepthLevel is one rung of the market depth ladder.
type DepthLevel struct {
	// Fraction of the input-side reserve this level consumes, in percent.
	ReservePct  decimal.Decimal `json:"reserve_pct"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	PriceImpact decimal.Decimal `json:"price_impact"`
}

// MarketDepth describes how output degrades as trade size grows.
type MarketDepth struct {
	Chain      string          `json:"chain"`
	Pool       string          `json:"pool"`
	Descriptor string          `json:"descriptor"`
	SpotPrice  decimal.Decimal `json:"spot_price"`
	Levels     []DepthLevel    `json:"levels"`
}

var depthFractions = []decimal.Decimal{
	decimal.NewFromFloat(0.01),
	decimal.NewFromFloat(0.02),
	decimal.NewFromFloat(0.05),
	decimal.NewFromFloat(0.10),
	decimal.NewFromFloat(0.25),
}

// GetMarketDepth builds the depth ladder for a pair on one chain.
func (o *Oracle) GetMarketDepth(chain, tokenIn, tokenOut string) (MarketDepth, bool) {
	pool, ok := o.GetPool(chain, tokenIn, tokenOut)
	if !ok {
		return MarketDepth{}, false
	}

	depth := MarketDepth{
		Chain:      chain,
		Pool:       pool.ID(),
		Descriptor: pool.Depth,
		SpotPrice:  pool.SpotPrice(),
	}
	for _, fraction := range depthFractions {
		amountIn := pool.Reserve0.Mul(fraction)
		quote, ok := o.CalculateSwapOutput(chain, tokenIn, tokenOut, amountIn)
		if !ok {
			continue
		}
		depth.Levels = append(depth.Levels, DepthLevel{
			ReservePct:  fraction.Mul(oneHundred),
			AmountIn:    amountIn,
			AmountOut:   quote.AmountOut,
			PriceImpact: quote.PriceImpact,
		})
	}
	return depth, true
}

// SlippagePoint is one sample of the slippage curve.
type SlippagePoint struct {
	AmountIn       decimal.Decimal `json:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	PriceImpact    decimal.Decimal `json:"price_impact"`
}

// SlippageCurve samples effective price over geometrically growing sizes.
type SlippageCurve struct {
	Chain     string          `json:"chain"`
	Pool      string          `json:"pool"`
	SpotPrice decimal.Decimal `json:"spot_price"`
	Points    []SlippagePoint `json:"points"`
}

// GetSlippageCurve samples the pool starting at 0.1% of the input reserve,
// doubling for the given number of points (capped at the liquidity limit).
func (o *Oracle) GetSlippageCurve(chain, tokenIn, tokenOut string, points int) (SlippageCurve, bool) {
	pool, ok := o.GetPool(chain, tokenIn, tokenOut)
	if !ok {
		return SlippageCurve{}, false
	}
	if points <= 0 {
		points = 8
	}

	curve := SlippageCurve{
		Chain:     chain,
		Pool:      pool.ID(),
		SpotPrice: pool.SpotPrice(),
	}
	fraction := decimal.NewFromFloat(0.001)
	for i := 0; i < points; i++ {
		if fraction.GreaterThan(maxInputFraction) {
			break
		}
		amountIn := pool.Reserve0.Mul(fraction)
		quote, ok := o.CalculateSwapOutput(chain, tokenIn, tokenOut, amountIn)
		if !ok {
			break
		}
		curve.Points = append(curve.Points, SlippagePoint{
			AmountIn:       amountIn,
			AmountOut:      quote.AmountOut,
			EffectivePrice: quote.EffectivePrice,
			PriceImpact:    quote.PriceImpact,
		})
		fraction = fraction.Mul(decimal.NewFromInt(2))
	}
	return curve, true
}
