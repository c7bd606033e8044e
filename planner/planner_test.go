package planner

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/wayfinder-exchange/wayfinder/models"
	"github.com/wayfinder-exchange/wayfinder/oracle"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOracle() *oracle.Oracle {
	return oracle.NewStatic(oracle.SnapshotData{
		Pools: []oracle.Pool{
			{
				Chain:    "xrpl",
				Token0:   "XRP",
				Token1:   "USD",
				Reserve0: dec("1000000"),
				Reserve1: dec("2000000"),
				Fee:      dec("0.003"),
				Enabled:  true,
			},
			{
				Chain:    "ethereum",
				Token0:   "XRP",
				Token1:   "USD",
				Reserve0: dec("500000"),
				Reserve1: dec("1000000"),
				Fee:      dec("0.003"),
				Enabled:  true,
			},
			{
				Chain:    "solana",
				Token0:   "SOL",
				Token1:   "USD",
				Reserve0: dec("100000"),
				Reserve1: dec("15000000"),
				Fee:      dec("0.0025"),
				Enabled:  true,
			},
		},
		Bridges: []oracle.Bridge{
			{FromChain: "xrpl", ToChain: "ethereum", Tokens: []string{"USD", "XRP"}, Enabled: true},
		},
		Prices: map[string]decimal.Decimal{
			"XRP": dec("2"),
			"SOL": dec("150"),
			"BTC": dec("60000"),
		},
	})
}

func TestDirectRoutePreferred(t *testing.T) {
	p := New(testOracle())

	route := p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("1000"),
		Side:   models.SideSell,
	})
	assert.NotNil(t, route)
	assert.Equal(t, models.PathDirect, route.PathType)
	assert.Equal(t, "XRP", route.TokenIn)
	assert.Equal(t, "USD", route.TokenOut)
	assert.Equal(t, 1, len(route.Hops))
	assert.Equal(t, models.HopPool, route.Hops[0].Type)
}

func TestAutoModePicksLowestImpact(t *testing.T) {
	p := New(testOracle())

	// 1000 XRP is 0.1% of the xrpl reserve but 0.2% of the ethereum one;
	// auto mode must land on xrpl.
	route := p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("1000"),
		Side:   models.SideSell,
		Mode:   "auto",
	})
	assert.NotNil(t, route)
	assert.Equal(t, "xrpl", route.Chain)
	assert.Equal(t, "0.1", route.Slippage)
}

func TestExplicitChainRestrictsSearch(t *testing.T) {
	p := New(testOracle())

	route := p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("1000"),
		Side:   models.SideSell,
		Mode:   "ethereum",
	})
	assert.NotNil(t, route)
	assert.Equal(t, "ethereum", route.Chain)
}

func TestBuySideReversesDirection(t *testing.T) {
	p := New(testOracle())

	route := p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("2000"),
		Side:   models.SideBuy,
	})
	assert.NotNil(t, route)
	assert.Equal(t, "USD", route.TokenIn)
	assert.Equal(t, "XRP", route.TokenOut)
}

func TestBridgeRoute(t *testing.T) {
	p := New(testOracle())

	route := p.FindBestRoute(Request{
		Base:      "XRP",
		Quote:     "USD",
		Amount:    dec("1000"),
		Side:      models.SideSell,
		FromChain: "xrpl",
		ToChain:   "ethereum",
	})
	assert.NotNil(t, route)
	assert.Equal(t, models.PathBridge, route.PathType)
	assert.Equal(t, "ethereum", route.Chain)
	assert.Equal(t, 2, len(route.Hops))
	assert.Equal(t, models.HopBridge, route.Hops[0].Type)
	assert.Equal(t, "xrpl", route.Hops[0].FromChain)
	assert.Equal(t, models.HopPool, route.Hops[1].Type)
	assert.Equal(t, "ethereum", route.Hops[1].Chain)
}

func TestBridgeMissingFallsBackToSynthetic(t *testing.T) {
	p := New(testOracle())

	// No bridge is configured from ethereum to xrpl.
	route := p.FindBestRoute(Request{
		Base:      "XRP",
		Quote:     "USD",
		Amount:    dec("1000"),
		Side:      models.SideSell,
		FromChain: "ethereum",
		ToChain:   "xrpl",
	})
	assert.NotNil(t, route)
	assert.Equal(t, models.PathSynthetic, route.PathType)
	assert.Equal(t, 0, len(route.Hops))
}

func TestSyntheticFallbackForUnpooledPair(t *testing.T) {
	p := New(testOracle())

	// BTC has a USD price but no pool anywhere.
	route := p.FindBestRoute(Request{
		Base:   "BTC",
		Quote:  "USD",
		Amount: dec("2"),
		Side:   models.SideSell,
	})
	assert.NotNil(t, route)
	assert.Equal(t, models.PathSynthetic, route.PathType)
	assert.Equal(t, "120000", route.ExpectedOutput)
	assert.Equal(t, "0", route.Slippage)
}

func TestNoRouteForUnknownPair(t *testing.T) {
	p := New(testOracle())

	route := p.FindBestRoute(Request{
		Base:   "DOGE",
		Quote:  "PEPE",
		Amount: dec("100"),
		Side:   models.SideSell,
	})
	assert.Nil(t, route)
}

func TestOversizedTradeRejected(t *testing.T) {
	p := New(testOracle())

	// 60% of the xrpl XRP reserve and over the cap on ethereum too. Pools
	// exist for the pair, so the USD price of XRP must not turn the
	// rejection into a synthetic estimate.
	route := p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("600000"),
		Side:   models.SideSell,
	})
	assert.Nil(t, route)
}

func TestOversizedBridgeTradeRejected(t *testing.T) {
	p := New(testOracle())

	// The bridge exists but 300000 XRP is 60% of the ethereum reserve;
	// the thin destination pool means no route, not a synthetic estimate.
	route := p.FindBestRoute(Request{
		Base:      "XRP",
		Quote:     "USD",
		Amount:    dec("300000"),
		Side:      models.SideSell,
		FromChain: "xrpl",
		ToChain:   "ethereum",
	})
	assert.Nil(t, route)
}

func TestNonPositiveAmount(t *testing.T) {
	p := New(testOracle())

	assert.Nil(t, p.FindBestRoute(Request{
		Base:  "XRP",
		Quote: "USD",
		Side:  models.SideSell,
	}))
	assert.Nil(t, p.FindBestRoute(Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("-5"),
		Side:   models.SideSell,
	}))
}

func TestDeterministicPlanning(t *testing.T) {
	p := New(testOracle())
	req := Request{
		Base:   "XRP",
		Quote:  "USD",
		Amount: dec("1000"),
		Side:   models.SideSell,
		Mode:   "auto",
	}

	first := p.FindBestRoute(req)
	second := p.FindBestRoute(req)
	assert.NotNil(t, first)
	assert.NotNil(t, second)
	assert.Equal(t, first.Chain, second.Chain)
	assert.Equal(t, first.ExpectedOutput, second.ExpectedOutput)
}
