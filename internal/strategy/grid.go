package strategy

import (
	"sort"

	"quantlab/internal/domain"
)

var _ Continuous = (*grid)(nil)

// grid is a market-neutral floating ladder. Half the capital is converted to
// inventory at the seed price; buy levels sit below it and sell levels above,
// spaced multiplicatively. A filled buy spawns a paired sell one level up and
// the ladder is extended at the far end, so the grid floats with price.
type grid struct {
	p       Params
	candles domain.Series

	high  []float64
	low   []float64
	close []float64

	spacing      float64
	quotePerGrid float64
	maxGrids     int

	cash    float64
	baseQty float64
	buys    map[float64]bool
	sells   map[float64]bool

	trades []domain.Trade
	equity domain.EquityCurve
}

func newGrid(p Params, candles domain.Series) *grid {
	return &grid{
		p:       p,
		candles: candles,
		high:    candles.Highs(),
		low:     candles.Lows(),
		close:   candles.Closes(),
	}
}

func (g *grid) Name() string { return "grid" }

func (g *grid) Init(capital float64, startIndex int) {
	seed := startIndex - 1
	if seed < 0 {
		seed = 0
	}
	startPrice := g.close[seed]

	g.baseQty = (capital / 2) / startPrice
	g.cash = capital / 2
	g.spacing = 1 + g.p["spacing_pct"]/100
	g.maxGrids = g.p.Int("max_grids")
	g.quotePerGrid = capital / float64(g.maxGrids)

	g.buys = make(map[float64]bool)
	g.sells = make(map[float64]bool)
	numBuy := g.maxGrids / 2
	numSell := g.maxGrids - numBuy

	level := startPrice / g.spacing
	for n := 0; n < numBuy; n++ {
		g.buys[level] = true
		level /= g.spacing
	}
	level = startPrice * g.spacing
	for n := 0; n < numSell; n++ {
		g.sells[level] = true
		level *= g.spacing
	}

	g.trades = nil
	g.equity = domain.EquityCurve{{
		Timestamp: g.candles[seed].Timestamp,
		Value:     g.cash + g.baseQty*startPrice,
	}}
}

func (g *grid) Step(i int) {
	low, high := g.low[i], g.high[i]

	// Buys fill highest first so cash goes to the levels nearest price.
	var filledBuys []float64
	for level := range g.buys {
		if low <= level {
			filledBuys = append(filledBuys, level)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(filledBuys)))
	for _, level := range filledBuys {
		if g.cash < g.quotePerGrid {
			continue
		}
		g.cash -= g.quotePerGrid
		g.baseQty += g.quotePerGrid / level

		delete(g.buys, level)
		g.sells[level*g.spacing] = true
		if len(g.buys) > 0 {
			g.buys[g.lowestBuy()/g.spacing] = true
		}
	}

	// Sells fill lowest first.
	var filledSells []float64
	for level := range g.sells {
		if high >= level {
			filledSells = append(filledSells, level)
		}
	}
	sort.Float64s(filledSells)
	for _, level := range filledSells {
		buyPrice := level / g.spacing
		qty := g.quotePerGrid / buyPrice
		if g.baseQty < qty {
			continue
		}
		g.cash += level * qty
		g.baseQty -= qty

		pnl := (level - buyPrice) * qty
		g.trades = append(g.trades, domain.Trade{
			ExitTime:   g.candles[i].Timestamp,
			EntryPrice: buyPrice,
			ExitPrice:  level,
			Quantity:   qty,
			PnL:        pnl,
			PnLPct:     pnl / g.quotePerGrid * 100,
			ExitReason: "Grid Pair Closed",
		})

		delete(g.sells, level)
		g.buys[buyPrice] = true
		if len(g.sells) > 0 {
			g.sells[g.highestSell()*g.spacing] = true
		}
	}

	g.equity = append(g.equity, domain.EquityPoint{
		Timestamp: g.candles[i].Timestamp,
		Value:     g.cash + g.baseQty*g.close[i],
	})
}

func (g *grid) Results() ([]domain.Trade, domain.EquityCurve) {
	return g.trades, g.equity
}

func (g *grid) lowestBuy() float64 {
	first := true
	var m float64
	for level := range g.buys {
		if first || level < m {
			m = level
			first = false
		}
	}
	return m
}

func (g *grid) highestSell() float64 {
	first := true
	var m float64
	for level := range g.sells {
		if first || level > m {
			m = level
			first = false
		}
	}
	return m
}
