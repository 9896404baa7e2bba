// Package backtest simulates a strategy over a candle series and derives
// performance statistics from the resulting trades and equity curve. Each
// run is sequential and owns its state; callers parallelize across runs.
package backtest

import (
	"fmt"
	"math"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
	"quantlab/internal/strategy"
)

// Config controls one simulation run.
type Config struct {
	InitialCapital float64
	StartTime      time.Time // first candle to trade; zero means the earliest possible
	Warmup         int       // candles reserved for indicator warmup before trading
}

// DefaultWarmup is used when Config.Warmup is zero.
const DefaultWarmup = 200

// InsufficientDataError reports a series too short to reach the effective
// start index.
type InsufficientDataError struct {
	Required int
	Have     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d candles, have %d", e.Required, e.Have)
}

// Result is the full output of one simulation run.
type Result struct {
	Symbol   string
	Strategy string

	Stats   domain.StatsRecord
	Trades  []domain.Trade
	Equity  domain.EquityCurve
	BuyHold domain.EquityCurve
}

// Run simulates st over candles. The effective start index is the later of
// the configured start time and the warmup horizon; trading begins there and
// every candle from it contributes one equity point.
func Run(candles domain.Series, st strategy.Strategy, cfg Config) (*Result, error) {
	if err := candles.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}

	warmup := cfg.Warmup
	if warmup == 0 {
		warmup = DefaultWarmup
	}
	start := warmup
	if !cfg.StartTime.IsZero() {
		if requested := candles.SearchTime(cfg.StartTime); requested > start {
			start = requested
		}
	}
	if start >= len(candles) {
		return nil, &InsufficientDataError{Required: start + 1, Have: len(candles)}
	}

	var (
		trades []domain.Trade
		equity domain.EquityCurve
		err    error
	)
	switch s := st.(type) {
	case *strategy.Optimizer:
		trades, equity = runOptimizer(candles, s, cfg.InitialCapital, start)
	case strategy.Continuous:
		trades, equity = runContinuous(candles, s, cfg.InitialCapital, start)
	case strategy.Directional:
		trades, equity = runDirectional(candles, s, cfg.InitialCapital, start)
	default:
		err = fmt.Errorf("strategy %s implements no known simulation interface", st.Name())
	}
	if err != nil {
		return nil, err
	}

	buyHold, bhReturn := buyHoldCurve(candles, start, cfg.InitialCapital)
	stats := Compute(trades, equity, cfg.InitialCapital, bhReturn,
		candles[start].Timestamp, candles[len(candles)-1].Timestamp)

	return &Result{
		Strategy: st.Name(),
		Stats:    stats,
		Trades:   trades,
		Equity:   equity,
		BuyHold:  buyHold,
	}, nil
}

// runDirectional drives the flat/in-position state machine. While holding,
// the checks are ordered: take profit, trailing-stop update, stop breach,
// then the strategy's own exit. Fills execute at the close of the signal
// candle, and after an exit the entry is evaluated on the same candle.
func runDirectional(candles domain.Series, d strategy.Directional, capital float64, start int) ([]domain.Trade, domain.EquityCurve) {
	close := make([]float64, len(candles))
	for i := range candles {
		close[i] = candles[i].Close
	}

	cash := capital
	var pos *strategy.Position
	var trades []domain.Trade
	equity := make(domain.EquityCurve, 0, len(candles)-start)

	for i := start; i < len(candles); i++ {
		price := close[i]

		if pos != nil {
			reason := ""
			if tp, ok := d.TakeProfit(i, pos); ok && price >= tp {
				reason = "Take Profit"
			}
			if reason == "" {
				d.Trail(i, price, pos)
				if price <= pos.Stop {
					reason = "Stop Loss"
				}
			}
			if reason == "" {
				reason = d.Exit(i, pos)
			}
			if reason != "" {
				cash = closePosition(&trades, pos, candles[i].Timestamp, price, reason)
				pos = nil
			}
		}

		if pos == nil && cash > 0 && d.Entry(i) {
			stop := d.InitialStop(i, price)
			if stop < price {
				pos = &strategy.Position{
					EntryTime:  candles[i].Timestamp,
					EntryPrice: price,
					Stop:       stop,
					Quantity:   cash / price,
					Cost:       cash,
				}
				cash = 0
			}
		}

		value := cash
		if pos != nil {
			value = pos.Quantity * price
		}
		equity = append(equity, domain.EquityPoint{Timestamp: candles[i].Timestamp, Value: value})
	}
	return trades, equity
}

// runOptimizer drives the self-optimizing variant: it reoptimizes on a fixed
// cadence and sizes the protective stop from the entry tuple's volatility.
// Unlike the generic loop, the strategy exit signal dominates the stop.
func runOptimizer(candles domain.Series, o *strategy.Optimizer, capital float64, start int) ([]domain.Trade, domain.EquityCurve) {
	close := make([]float64, len(candles))
	for i := range candles {
		close[i] = candles[i].Close
	}
	cadence := o.Config().ReoptimizeEvery

	cash := capital
	var pos *strategy.Position
	var trades []domain.Trade
	equity := make(domain.EquityCurve, 0, len(candles)-start)

	for i := start; i < len(candles); i++ {
		if cadence > 0 && (i-start)%cadence == 0 {
			o.Optimize(i)
		}
		price := close[i]

		if pos != nil {
			o.Trail(i, price, pos)
			if reason := o.Exit(i, price, pos); reason != "" {
				cash = closePosition(&trades, pos, candles[i].Timestamp, price, reason)
				pos = nil
			}
		}

		if pos == nil && cash > 0 {
			if tuple, ok := o.Entry(i); ok {
				vol := o.Volatility(tuple)
				if i < len(vol) && !math.IsNaN(vol[i]) {
					stop := price - vol[i]*tuple.StopMult
					if stop < price {
						t := tuple
						pos = &strategy.Position{
							EntryTime:  candles[i].Timestamp,
							EntryPrice: price,
							Stop:       stop,
							Quantity:   cash / price,
							Cost:       cash,
							Tuple:      &t,
						}
						cash = 0
					}
				}
			}
		}

		value := cash
		if pos != nil {
			value = pos.Quantity * price
		}
		equity = append(equity, domain.EquityPoint{Timestamp: candles[i].Timestamp, Value: value})
	}
	return trades, equity
}

// runContinuous hands every candle to the strategy and trims its reported
// equity to the traded range (the grid seeds one point before the start).
func runContinuous(candles domain.Series, c strategy.Continuous, capital float64, start int) ([]domain.Trade, domain.EquityCurve) {
	c.Init(capital, start)
	for i := start; i < len(candles); i++ {
		c.Step(i)
	}
	trades, equity := c.Results()

	startTS := candles[start].Timestamp
	for len(equity) > 0 && equity[0].Timestamp.Before(startTS) {
		equity = equity[1:]
	}
	return trades, equity
}

func closePosition(trades *[]domain.Trade, pos *strategy.Position, ts time.Time, price float64, reason string) float64 {
	proceeds := pos.Quantity * price
	pnl := proceeds - pos.Cost
	pct := 0.0
	if pos.Cost > 0 {
		pct = pnl / pos.Cost * 100
	}
	*trades = append(*trades, domain.Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Quantity:   pos.Quantity,
		PnL:        pnl,
		PnLPct:     pct,
		ExitReason: reason,
	})
	return proceeds
}

// buyHoldCurve values the initial capital held in the asset from the start
// candle onward, alongside the total buy-and-hold return in percent.
func buyHoldCurve(candles domain.Series, start int, capital float64) (domain.EquityCurve, float64) {
	startPrice := candles[start].Close
	endPrice := candles[len(candles)-1].Close

	curve := make(domain.EquityCurve, 0, len(candles)-start)
	ret := 0.0
	if startPrice > 0 {
		ret = (endPrice - startPrice) / startPrice * 100
		for i := start; i < len(candles); i++ {
			curve = append(curve, domain.EquityPoint{
				Timestamp: candles[i].Timestamp,
				Value:     candles[i].Close / startPrice * capital,
			})
		}
	} else {
		for i := start; i < len(candles); i++ {
			curve = append(curve, domain.EquityPoint{Timestamp: candles[i].Timestamp, Value: capital})
		}
	}
	return curve, ret
}

// NewRun is a convenience that resolves a catalog strategy by name and runs
// it, sharing one indicator factory per series.
func NewRun(symbol, name string, params map[string]float64, candles domain.Series, cfg Config) (*Result, error) {
	ind := indicator.NewFactory(candles)
	st, err := strategy.New(name, params, candles, ind)
	if err != nil {
		return nil, err
	}
	res, err := Run(candles, st, cfg)
	if err != nil {
		return nil, err
	}
	res.Symbol = symbol
	return res, nil
}
