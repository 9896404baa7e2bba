// Package domain defines the core data types shared across the quantlab
// platform: candles, trades, equity curves, and performance statistics.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// ---------------------------------------------------------------------------
// Candles
// ---------------------------------------------------------------------------

// Candle is a single OHLCV observation for a fixed time interval.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Series is an ordered candle sequence with strictly increasing timestamps.
// It is immutable input to a simulation run.
type Series []Candle

// Validate checks that timestamps are strictly increasing (no duplicates,
// no out-of-order rows).
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("candle %d (%s) is not after candle %d (%s)",
				i, s[i].Timestamp.Format(time.RFC3339), i-1, s[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Opens returns the open prices as a new slice.
func (s Series) Opens() []float64 { return s.column(func(c Candle) float64 { return c.Open }) }

// Highs returns the high prices as a new slice.
func (s Series) Highs() []float64 { return s.column(func(c Candle) float64 { return c.High }) }

// Lows returns the low prices as a new slice.
func (s Series) Lows() []float64 { return s.column(func(c Candle) float64 { return c.Low }) }

// Closes returns the close prices as a new slice.
func (s Series) Closes() []float64 { return s.column(func(c Candle) float64 { return c.Close }) }

func (s Series) column(f func(Candle) float64) []float64 {
	out := make([]float64, len(s))
	for i := range s {
		out[i] = f(s[i])
	}
	return out
}

// SearchTime returns the index of the first candle whose timestamp is at or
// after t. It returns len(s) if every candle is before t.
func (s Series) SearchTime(t time.Time) int {
	return sort.Search(len(s), func(i int) bool {
		return !s[i].Timestamp.Before(t)
	})
}

// ---------------------------------------------------------------------------
// Trades and equity
// ---------------------------------------------------------------------------

// Trade is a closed-position record. It is immutable once created.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64 // realized profit/loss in quote currency
	PnLPct     float64 // realized profit/loss relative to position cost
	ExitReason string
}

// EquityPoint is one time-stamped portfolio value observation.
type EquityPoint struct {
	Timestamp time.Time
	Value     float64
}

// EquityCurve is a time-indexed sequence of portfolio values, one point per
// simulated candle.
type EquityCurve []EquityPoint

// Final returns the last value of the curve, or fallback if it is empty.
func (e EquityCurve) Final(fallback float64) float64 {
	if len(e) == 0 {
		return fallback
	}
	return e[len(e)-1].Value
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// StatsRecord is the fixed set of performance statistics derived once from a
// simulation run. Percentages and ratios are rounded for display; callers
// needing exact values should derive them from the trades and equity curve.
type StatsRecord struct {
	StartTime      time.Time
	EndTime        time.Time
	InitialCapital float64
	FinalCapital   float64

	TotalReturnPct   float64
	BuyHoldReturnPct float64
	MaxDrawdownPct   float64
	SharpeRatio      float64
	SortinoRatio     float64

	TotalTrades  int
	WinRatePct   float64
	ProfitFactor float64 // +Inf when there are wins and no losses
	AvgTradePct  float64
	AvgWinPct    float64
	AvgLossPct   float64

	ExitReasons map[string]int
}
