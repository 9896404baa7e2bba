package backtest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"quantlab/internal/domain"
)

// periodsPerYear annualizes per-candle returns. Crypto markets trade every
// day of the year.
const periodsPerYear = 365

// Compute derives the full statistics record from a run's trades and equity
// curve. A run with no trades or an empty curve yields a zero-valued record
// rather than an error. Ratios and percentages are rounded to two decimals;
// the profit factor is +Inf exactly when there are winning trades and no
// losing ones.
func Compute(trades []domain.Trade, equity domain.EquityCurve, initialCapital, bhReturn float64, start, end time.Time) domain.StatsRecord {
	rec := domain.StatsRecord{
		StartTime:        start,
		EndTime:          end,
		InitialCapital:   initialCapital,
		FinalCapital:     initialCapital,
		BuyHoldReturnPct: round2(bhReturn),
		ExitReasons:      map[string]int{},
	}
	if len(trades) == 0 || len(equity) == 0 {
		return rec
	}

	final := equity.Final(initialCapital)
	rec.FinalCapital = final
	rec.TotalReturnPct = round2((final - initialCapital) / initialCapital * 100)

	var winSum, lossSum float64
	var winPcts, lossPcts, allPcts []float64
	for _, t := range trades {
		allPcts = append(allPcts, t.PnLPct)
		if t.PnL > 0 {
			winSum += t.PnL
			winPcts = append(winPcts, t.PnLPct)
		} else {
			lossSum += t.PnL
			lossPcts = append(lossPcts, t.PnLPct)
		}
		rec.ExitReasons[t.ExitReason]++
	}

	rec.TotalTrades = len(trades)
	rec.WinRatePct = round2(float64(len(winPcts)) / float64(len(trades)) * 100)

	switch {
	case lossSum != 0:
		rec.ProfitFactor = round2(winSum / math.Abs(lossSum))
	case winSum > 0:
		rec.ProfitFactor = math.Inf(1)
	}

	rec.AvgTradePct = round2(meanOrZero(allPcts))
	rec.AvgWinPct = round2(meanOrZero(winPcts))
	rec.AvgLossPct = round2(meanOrZero(lossPcts))

	rec.MaxDrawdownPct = round2(maxDrawdown(equity))

	returns := pctChanges(equity)
	rec.SharpeRatio = round2(sharpe(returns))
	rec.SortinoRatio = round2(sortino(returns))

	return rec
}

// maxDrawdown returns the deepest peak-to-trough decline in percent.
func maxDrawdown(equity domain.EquityCurve) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (p.Value - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return math.Abs(worst * 100)
}

// pctChanges returns the per-candle equity returns.
func pctChanges(equity domain.EquityCurve) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (equity[i].Value-prev)/prev)
	}
	return out
}

// sharpe annualizes mean return over its sample standard deviation; a zero
// or undefined deviation maps to 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, err := stats.Mean(stats.Float64Data(returns))
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(returns))
	if err != nil || sd == 0 {
		return 0
	}
	return math.Sqrt(periodsPerYear) * mean / sd
}

// sortino uses only the downside deviation; it needs more than one negative
// return to be defined.
func sortino(returns []float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) < 2 {
		return 0
	}
	mean, err := stats.Mean(stats.Float64Data(returns))
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(negatives))
	if err != nil || sd == 0 {
		return 0
	}
	return math.Sqrt(periodsPerYear) * mean / sd
}

func meanOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m, err := stats.Mean(stats.Float64Data(vals))
	if err != nil {
		return 0
	}
	return m
}

func round2(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}
