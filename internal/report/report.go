// Package report aggregates individual simulation results into a portfolio
// view and serializes the whole run as a JSON document. Per-test equity
// curves are combined as deltas against each test's own starting capital, so
// tests over different time ranges line up without double-counting capital.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"quantlab/internal/backtest"
	"quantlab/internal/domain"
)

// maxCurvePoints bounds serialized equity curves; longer curves are
// step-sampled down before the daily reduction.
const maxCurvePoints = 800

// Metric is a float64 that serializes NaN and infinities as JSON null.
type Metric float64

func (m Metric) MarshalJSON() ([]byte, error) {
	f := float64(m)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// Point is one serialized equity observation.
type Point struct {
	Date  time.Time `json:"date"`
	Value Metric    `json:"value"`
}

// CurvePair holds a strategy equity curve next to its buy-and-hold baseline.
type CurvePair struct {
	Strategy []Point `json:"strategy"`
	BuyHold  []Point `json:"buy_and_hold"`
}

// StatsDoc mirrors domain.StatsRecord with JSON-safe metric fields.
type StatsDoc struct {
	StartTime        time.Time      `json:"start_time"`
	EndTime          time.Time      `json:"end_time"`
	InitialCapital   Metric         `json:"initial_capital"`
	FinalCapital     Metric         `json:"final_capital"`
	TotalReturnPct   Metric         `json:"total_return_pct"`
	BuyHoldReturnPct Metric         `json:"buy_hold_return_pct"`
	MaxDrawdownPct   Metric         `json:"max_drawdown_pct"`
	SharpeRatio      Metric         `json:"sharpe_ratio"`
	SortinoRatio     Metric         `json:"sortino_ratio"`
	TotalTrades      int            `json:"total_trades"`
	WinRatePct       Metric         `json:"win_rate_pct"`
	ProfitFactor     Metric         `json:"profit_factor"`
	AvgTradePct      Metric         `json:"avg_trade_pct"`
	AvgWinPct        Metric         `json:"avg_win_pct"`
	AvgLossPct       Metric         `json:"avg_loss_pct"`
	ExitReasons      map[string]int `json:"exit_reasons"`
}

func statsDoc(r domain.StatsRecord) StatsDoc {
	return StatsDoc{
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		InitialCapital:   Metric(r.InitialCapital),
		FinalCapital:     Metric(r.FinalCapital),
		TotalReturnPct:   Metric(r.TotalReturnPct),
		BuyHoldReturnPct: Metric(r.BuyHoldReturnPct),
		MaxDrawdownPct:   Metric(r.MaxDrawdownPct),
		SharpeRatio:      Metric(r.SharpeRatio),
		SortinoRatio:     Metric(r.SortinoRatio),
		TotalTrades:      r.TotalTrades,
		WinRatePct:       Metric(r.WinRatePct),
		ProfitFactor:     Metric(r.ProfitFactor),
		AvgTradePct:      Metric(r.AvgTradePct),
		AvgWinPct:        Metric(r.AvgWinPct),
		AvgLossPct:       Metric(r.AvgLossPct),
		ExitReasons:      r.ExitReasons,
	}
}

// OverallStats summarizes the whole portfolio: ratio-style metrics are
// averaged across tests, trade counts are summed, and the drawdown is taken
// from the aggregated portfolio curve.
type OverallStats struct {
	TotalReturnPct   Metric         `json:"total_return_pct"`
	BuyHoldReturnPct Metric         `json:"buy_hold_return_pct"`
	SharpeRatio      Metric         `json:"sharpe_ratio"`
	SortinoRatio     Metric         `json:"sortino_ratio"`
	MaxDrawdownPct   Metric         `json:"max_drawdown_pct"`
	TotalTrades      int            `json:"total_trades"`
	WinRatePct       Metric         `json:"win_rate_pct"`
	ProfitFactor     Metric         `json:"profit_factor"`
	AvgWinPct        Metric         `json:"avg_win_pct"`
	AvgLossPct       Metric         `json:"avg_loss_pct"`
	ExitReasons      map[string]int `json:"exit_reasons"`
}

// Test is one simulation's slice of the report.
type Test struct {
	TestID     string             `json:"test_id"`
	Strategy   string             `json:"strategy_name"`
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Stats      StatsDoc           `json:"stats"`
	Parameters map[string]float64 `json:"parameters"`
	Equity     CurvePair          `json:"equity_curve"`
}

// Report is the full JSON document for one scenario run.
type Report struct {
	ScenarioName          string       `json:"scenario_name"`
	GeneratedAt           time.Time    `json:"generated_at"`
	Timeframe             string       `json:"timeframe"`
	InitialCapitalPerTest float64      `json:"initial_capital_per_test"`
	OverallStats          OverallStats `json:"overall_stats"`
	OverallEquity         CurvePair    `json:"overall_equity_curve"`
	Tests                 []Test       `json:"individual_tests"`
}

// Input pairs a run result with its report metadata.
type Input struct {
	Result     *backtest.Result
	Timeframe  string
	Parameters map[string]float64
}

// Build aggregates the individual results into the report document.
func Build(scenario, timeframe string, perTestCapital float64, inputs []Input) *Report {
	rep := &Report{
		ScenarioName:          scenario,
		GeneratedAt:           time.Now().UTC(),
		Timeframe:             timeframe,
		InitialCapitalPerTest: perTestCapital,
	}

	stratCurves := make([]domain.EquityCurve, 0, len(inputs))
	bhCurves := make([]domain.EquityCurve, 0, len(inputs))
	for _, in := range inputs {
		r := in.Result
		stratCurves = append(stratCurves, r.Equity)
		bhCurves = append(bhCurves, r.BuyHold)
		rep.Tests = append(rep.Tests, Test{
			TestID:     fmt.Sprintf("%s_%s_%s", r.Strategy, r.Symbol, in.Timeframe),
			Strategy:   r.Strategy,
			Symbol:     r.Symbol,
			Timeframe:  in.Timeframe,
			Stats:      statsDoc(r.Stats),
			Parameters: in.Parameters,
			Equity: CurvePair{
				Strategy: FormatCurve(r.Equity),
				BuyHold:  FormatCurve(r.BuyHold),
			},
		})
	}

	portfolio := Aggregate(stratCurves, perTestCapital)
	bhPortfolio := Aggregate(bhCurves, perTestCapital)
	rep.OverallEquity = CurvePair{
		Strategy: FormatCurve(portfolio),
		BuyHold:  FormatCurve(bhPortfolio),
	}
	rep.OverallStats = overallStats(inputs, portfolio, bhPortfolio, perTestCapital)
	return rep
}

// Aggregate sums per-test equity deltas over the union of their timestamps.
// Before a curve's first point its delta is zero; after its last point the
// final delta is carried forward. The portfolio baseline is the per-test
// capital times the number of curves.
func Aggregate(curves []domain.EquityCurve, perTestCapital float64) domain.EquityCurve {
	if len(curves) == 0 {
		return nil
	}

	seen := make(map[int64]time.Time)
	for _, c := range curves {
		for _, p := range c {
			seen[p.Timestamp.UnixNano()] = p.Timestamp
		}
	}
	stamps := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		stamps = append(stamps, t)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	baseline := perTestCapital * float64(len(curves))
	out := make(domain.EquityCurve, len(stamps))
	cursors := make([]int, len(curves))

	for si, ts := range stamps {
		total := 0.0
		for ci, c := range curves {
			for cursors[ci] < len(c) && !c[cursors[ci]].Timestamp.After(ts) {
				cursors[ci]++
			}
			// cursors[ci] is now the first point after ts.
			if cursors[ci] > 0 {
				total += c[cursors[ci]-1].Value - perTestCapital
			}
		}
		out[si] = domain.EquityPoint{Timestamp: ts, Value: total + baseline}
	}
	return out
}

// FormatCurve reduces a curve for serialization: a step-sample down to the
// point budget, then the last observation of each UTC day.
func FormatCurve(curve domain.EquityCurve) []Point {
	if len(curve) == 0 {
		return []Point{}
	}
	if len(curve) > maxCurvePoints {
		step := len(curve) / maxCurvePoints
		sampled := make(domain.EquityCurve, 0, maxCurvePoints+1)
		for i := 0; i < len(curve); i += step {
			sampled = append(sampled, curve[i])
		}
		curve = sampled
	}

	var out []Point
	var lastDay time.Time
	for _, p := range curve {
		day := p.Timestamp.UTC().Truncate(24 * time.Hour)
		pt := Point{Date: p.Timestamp, Value: Metric(p.Value)}
		if !lastDay.IsZero() && day.Equal(lastDay) {
			out[len(out)-1] = pt
		} else {
			out = append(out, pt)
		}
		lastDay = day
	}
	return out
}

func overallStats(inputs []Input, portfolio, bhPortfolio domain.EquityCurve, perTestCapital float64) OverallStats {
	totalCapital := perTestCapital * float64(len(inputs))
	out := OverallStats{ExitReasons: map[string]int{}}

	var sharpes, sortinos, winRates, avgWins, avgLosses, profitFactors []float64
	for _, in := range inputs {
		s := in.Result.Stats
		sharpes = append(sharpes, s.SharpeRatio)
		sortinos = append(sortinos, s.SortinoRatio)
		winRates = append(winRates, s.WinRatePct)
		avgWins = append(avgWins, s.AvgWinPct)
		avgLosses = append(avgLosses, s.AvgLossPct)
		if !math.IsInf(s.ProfitFactor, 0) && !math.IsNaN(s.ProfitFactor) {
			profitFactors = append(profitFactors, s.ProfitFactor)
		}
		out.TotalTrades += s.TotalTrades
		for reason, n := range s.ExitReasons {
			out.ExitReasons[reason] += n
		}
	}

	if totalCapital > 0 {
		out.TotalReturnPct = Metric(portfolio.Final(totalCapital)/totalCapital*100 - 100)
		out.BuyHoldReturnPct = Metric(bhPortfolio.Final(totalCapital)/totalCapital*100 - 100)
	}
	out.SharpeRatio = Metric(meanOf(sharpes))
	out.SortinoRatio = Metric(meanOf(sortinos))
	out.WinRatePct = Metric(meanOf(winRates))
	out.AvgWinPct = Metric(meanOf(avgWins))
	out.AvgLossPct = Metric(meanOf(avgLosses))
	out.ProfitFactor = Metric(meanOf(profitFactors))
	out.MaxDrawdownPct = Metric(portfolioDrawdown(portfolio))
	return out
}

func portfolioDrawdown(curve domain.EquityCurve) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, p := range curve {
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

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m, err := stats.Mean(stats.Float64Data(vals))
	if err != nil {
		return 0
	}
	return m
}

// WriteJSON serializes the report to path, creating the file anew.
func WriteJSON(path string, rep *Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
