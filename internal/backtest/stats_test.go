package backtest

import (
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func curveOf(values ...float64) domain.EquityCurve {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := make(domain.EquityCurve, len(values))
	for i, v := range values {
		c[i] = domain.EquityPoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: v}
	}
	return c
}

func tradeOf(pnl, pct float64, reason string) domain.Trade {
	return domain.Trade{PnL: pnl, PnLPct: pct, ExitReason: reason}
}

func TestComputeEmptyRunYieldsZeroRecord(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := Compute(nil, nil, 1000, 12.345, start, start.AddDate(0, 1, 0))

	if rec.TotalTrades != 0 || rec.TotalReturnPct != 0 || rec.SharpeRatio != 0 {
		t.Errorf("empty run produced non-zero stats: %+v", rec)
	}
	if rec.FinalCapital != 1000 {
		t.Errorf("final capital = %v, want initial 1000", rec.FinalCapital)
	}
	if rec.BuyHoldReturnPct != 12.35 {
		t.Errorf("buy-hold = %v, want rounded 12.35", rec.BuyHoldReturnPct)
	}
	if rec.ExitReasons == nil {
		t.Error("exit reasons map is nil")
	}
}

func TestComputeProfitFactor(t *testing.T) {
	curve := curveOf(1000, 1050, 1100)
	start, end := curve[0].Timestamp, curve[2].Timestamp

	// Wins and no losses: +Inf.
	rec := Compute([]domain.Trade{tradeOf(50, 5, "A"), tradeOf(50, 5, "A")}, curve, 1000, 0, start, end)
	if !math.IsInf(rec.ProfitFactor, 1) {
		t.Errorf("profit factor = %v, want +Inf", rec.ProfitFactor)
	}

	// No wins and no losses (all zero-PnL trades): 0, not Inf.
	rec = Compute([]domain.Trade{tradeOf(0, 0, "A")}, curve, 1000, 0, start, end)
	if rec.ProfitFactor != 0 {
		t.Errorf("profit factor = %v for zero-PnL trades, want 0", rec.ProfitFactor)
	}

	// Mixed: ratio of gross profit to gross loss.
	rec = Compute([]domain.Trade{tradeOf(60, 6, "A"), tradeOf(-30, -3, "B")}, curve, 1000, 0, start, end)
	if rec.ProfitFactor != 2 {
		t.Errorf("profit factor = %v, want 2", rec.ProfitFactor)
	}
}

func TestComputeWinRateCountsZeroPnLAsLoss(t *testing.T) {
	curve := curveOf(1000, 1010)
	trades := []domain.Trade{
		tradeOf(10, 1, "A"),
		tradeOf(0, 0, "B"),
		tradeOf(-10, -1, "C"),
		tradeOf(30, 3, "A"),
	}
	rec := Compute(trades, curve, 1000, 0, curve[0].Timestamp, curve[1].Timestamp)

	if rec.WinRatePct != 50 {
		t.Errorf("win rate = %v, want 50 (zero PnL counts as a loss)", rec.WinRatePct)
	}
	if rec.ExitReasons["A"] != 2 || rec.ExitReasons["B"] != 1 || rec.ExitReasons["C"] != 1 {
		t.Errorf("exit reason counts = %v", rec.ExitReasons)
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := curveOf(100, 120, 90, 110, 80)
	// Peak 120, trough 80: 33.33%.
	rec := Compute([]domain.Trade{tradeOf(1, 1, "A")}, curve, 100, 0, curve[0].Timestamp, curve[4].Timestamp)
	if rec.MaxDrawdownPct != 33.33 {
		t.Errorf("max drawdown = %v, want 33.33", rec.MaxDrawdownPct)
	}

	rising := curveOf(100, 110, 120)
	rec = Compute([]domain.Trade{tradeOf(1, 1, "A")}, rising, 100, 0, rising[0].Timestamp, rising[2].Timestamp)
	if rec.MaxDrawdownPct != 0 {
		t.Errorf("max drawdown = %v on a rising curve, want 0", rec.MaxDrawdownPct)
	}
}

func TestSharpeZeroOnConstantReturns(t *testing.T) {
	// Identical step returns: zero deviation, Sharpe defined as 0.
	curve := curveOf(1000, 1000, 1000, 1000)
	rec := Compute([]domain.Trade{tradeOf(1, 1, "A")}, curve, 1000, 0, curve[0].Timestamp, curve[3].Timestamp)
	if rec.SharpeRatio != 0 {
		t.Errorf("Sharpe = %v on constant equity, want 0", rec.SharpeRatio)
	}
}

func TestSortinoNeedsTwoNegativeReturns(t *testing.T) {
	// Only one down-step: Sortino stays 0.
	oneDip := curveOf(1000, 990, 1000, 1010)
	rec := Compute([]domain.Trade{tradeOf(1, 1, "A")}, oneDip, 1000, 0, oneDip[0].Timestamp, oneDip[3].Timestamp)
	if rec.SortinoRatio != 0 {
		t.Errorf("Sortino = %v with a single negative return, want 0", rec.SortinoRatio)
	}

	// Two distinct down-steps make it defined.
	twoDips := curveOf(1000, 980, 1020, 1010, 1060)
	rec = Compute([]domain.Trade{tradeOf(1, 1, "A")}, twoDips, 1000, 0, twoDips[0].Timestamp, twoDips[4].Timestamp)
	if rec.SortinoRatio == 0 {
		t.Error("Sortino = 0 with two negative returns, want non-zero")
	}
}

func TestComputeAverages(t *testing.T) {
	curve := curveOf(1000, 1100)
	trades := []domain.Trade{
		tradeOf(100, 10, "A"),
		tradeOf(-50, -5, "B"),
		tradeOf(20, 2, "A"),
	}
	rec := Compute(trades, curve, 1000, 0, curve[0].Timestamp, curve[1].Timestamp)

	if rec.AvgTradePct != 2.33 {
		t.Errorf("avg trade = %v, want 2.33", rec.AvgTradePct)
	}
	if rec.AvgWinPct != 6 {
		t.Errorf("avg win = %v, want 6", rec.AvgWinPct)
	}
	if rec.AvgLossPct != -5 {
		t.Errorf("avg loss = %v, want -5", rec.AvgLossPct)
	}
	if rec.TotalReturnPct != 10 {
		t.Errorf("total return = %v, want 10", rec.TotalReturnPct)
	}
}
