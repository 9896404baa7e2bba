package strategy

import (
	"math"

	"quantlab/internal/indicator"
)

// The directional variants below read pre-computed indicator arrays through
// the shared factory. A NaN indicator value makes every comparison false, so
// signals are naturally suppressed during warmup.

var (
	_ Directional = (*rsiReversion)(nil)
	_ Directional = (*bbReversion)(nil)
	_ Directional = (*stochReversion)(nil)
	_ Directional = (*macdCross)(nil)
	_ Directional = (*emaCross)(nil)
	_ Directional = (*supertrendFollower)(nil)
	_ Directional = (*heikinAshiTrend)(nil)
	_ Directional = (*donchianBreakout)(nil)
	_ Directional = (*keltnerSqueeze)(nil)
	_ Directional = (*trendFilterRSI)(nil)
	_ Directional = (*rsiStochCombo)(nil)
	_ Directional = (*bollingerRide)(nil)
)

// ---------------------------------------------------------------------------
// rsi_reversion
// ---------------------------------------------------------------------------

type rsiReversion struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *rsiReversion) Name() string { return "rsi_reversion" }

func (s *rsiReversion) Entry(i int) bool {
	return s.ind.RSI(s.p.Int("period"))[i] < s.p["oversold"]
}

func (s *rsiReversion) Exit(i int, _ *Position) string {
	if s.ind.RSI(s.p.Int("period"))[i] > s.p["overbought"] {
		return "RSI Overbought"
	}
	return ""
}

func (s *rsiReversion) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// bb_reversion
// ---------------------------------------------------------------------------

type bbReversion struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *bbReversion) Name() string { return "bb_reversion" }

func (s *bbReversion) bands() indicator.Bands {
	return s.ind.Bollinger(s.p.Int("period"), s.p["std_dev"])
}

func (s *bbReversion) Entry(i int) bool {
	if i == 0 {
		return false
	}
	lower := s.bands().Lower
	close := s.ind.Close
	return close[i-1] > lower[i-1] && close[i] < lower[i]
}

func (s *bbReversion) Exit(i int, _ *Position) string {
	if s.ind.Close[i] > s.bands().Middle[i] {
		return "Crossed middle band"
	}
	return ""
}

func (s *bbReversion) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// stoch_reversion
// ---------------------------------------------------------------------------

type stochReversion struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *stochReversion) Name() string { return "stoch_reversion" }

func (s *stochReversion) kLine() []float64 {
	return s.ind.Stochastic(s.p.Int("k_period"), s.p.Int("d_period"), s.p.Int("slowing")).K
}

func (s *stochReversion) Entry(i int) bool {
	if i == 0 {
		return false
	}
	k := s.kLine()
	return k[i] < s.p["oversold"] && k[i-1] >= s.p["oversold"]
}

func (s *stochReversion) Exit(i int, _ *Position) string {
	if s.kLine()[i] > s.p["overbought"] {
		return "Stoch Overbought"
	}
	return ""
}

func (s *stochReversion) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// macd_cross
// ---------------------------------------------------------------------------

type macdCross struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *macdCross) Name() string { return "macd_cross" }

func (s *macdCross) lines() indicator.MACDLines {
	return s.ind.MACD(s.p.Int("fast"), s.p.Int("slow"), s.p.Int("signal"))
}

func (s *macdCross) Entry(i int) bool {
	if i == 0 {
		return false
	}
	m := s.lines()
	return m.MACD[i-1] < m.Signal[i-1] && m.MACD[i] > m.Signal[i]
}

func (s *macdCross) Exit(i int, _ *Position) string {
	m := s.lines()
	if m.MACD[i] < m.Signal[i] {
		return "MACD Cross Down"
	}
	return ""
}

func (s *macdCross) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// ema_cross
// ---------------------------------------------------------------------------

type emaCross struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *emaCross) Name() string { return "ema_cross" }

func (s *emaCross) Entry(i int) bool {
	if i == 0 {
		return false
	}
	fast := s.ind.EMA(s.p.Int("fast"))
	slow := s.ind.EMA(s.p.Int("slow"))
	return fast[i-1] < slow[i-1] && fast[i] > slow[i]
}

func (s *emaCross) Exit(i int, _ *Position) string {
	fast := s.ind.EMA(s.p.Int("fast"))
	slow := s.ind.EMA(s.p.Int("slow"))
	if fast[i] < slow[i] {
		return "Death Cross (EMA)"
	}
	return ""
}

func (s *emaCross) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// supertrend_follower
// ---------------------------------------------------------------------------

type supertrendFollower struct {
	noTakeProfit
	ind *indicator.Factory
	p   Params
}

func (s *supertrendFollower) Name() string { return "supertrend_follower" }

func (s *supertrendFollower) lines() indicator.SupertrendLines {
	return s.ind.Supertrend(s.p.Int("period"), s.p["multiplier"])
}

func (s *supertrendFollower) Entry(i int) bool {
	if i == 0 {
		return false
	}
	dir := s.lines().Dir
	return dir[i-1] < 0 && dir[i] > 0
}

func (s *supertrendFollower) Exit(i int, _ *Position) string {
	if s.lines().Dir[i] < 0 {
		return "Supertrend flip"
	}
	return ""
}

// InitialStop is the Supertrend line itself; while it is NaN the caller
// rejects the entry.
func (s *supertrendFollower) InitialStop(i int, _ float64) float64 {
	return s.lines().Line[i]
}

func (s *supertrendFollower) Trail(i int, _ float64, pos *Position) {
	raiseStop(pos, s.lines().Line[i])
}

// ---------------------------------------------------------------------------
// heikin_ashi_trend
// ---------------------------------------------------------------------------

type heikinAshiTrend struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
}

func (s *heikinAshiTrend) Name() string { return "heikin_ashi_trend" }

func (s *heikinAshiTrend) Entry(i int) bool {
	if i == 0 {
		return false
	}
	ha := s.ind.HeikinAshiCandles()
	prevRed := ha.Close[i-1] < ha.Open[i-1]
	currGreen := ha.Close[i] > ha.Open[i]
	return prevRed && currGreen
}

func (s *heikinAshiTrend) Exit(i int, _ *Position) string {
	ha := s.ind.HeikinAshiCandles()
	if ha.Close[i] < ha.Open[i] {
		return "HA candle flipped red"
	}
	return ""
}

func (s *heikinAshiTrend) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(14), i, entryPrice, 2.5)
}

// ---------------------------------------------------------------------------
// donchian_breakout
// ---------------------------------------------------------------------------

type donchianBreakout struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *donchianBreakout) Name() string { return "donchian_breakout" }

// Entry compares against the prior candle's upper band: the current band
// already includes the breakout candle itself.
func (s *donchianBreakout) Entry(i int) bool {
	if i == 0 {
		return false
	}
	upper := s.ind.Donchian(s.p.Int("period")).Upper
	return s.ind.Close[i] > upper[i-1]
}

func (s *donchianBreakout) Exit(i int, _ *Position) string {
	middle := s.ind.Donchian(s.p.Int("period")).Middle
	if s.ind.Close[i] < middle[i] {
		return "Crossed middle band"
	}
	return ""
}

func (s *donchianBreakout) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// keltner_squeeze
// ---------------------------------------------------------------------------

type keltnerSqueeze struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *keltnerSqueeze) Name() string { return "keltner_squeeze" }

func (s *keltnerSqueeze) Entry(i int) bool {
	if i == 0 {
		return false
	}
	bb := s.ind.Bollinger(s.p.Int("period"), s.p["bb_std"])
	kc := s.ind.Keltner(s.p.Int("period"), s.p["kc_mult"])
	inSqueeze := bb.Lower[i-1] > kc.Lower[i-1] && bb.Upper[i-1] < kc.Upper[i-1]
	breakout := s.ind.Close[i] > bb.Upper[i-1]
	return inSqueeze && breakout
}

func (s *keltnerSqueeze) Exit(i int, _ *Position) string {
	bb := s.ind.Bollinger(s.p.Int("period"), s.p["bb_std"])
	if s.ind.Close[i] < bb.Middle[i] {
		return "Price fell to middle BB"
	}
	return ""
}

func (s *keltnerSqueeze) InitialStop(i int, _ float64) float64 {
	return s.ind.Bollinger(s.p.Int("period"), s.p["bb_std"]).Lower[i]
}

// ---------------------------------------------------------------------------
// trend_filter_rsi
// ---------------------------------------------------------------------------

type trendFilterRSI struct {
	noTakeProfit
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *trendFilterRSI) Name() string { return "trend_filter_rsi" }

func (s *trendFilterRSI) Entry(i int) bool {
	if i == 0 {
		return false
	}
	longMA := s.ind.SMA(s.p.Int("filter_period"))
	rsi := s.ind.RSI(s.p.Int("rsi_period"))
	inUptrend := s.ind.Close[i] > longMA[i]
	isDip := rsi[i] < s.p["rsi_entry"] && rsi[i-1] >= s.p["rsi_entry"]
	return inUptrend && isDip
}

func (s *trendFilterRSI) Exit(i int, _ *Position) string {
	if s.ind.RSI(s.p.Int("rsi_period"))[i] > s.p["rsi_exit"] {
		return "RSI exit level"
	}
	return ""
}

func (s *trendFilterRSI) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

// ---------------------------------------------------------------------------
// rsi_stoch_combo
// ---------------------------------------------------------------------------

type rsiStochCombo struct {
	noTrail
	ind *indicator.Factory
	p   Params
}

func (s *rsiStochCombo) Name() string { return "rsi_stoch_combo" }

func (s *rsiStochCombo) Entry(i int) bool {
	rsi := s.ind.RSI(s.p.Int("rsi_period"))[i]
	k := s.ind.Stochastic(s.p.Int("k_period"), s.p.Int("d_period"), s.p.Int("slowing")).K[i]
	return rsi < s.p["rsi_level"] && k < s.p["stoch_level"]
}

// Exit has no signal exit; the position closes on the take profit or stop.
func (s *rsiStochCombo) Exit(int, *Position) string { return "" }

func (s *rsiStochCombo) InitialStop(i int, entryPrice float64) float64 {
	return atrStop(s.ind.ATR(s.p.Int("atr_period")), i, entryPrice, s.p["atr_mult"])
}

func (s *rsiStochCombo) TakeProfit(i int, pos *Position) (float64, bool) {
	atr := s.ind.ATR(s.p.Int("atr_period"))[i]
	if math.IsNaN(atr) {
		return 0, false
	}
	return pos.EntryPrice + atr*s.p["tp_mult"], true
}

// ---------------------------------------------------------------------------
// bollinger_ride
// ---------------------------------------------------------------------------

type bollingerRide struct {
	noTakeProfit
	ind *indicator.Factory
	p   Params
}

func (s *bollingerRide) Name() string { return "bollinger_ride" }

func (s *bollingerRide) bands() indicator.Bands {
	return s.ind.Bollinger(s.p.Int("period"), s.p["std_dev"])
}

func (s *bollingerRide) Entry(i int) bool {
	if i == 0 {
		return false
	}
	upper := s.bands().Upper
	close := s.ind.Close
	return close[i-1] < upper[i-1] && close[i] > upper[i]
}

// Exit has no signal exit; the trailed middle band does the work.
func (s *bollingerRide) Exit(int, *Position) string { return "" }

// InitialStop is the tighter of a fixed 5% stop and the middle band. A NaN
// middle band falls back to the fixed stop.
func (s *bollingerRide) InitialStop(i int, entryPrice float64) float64 {
	fixed := entryPrice * 0.95
	if middle := s.bands().Middle[i]; middle < fixed {
		return middle
	}
	return fixed
}

func (s *bollingerRide) Trail(i int, _ float64, pos *Position) {
	raiseStop(pos, s.bands().Middle[i])
}
