package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
)

func seriesFromCloses(closes []float64) domain.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(domain.Series, len(closes))
	for i, c := range closes {
		s[i] = domain.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100,
		}
	}
	return s
}

func TestNewUnknownStrategy(t *testing.T) {
	candles := seriesFromCloses([]float64{100, 101, 102})
	_, err := New("no_such_thing", nil, candles, indicator.NewFactory(candles))
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("New returned %v, want ErrUnknownStrategy", err)
	}
}

func TestNewRejectsUnknownParameter(t *testing.T) {
	candles := seriesFromCloses([]float64{100, 101, 102})
	_, err := New("rsi_reversion", map[string]float64{"bogus": 1}, candles, indicator.NewFactory(candles))

	var perr *UnknownParameterError
	if !errors.As(err, &perr) {
		t.Fatalf("New returned %v, want UnknownParameterError", err)
	}
	if perr.Key != "bogus" {
		t.Errorf("error key = %q, want %q", perr.Key, "bogus")
	}
}

func TestEveryCatalogEntryConstructs(t *testing.T) {
	candles := seriesFromCloses([]float64{100, 101, 102, 103, 104})
	ind := indicator.NewFactory(candles)
	for name, meta := range Catalog {
		st, err := New(name, nil, candles, ind)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", name, err)
		}
		if st.Name() != name {
			t.Errorf("strategy %q reports name %q", name, st.Name())
		}
		switch meta.Kind {
		case KindDirectional:
			if _, ok := st.(Directional); !ok {
				t.Errorf("%q is not Directional", name)
			}
		case KindContinuous:
			if _, ok := st.(Continuous); !ok {
				t.Errorf("%q is not Continuous", name)
			}
		case KindOptimizer:
			if _, ok := st.(*Optimizer); !ok {
				t.Errorf("%q is not an *Optimizer", name)
			}
		}
	}
}

func TestParameterOverrideIsApplied(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 200 - float64(i) // steady decline, RSI pinned at 0
	}
	candles := seriesFromCloses(closes)
	ind := indicator.NewFactory(candles)

	st, err := New("rsi_reversion", map[string]float64{"oversold": -1}, candles, ind)
	if err != nil {
		t.Fatal(err)
	}
	// With an impossible oversold level no entry can fire.
	if st.(Directional).Entry(30) {
		t.Error("entry fired despite oversold level below the RSI range")
	}
}

func TestRsiReversionSignals(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	candles := seriesFromCloses(closes)
	st, _ := New("rsi_reversion", nil, candles, indicator.NewFactory(candles))
	d := st.(Directional)

	if d.Entry(10) {
		t.Error("entry fired during indicator warmup")
	}
	if !d.Entry(30) {
		t.Error("no entry with RSI pinned at 0 on a falling series")
	}

	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	candles = seriesFromCloses(rising)
	st, _ = New("rsi_reversion", nil, candles, indicator.NewFactory(candles))
	d = st.(Directional)
	if got := d.Exit(30, &Position{}); got != "RSI Overbought" {
		t.Errorf("Exit = %q on a rising series, want RSI Overbought", got)
	}
}

func TestEmaCrossSignals(t *testing.T) {
	// V-shape: decline long enough to put the fast EMA below the slow one,
	// then a sharp recovery to force exactly one golden cross.
	closes := make([]float64, 120)
	for i := 0; i < 80; i++ {
		closes[i] = 200 - float64(i)
	}
	for i := 80; i < 120; i++ {
		closes[i] = 120 + 3*float64(i-80)
	}
	candles := seriesFromCloses(closes)
	st, _ := New("ema_cross", map[string]float64{"fast": 5, "slow": 20}, candles, indicator.NewFactory(candles))
	d := st.(Directional)

	entries := 0
	for i := 1; i < 120; i++ {
		if d.Entry(i) {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("golden crosses = %d, want exactly 1", entries)
	}
	// During the decline the fast EMA is below the slow one.
	if got := d.Exit(70, &Position{}); got != "Death Cross (EMA)" {
		t.Errorf("Exit = %q during decline, want Death Cross (EMA)", got)
	}
}

func TestAtrStopFallback(t *testing.T) {
	atr := []float64{math.NaN(), 2.0}

	if got := atrStop(atr, 0, 100, 3); got != 95 {
		t.Errorf("NaN ATR stop = %v, want 95 (fixed 5%% fallback)", got)
	}
	if got := atrStop(atr, 1, 100, 3); got != 94 {
		t.Errorf("ATR stop = %v, want 94", got)
	}
	if got := atrStop(atr, 5, 100, 3); got != 95 {
		t.Errorf("out-of-range ATR stop = %v, want fallback 95", got)
	}
}

func TestRaiseStopNeverLowers(t *testing.T) {
	pos := &Position{Stop: 90}
	raiseStop(pos, 95)
	if pos.Stop != 95 {
		t.Fatalf("stop = %v after raise, want 95", pos.Stop)
	}
	raiseStop(pos, 80)
	if pos.Stop != 95 {
		t.Errorf("stop lowered to %v", pos.Stop)
	}
	raiseStop(pos, math.NaN())
	if pos.Stop != 95 {
		t.Errorf("NaN candidate changed stop to %v", pos.Stop)
	}
}

func TestGridInitLevels(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100
	}
	candles := seriesFromCloses(closes)
	st, _ := New("grid", map[string]float64{"max_grids": 10, "spacing_pct": 1.0}, candles, indicator.NewFactory(candles))
	g := st.(*grid)
	g.Init(1000, 1)

	if g.cash != 500 {
		t.Errorf("cash = %v after init, want 500", g.cash)
	}
	if math.Abs(g.baseQty-5) > 1e-9 {
		t.Errorf("baseQty = %v, want 5", g.baseQty)
	}
	if len(g.buys) != 5 || len(g.sells) != 5 {
		t.Fatalf("ladder sizes = %d buys / %d sells, want 5/5", len(g.buys), len(g.sells))
	}
	for level := range g.buys {
		if level >= 100 {
			t.Errorf("buy level %v at or above seed price", level)
		}
	}
	for level := range g.sells {
		if level <= 100 {
			t.Errorf("sell level %v at or below seed price", level)
		}
	}
	if g.quotePerGrid != 100 {
		t.Errorf("quotePerGrid = %v, want 100", g.quotePerGrid)
	}
}

func TestGridOscillationClosesPair(t *testing.T) {
	// Seed at 100 with 1% spacing: first buy level ~99.0099, its paired
	// sell ~100.0100. One dip and one pop should close exactly one pair.
	candles := seriesFromCloses([]float64{100, 100, 100, 100})
	candles[1].High, candles[1].Low = 100.2, 99.5 // quiet
	candles[2].High, candles[2].Low = 100.0, 99.0 // fills the first buy
	candles[3].High, candles[3].Low = 100.5, 99.8 // fills the paired sell

	st, _ := New("grid", nil, candles, indicator.NewFactory(candles))
	g := st.(*grid)
	g.Init(1000, 1)
	for i := 1; i < len(candles); i++ {
		g.Step(i)
	}

	trades, equity := g.Results()
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != "Grid Pair Closed" {
		t.Errorf("exit reason = %q", tr.ExitReason)
	}
	if tr.PnL <= 0 {
		t.Errorf("pair PnL = %v, want > 0", tr.PnL)
	}
	if tr.ExitPrice <= tr.EntryPrice {
		t.Errorf("exit %v not above entry %v", tr.ExitPrice, tr.EntryPrice)
	}
	// Seed point plus one per processed candle.
	if len(equity) != 4 {
		t.Errorf("equity points = %d, want 4", len(equity))
	}
}

func TestGridSkipsFillsWithoutCash(t *testing.T) {
	closes := make([]float64, 3)
	for i := range closes {
		closes[i] = 100
	}
	candles := seriesFromCloses(closes)
	candles[2].Low = 50 // crashes through every buy level

	st, _ := New("grid", map[string]float64{"max_grids": 4, "spacing_pct": 1.0}, candles, indicator.NewFactory(candles))
	g := st.(*grid)
	g.Init(1000, 1)
	g.Step(1)
	g.Step(2)

	if g.cash < 0 {
		t.Fatalf("cash went negative: %v", g.cash)
	}
}

func TestOptimizerGridExcludesInvertedPairs(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	cfg.FastPeriods = []int{10, 100}
	cfg.SlowPeriods = []int{50, 90}
	cfg.VolPeriods = []int{10}
	cfg.StopMults = []float64{1.0}

	candles := seriesFromCloses([]float64{100, 101, 102})
	o := NewOptimizer(cfg, indicator.NewFactory(candles))

	// 10<50, 10<90; 100 is below neither slow period.
	if len(o.tuples) != 2 {
		t.Fatalf("tuple grid size = %d, want 2", len(o.tuples))
	}
	for _, tp := range o.tuples {
		if tp.Fast >= tp.Slow {
			t.Errorf("inverted tuple %+v in grid", tp)
		}
	}
}

func TestOptimizerDeterministicWithSeed(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i)/10
	}
	candles := seriesFromCloses(closes)

	cfg := DefaultOptimizerConfig()
	cfg.FastPeriods = []int{5, 8}
	cfg.SlowPeriods = []int{20, 30}
	cfg.VolPeriods = []int{10}
	cfg.StopMults = []float64{1.0, 2.0}
	cfg.Lookback = 100
	cfg.ExplorationRate = 0.5
	cfg.Seed = 42

	run := func() ([]ParamTuple, []bool) {
		o := NewOptimizer(cfg, indicator.NewFactory(candles))
		o.Optimize(150)
		var entries []bool
		for i := 150; i < 200; i++ {
			_, ok := o.Entry(i)
			entries = append(entries, ok)
		}
		return o.Memory(), entries
	}

	mem1, ent1 := run()
	mem2, ent2 := run()
	if len(mem1) != len(mem2) {
		t.Fatalf("memory sizes differ: %d vs %d", len(mem1), len(mem2))
	}
	for i := range mem1 {
		if mem1[i] != mem2[i] {
			t.Fatalf("memory[%d] differs: %+v vs %+v", i, mem1[i], mem2[i])
		}
	}
	for i := range ent1 {
		if ent1[i] != ent2[i] {
			t.Fatalf("entry decision %d differs", i)
		}
	}
}

func TestOptimizerExitPrefersSignalOverStop(t *testing.T) {
	// Accelerating rise then a sharp decline: the short slope runs above
	// the long one on the way up and crosses strictly below it after the
	// peak.
	closes := make([]float64, 120)
	for i := 0; i < 60; i++ {
		closes[i] = 100 + 0.02*float64(i)*float64(i)
	}
	for i := 60; i < 120; i++ {
		closes[i] = closes[59] - 2*float64(i-59)
	}
	candles := seriesFromCloses(closes)
	cfg := DefaultOptimizerConfig()
	cfg.FastPeriods = []int{5}
	cfg.SlowPeriods = []int{20}
	cfg.VolPeriods = []int{10}
	cfg.StopMults = []float64{1.0}
	o := NewOptimizer(cfg, indicator.NewFactory(candles))

	tuple := ParamTuple{Fast: 5, Slow: 20, Vol: 10, StopMult: 1.0}
	pos := &Position{EntryPrice: 150, Stop: 1e9, Tuple: &tuple} // stop always breached

	// Find the candle where the fast slope crosses below the slow slope;
	// the signal must win over the breached stop there.
	sawSignal := false
	for i := 60; i < 119; i++ {
		reason := o.Exit(i, closes[i], pos)
		if reason == "Signal Cross" {
			sawSignal = true
			break
		}
		if reason != "Stop Loss" && reason != "" {
			t.Fatalf("unexpected exit reason %q", reason)
		}
	}
	if !sawSignal {
		t.Error("signal cross never fired on the downturn")
	}
}

func TestScoreTupleRewardsProfitableCross(t *testing.T) {
	n := 60
	fast := make([]float64, n)
	slow := make([]float64, n)
	vol := make([]float64, n)
	close := make([]float64, n)
	for i := 0; i < n; i++ {
		close[i] = 100 + float64(i)
		vol[i] = 1
		// Fast crosses above slow at i=10 and below at i=50.
		switch {
		case i < 10:
			fast[i], slow[i] = 1, 2
		case i < 50:
			fast[i], slow[i] = 3, 2
		default:
			fast[i], slow[i] = 1, 2
		}
	}

	score := scoreTuple(fast, slow, vol, close, 1, n, 100, 1) // wide stop, no trail exit
	// Entry at close[10]=110, death-cross exit at close[50]=150: a single
	// winning trade and no losers scores gp*1000.
	want := (150.0 - 110.0) / 110.0 * 1000
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", score, want)
	}
}

func TestScoreGridMatchesSequentialScoring(t *testing.T) {
	closes := make([]float64, 300)
	for i := range closes {
		closes[i] = 100 + 20*math.Sin(float64(i)/11) + float64(i)/20
	}
	candles := seriesFromCloses(closes)
	ind := indicator.NewFactory(candles)

	tuples := []ParamTuple{
		{Fast: 5, Slow: 20, Vol: 10, StopMult: 1.0},
		{Fast: 8, Slow: 30, Vol: 15, StopMult: 2.0},
		{Fast: 5, Slow: 30, Vol: 10, StopMult: 0.5},
	}
	got := ScoreGrid(ind, tuples, 50, 300, 1.0)

	for k, tp := range tuples {
		want := scoreTuple(ind.SMA(tp.Fast), ind.SMA(tp.Slow), ind.Std(tp.Vol),
			ind.Close, 51, 300, tp.StopMult, 1.0)
		if got[k] != want {
			t.Errorf("tuple %d: parallel score %v != sequential %v", k, got[k], want)
		}
	}
}
