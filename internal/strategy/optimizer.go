package strategy

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"quantlab/internal/indicator"
)

// ParamTuple is one point in the optimizer's search space: a moving-average
// crossover pair, a volatility window, and a stop multiplier.
type ParamTuple struct {
	Fast     int
	Slow     int
	Vol      int
	StopMult float64
}

// OptimizerConfig bounds the search space and controls the reoptimization
// cadence of the self-optimizing variant.
type OptimizerConfig struct {
	Lookback        int // candles scored per reoptimization
	ReoptimizeEvery int // candles between reoptimizations

	FastPeriods []int
	SlowPeriods []int
	VolPeriods  []int
	StopMults   []float64

	MemorySize          int     // ranked tuples kept between reoptimizations
	ConfidenceThreshold float64 // minimum score to enter the memory
	ExplorationRate     float64 // chance of trying a random tuple when none signal
	TrailTriggerMult    float64 // profit in stop-widths before the trail arms
	Seed                int64
}

// DefaultOptimizerConfig returns the stock search space.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		Lookback:            500,
		ReoptimizeEvery:     168,
		FastPeriods:         intRange(10, 80, 4),
		SlowPeriods:         intRange(90, 300, 10),
		VolPeriods:          intRange(10, 60, 5),
		StopMults:           floatRange(1.0, 5.5, 0.5),
		MemorySize:          25,
		ConfidenceThreshold: 3.0,
		ExplorationRate:     0.01,
		TrailTriggerMult:    1.0,
		Seed:                1,
	}
}

func intRange(from, to, step int) []int {
	var out []int
	for v := from; v < to; v += step {
		out = append(out, v)
	}
	return out
}

func floatRange(from, to, step float64) []float64 {
	var out []float64
	for v := from; v <= to+1e-9; v += step {
		out = append(out, v)
	}
	return out
}

type scoredTuple struct {
	ParamTuple
	Score float64
}

// Optimizer is the self-reoptimizing momentum variant. Instead of fixed
// parameters it rescores its whole tuple grid on a trailing window every
// ReoptimizeEvery candles and trades the highest-ranked tuples. Entries need
// a slope cross on a remembered tuple; a seeded random source occasionally
// explores an arbitrary tuple so the memory cannot starve.
type Optimizer struct {
	cfg    OptimizerConfig
	ind    *indicator.Factory
	tuples []ParamTuple
	memory []scoredTuple
	rng    *rand.Rand
}

var _ Strategy = (*Optimizer)(nil)

// NewOptimizer builds the tuple grid from the config bounds; pairs with
// fast >= slow are excluded.
func NewOptimizer(cfg OptimizerConfig, ind *indicator.Factory) *Optimizer {
	var tuples []ParamTuple
	for _, fast := range cfg.FastPeriods {
		for _, slow := range cfg.SlowPeriods {
			if fast >= slow {
				continue
			}
			for _, vol := range cfg.VolPeriods {
				for _, mult := range cfg.StopMults {
					tuples = append(tuples, ParamTuple{Fast: fast, Slow: slow, Vol: vol, StopMult: mult})
				}
			}
		}
	}
	return &Optimizer{
		cfg:    cfg,
		ind:    ind,
		tuples: tuples,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (o *Optimizer) Name() string { return "dynamic_momentum" }

// Config returns the active configuration.
func (o *Optimizer) Config() OptimizerConfig { return o.cfg }

// Optimize rescores the tuple grid on [i-Lookback, i) and rebuilds the
// ranked memory. Tuples below the confidence threshold are dropped; if none
// qualify the single best tuple is kept as a fallback.
func (o *Optimizer) Optimize(i int) {
	scores := ScoreGrid(o.ind, o.tuples, i-o.cfg.Lookback, i, o.cfg.TrailTriggerMult)

	order := make([]int, len(scores))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	o.memory = o.memory[:0]
	for _, j := range order {
		if scores[j] < o.cfg.ConfidenceThreshold {
			continue
		}
		o.memory = append(o.memory, scoredTuple{ParamTuple: o.tuples[j], Score: scores[j]})
		if len(o.memory) == o.cfg.MemorySize {
			break
		}
	}
	if len(o.memory) == 0 && len(order) > 0 {
		j := order[0]
		o.memory = append(o.memory, scoredTuple{ParamTuple: o.tuples[j], Score: scores[j]})
	}
}

// Memory returns the current ranked tuples, best first.
func (o *Optimizer) Memory() []ParamTuple {
	out := make([]ParamTuple, len(o.memory))
	for i, st := range o.memory {
		out[i] = st.ParamTuple
	}
	return out
}

// Entry scans the memory for a tuple whose fast SMA slope just crossed above
// its slow SMA slope. When nothing signals, a random tuple is tried with
// probability ExplorationRate.
func (o *Optimizer) Entry(i int) (ParamTuple, bool) {
	if i > 0 {
		for _, st := range o.memory {
			fast := o.ind.SlopeSMA(st.Fast)
			slow := o.ind.SlopeSMA(st.Slow)
			if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) ||
				math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) {
				continue
			}
			if fast[i-1] < slow[i-1] && fast[i] > slow[i] {
				return st.ParamTuple, true
			}
		}
	}
	if len(o.tuples) > 0 && o.rng.Float64() < o.cfg.ExplorationRate {
		return o.tuples[o.rng.Intn(len(o.tuples))], true
	}
	return ParamTuple{}, false
}

// Exit checks the slope cross-down first; only when the signal is quiet does
// the protective stop apply.
func (o *Optimizer) Exit(i int, price float64, pos *Position) string {
	t := pos.Tuple
	if t == nil {
		return ""
	}
	if i > 0 {
		fast := o.ind.SlopeSMA(t.Fast)
		slow := o.ind.SlopeSMA(t.Slow)
		if fast[i-1] > slow[i-1] && fast[i] < slow[i] {
			return "Signal Cross"
		}
	}
	if price < pos.Stop {
		return "Stop Loss"
	}
	return ""
}

// Trail arms once the open profit exceeds TrailTriggerMult stop-widths, then
// ratchets the stop one stop-width below price. The stop-width is the
// tuple's rolling standard deviation times its multiplier.
func (o *Optimizer) Trail(i int, price float64, pos *Position) {
	t := pos.Tuple
	if t == nil {
		return
	}
	vol := o.ind.Std(t.Vol)
	if i >= len(vol) || math.IsNaN(vol[i]) {
		return
	}
	if price-pos.EntryPrice > vol[i]*t.StopMult*o.cfg.TrailTriggerMult {
		raiseStop(pos, price-vol[i]*t.StopMult)
	}
}

// Volatility returns the rolling standard deviation used as the tuple's
// stop-width basis.
func (o *Optimizer) Volatility(t ParamTuple) []float64 {
	return o.ind.Std(t.Vol)
}

// ---------------------------------------------------------------------------
// Parallel grid scoring
// ---------------------------------------------------------------------------

// ScoreGrid runs a miniature long-only crossover simulation for every tuple
// over close[start:end] and returns gross-profit/gross-loss scores. A tuple
// with profits and no losses scores its gross profit times 1000; a tuple
// with nothing scores 0. Tuples are independent, so they are scored by a
// fixed worker pool.
func ScoreGrid(ind *indicator.Factory, tuples []ParamTuple, start, end int, trailTriggerMult float64) []float64 {
	scores := make([]float64, len(tuples))
	if len(tuples) == 0 {
		return scores
	}
	// The first scored candle needs a predecessor for the cross checks.
	start++
	if start < 1 {
		start = 1
	}
	if end > len(ind.Close) {
		end = len(ind.Close)
	}

	// Materialize the shared arrays up front; the factory cache is not
	// synchronized.
	smas := make(map[int][]float64)
	vols := make(map[int][]float64)
	for _, t := range tuples {
		if _, ok := smas[t.Fast]; !ok {
			smas[t.Fast] = ind.SMA(t.Fast)
		}
		if _, ok := smas[t.Slow]; !ok {
			smas[t.Slow] = ind.SMA(t.Slow)
		}
		if _, ok := vols[t.Vol]; !ok {
			vols[t.Vol] = ind.Std(t.Vol)
		}
	}

	workers := runtime.NumCPU()
	if workers > len(tuples) {
		workers = len(tuples)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for k := range jobs {
				t := tuples[k]
				scores[k] = scoreTuple(smas[t.Fast], smas[t.Slow], vols[t.Vol],
					ind.Close, start, end, t.StopMult, trailTriggerMult)
			}
		}()
	}
	for k := range tuples {
		jobs <- k
	}
	close(jobs)
	wg.Wait()

	return scores
}

func scoreTuple(fast, slow, vol, close []float64, start, end int, stopMult, trailTriggerMult float64) float64 {
	var grossProfit, grossLoss, entry, stop float64
	inPos := false

	for i := start; i < end; i++ {
		if math.IsNaN(fast[i]) || math.IsNaN(slow[i]) ||
			math.IsNaN(fast[i-1]) || math.IsNaN(slow[i-1]) || math.IsNaN(vol[i]) {
			continue
		}
		gold := fast[i-1] < slow[i-1] && fast[i] > slow[i]
		death := fast[i-1] > slow[i-1] && fast[i] < slow[i]

		price := close[i]
		switch {
		case !inPos && gold:
			inPos, entry = true, price
			stop = entry - vol[i]*stopMult
		case inPos:
			if price-entry > vol[i]*stopMult*trailTriggerMult {
				if newStop := price - vol[i]*stopMult; newStop > stop {
					stop = newStop
				}
			}
			if price < stop || death {
				pnl := (price - entry) / entry
				if pnl > 0 {
					grossProfit += pnl
				} else {
					grossLoss -= pnl
				}
				inPos = false
			}
		}
	}

	switch {
	case grossLoss > 0:
		return grossProfit / grossLoss
	case grossProfit > 0:
		return grossProfit * 1000
	default:
		return 0
	}
}
