// Package strategy implements the built-in trading strategy catalog: twelve
// directional variants that hold at most one position, a continuous grid
// variant that trades a ladder of levels, and a self-reoptimizing momentum
// variant that periodically rescores its own parameter grid.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/indicator"
)

// ErrUnknownStrategy is returned by New for a name not in the catalog.
var ErrUnknownStrategy = errors.New("unknown strategy")

// UnknownParameterError reports a parameter override that the strategy does
// not define.
type UnknownParameterError struct {
	Strategy string
	Key      string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("strategy %s: unknown parameter %q", e.Strategy, e.Key)
}

// Params is a flat strategy parameter set. Integer-valued parameters are
// stored as float64 and truncated where a period or count is needed.
type Params map[string]float64

// Int returns the parameter truncated to an int.
func (p Params) Int(key string) int { return int(p[key]) }

// Position is the open-position state a simulation threads through a
// directional strategy. Tuple is only set by the self-optimizing variant.
type Position struct {
	EntryTime  time.Time
	EntryPrice float64
	Stop       float64
	Quantity   float64
	Cost       float64
	Tuple      *ParamTuple
}

// Strategy is the common surface of every catalog entry.
type Strategy interface {
	Name() string
}

// Directional is a strategy that is either flat or fully invested in one
// position. The simulation calls Entry only when flat and the other methods
// only while in a position.
type Directional interface {
	Strategy

	// Entry reports whether a new position should open at candle i.
	Entry(i int) bool
	// Exit returns a non-empty reason when the position should close for a
	// strategy signal (stops and take profits are handled by the caller).
	Exit(i int, pos *Position) string
	// InitialStop returns the protective stop for a position opened at
	// entryPrice on candle i.
	InitialStop(i int, entryPrice float64) float64
	// TakeProfit returns a target price and true when the variant uses one.
	TakeProfit(i int, pos *Position) (float64, bool)
	// Trail may raise pos.Stop; it never lowers it.
	Trail(i int, price float64, pos *Position)
}

// Continuous is a strategy that manages its own cash, inventory, and fills
// candle by candle instead of a single in/out position.
type Continuous interface {
	Strategy

	Init(capital float64, startIndex int)
	Step(i int)
	Results() ([]domain.Trade, domain.EquityCurve)
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// Kind tags how a catalog entry is simulated.
type Kind int

const (
	KindDirectional Kind = iota
	KindContinuous
	KindOptimizer
)

// Meta describes one catalog entry: its category, simulation kind, and the
// full default parameter set. Defaults are the single source of truth for
// which parameter keys a strategy accepts.
type Meta struct {
	Category    string
	Kind        Kind
	Description string
	Defaults    Params
}

// Catalog maps strategy names to their metadata.
var Catalog = map[string]Meta{
	"rsi_reversion": {
		Category:    "Mean Reversion",
		Kind:        KindDirectional,
		Description: "Buys oversold RSI readings and sells overbought ones.",
		Defaults: Params{
			"period": 14, "oversold": 30, "overbought": 70,
			"atr_period": 14, "atr_mult": 2.0,
		},
	},
	"bb_reversion": {
		Category:    "Mean Reversion",
		Kind:        KindDirectional,
		Description: "Buys a close below the lower Bollinger band, exits at the middle band.",
		Defaults: Params{
			"period": 20, "std_dev": 2.0,
			"atr_period": 14, "atr_mult": 2.5,
		},
	},
	"stoch_reversion": {
		Category:    "Mean Reversion",
		Kind:        KindDirectional,
		Description: "Buys a stochastic drop into oversold, sells overbought.",
		Defaults: Params{
			"k_period": 14, "d_period": 3, "slowing": 3,
			"oversold": 20, "overbought": 80,
			"atr_period": 14, "atr_mult": 2.0,
		},
	},
	"macd_cross": {
		Category:    "Trend Following",
		Kind:        KindDirectional,
		Description: "Enters on a MACD cross above its signal line, exits on the cross down.",
		Defaults: Params{
			"fast": 12, "slow": 26, "signal": 9,
			"atr_period": 14, "atr_mult": 3.0,
		},
	},
	"ema_cross": {
		Category:    "Trend Following",
		Kind:        KindDirectional,
		Description: "Enters on a fast/slow EMA golden cross, exits on the death cross.",
		Defaults: Params{
			"fast": 21, "slow": 55,
			"atr_period": 14, "atr_mult": 3.0,
		},
	},
	"supertrend_follower": {
		Category:    "Trend Following",
		Kind:        KindDirectional,
		Description: "Follows Supertrend direction flips and trails the Supertrend line.",
		Defaults: Params{
			"period": 10, "multiplier": 3.0,
		},
	},
	"heikin_ashi_trend": {
		Category:    "Trend Following",
		Kind:        KindDirectional,
		Description: "Enters when a red Heikin-Ashi candle flips green, exits on the flip back.",
		Defaults:    Params{},
	},
	"donchian_breakout": {
		Category:    "Volatility / Breakout",
		Kind:        KindDirectional,
		Description: "Buys a close above the prior Donchian upper band, exits at the middle.",
		Defaults: Params{
			"period": 20, "atr_period": 14, "atr_mult": 2.0,
		},
	},
	"keltner_squeeze": {
		Category:    "Volatility / Breakout",
		Kind:        KindDirectional,
		Description: "Buys a breakout from a Bollinger-inside-Keltner volatility squeeze.",
		Defaults: Params{
			"period": 20, "bb_std": 2.0, "kc_mult": 1.5,
		},
	},
	"trend_filter_rsi": {
		Category:    "Advanced & Hybrids",
		Kind:        KindDirectional,
		Description: "Buys RSI dips only while price holds above a slow trend SMA.",
		Defaults: Params{
			"filter_period": 200, "rsi_period": 14,
			"rsi_entry": 40, "rsi_exit": 70,
			"atr_period": 14, "atr_mult": 2.5,
		},
	},
	"rsi_stoch_combo": {
		Category:    "Mean Reversion",
		Kind:        KindDirectional,
		Description: "Requires RSI and stochastic oversold together; exits at an ATR take profit.",
		Defaults: Params{
			"rsi_period": 14, "k_period": 14, "d_period": 3, "slowing": 3,
			"rsi_level": 35, "stoch_level": 25,
			"atr_period": 14, "atr_mult": 2.0, "tp_mult": 4.0,
		},
	},
	"bollinger_ride": {
		Category:    "Trend Following",
		Kind:        KindDirectional,
		Description: "Rides a breakout above the upper Bollinger band, trailing the middle band.",
		Defaults: Params{
			"period": 20, "std_dev": 2.0,
		},
	},
	"grid": {
		Category:    "Market Neutral",
		Kind:        KindContinuous,
		Description: "Floating buy/sell ladder that harvests volatility around the current price.",
		Defaults: Params{
			"max_grids": 20, "spacing_pct": 1.0,
		},
	},
	"dynamic_momentum": {
		Category:    "Self-Optimizing",
		Kind:        KindOptimizer,
		Description: "Reoptimizes a moving-average crossover grid on recent data as it trades.",
		Defaults:    Params{},
	},
}

// New builds a catalog strategy bound to the candle series and its indicator
// factory. Overrides replace catalog defaults; a key the strategy does not
// define is an error. The optimizer variant takes its configuration
// separately via NewOptimizer.
func New(name string, overrides map[string]float64, candles domain.Series, ind *indicator.Factory) (Strategy, error) {
	meta, ok := Catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}

	p := make(Params, len(meta.Defaults))
	for k, v := range meta.Defaults {
		p[k] = v
	}
	for k, v := range overrides {
		if _, ok := meta.Defaults[k]; !ok {
			return nil, &UnknownParameterError{Strategy: name, Key: k}
		}
		p[k] = v
	}

	switch name {
	case "rsi_reversion":
		return &rsiReversion{ind: ind, p: p}, nil
	case "bb_reversion":
		return &bbReversion{ind: ind, p: p}, nil
	case "stoch_reversion":
		return &stochReversion{ind: ind, p: p}, nil
	case "macd_cross":
		return &macdCross{ind: ind, p: p}, nil
	case "ema_cross":
		return &emaCross{ind: ind, p: p}, nil
	case "supertrend_follower":
		return &supertrendFollower{ind: ind, p: p}, nil
	case "heikin_ashi_trend":
		return &heikinAshiTrend{ind: ind}, nil
	case "donchian_breakout":
		return &donchianBreakout{ind: ind, p: p}, nil
	case "keltner_squeeze":
		return &keltnerSqueeze{ind: ind, p: p}, nil
	case "trend_filter_rsi":
		return &trendFilterRSI{ind: ind, p: p}, nil
	case "rsi_stoch_combo":
		return &rsiStochCombo{ind: ind, p: p}, nil
	case "bollinger_ride":
		return &bollingerRide{ind: ind, p: p}, nil
	case "grid":
		return newGrid(p, candles), nil
	case "dynamic_momentum":
		return NewOptimizer(DefaultOptimizerConfig(), ind), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// ---------------------------------------------------------------------------
// Shared directional behavior
// ---------------------------------------------------------------------------

// noTakeProfit and noTrail are embedded by variants without those behaviors.
type noTakeProfit struct{}

func (noTakeProfit) TakeProfit(int, *Position) (float64, bool) { return 0, false }

type noTrail struct{}

func (noTrail) Trail(int, float64, *Position) {}

// atrStop returns entryPrice minus mult ATRs, falling back to a fixed 5%
// stop while the ATR is still warming up.
func atrStop(atr []float64, i int, entryPrice, mult float64) float64 {
	if i < len(atr) && !math.IsNaN(atr[i]) {
		return entryPrice - atr[i]*mult
	}
	return entryPrice * 0.95
}

// raiseStop lifts the position stop to candidate if it is higher. A NaN
// candidate is ignored.
func raiseStop(pos *Position, candidate float64) {
	if candidate > pos.Stop {
		pos.Stop = candidate
	}
}
