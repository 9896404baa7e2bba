// Package indicator computes technical indicator arrays from a candle
// series. A Factory is bound to one series and caches every computed array
// under a structured descriptor key, so composite indicators and multiple
// strategies share sub-indicators (an ATR, an SMA) instead of recomputing
// them. All outputs have the same length as the input series, with NaN
// marking positions before an indicator's warmup window.
package indicator

import (
	"quantlab/internal/domain"
)

// kind identifies an indicator family inside a descriptor key.
type kind uint8

const (
	kindSMA kind = iota
	kindEMA
	kindRSI
	kindATR
	kindStd
	kindSlope
	kindBBands
	kindKeltner
	kindMACD
	kindADX
	kindStoch
	kindDonchian
	kindIchimoku
	kindSupertrend
	kindHeikinAshi
)

// key is the structured descriptor used for caching: an indicator kind plus
// its integer and float parameters. Equal parameters always produce the same
// key, so lookups never go through strings.
type key struct {
	kind       kind
	p1, p2, p3 int
	f1         float64
}

// Factory computes and caches indicator arrays for a single candle series.
// It is not safe for concurrent use; each simulation run owns its own
// Factory.
type Factory struct {
	Open  []float64
	High  []float64
	Low   []float64
	Close []float64

	series  map[key][]float64
	bundles map[key]any
}

// NewFactory extracts the OHLC columns from the series and returns an empty
// cache bound to them.
func NewFactory(candles domain.Series) *Factory {
	return &Factory{
		Open:    candles.Opens(),
		High:    candles.Highs(),
		Low:     candles.Lows(),
		Close:   candles.Closes(),
		series:  make(map[key][]float64),
		bundles: make(map[key]any),
	}
}

func (f *Factory) cached(k key, compute func() []float64) []float64 {
	if v, ok := f.series[k]; ok {
		return v
	}
	v := compute()
	f.series[k] = v
	return v
}

func cachedBundle[T any](f *Factory, k key, compute func() T) T {
	if v, ok := f.bundles[k]; ok {
		return v.(T)
	}
	v := compute()
	f.bundles[k] = v
	return v
}

// ---------------------------------------------------------------------------
// Single-array indicators
// ---------------------------------------------------------------------------

// SMA returns the simple moving average of the close price.
func (f *Factory) SMA(period int) []float64 {
	return f.cached(key{kind: kindSMA, p1: period}, func() []float64 {
		return sma(f.Close, period)
	})
}

// EMA returns the exponential moving average of the close price.
func (f *Factory) EMA(period int) []float64 {
	return f.cached(key{kind: kindEMA, p1: period}, func() []float64 {
		return ema(f.Close, period)
	})
}

// RSI returns Wilder's relative strength index of the close price.
func (f *Factory) RSI(period int) []float64 {
	return f.cached(key{kind: kindRSI, p1: period}, func() []float64 {
		return rsi(f.Close, period)
	})
}

// ATR returns Wilder's average true range.
func (f *Factory) ATR(period int) []float64 {
	return f.cached(key{kind: kindATR, p1: period}, func() []float64 {
		return atr(f.High, f.Low, f.Close, period)
	})
}

// Std returns the rolling population standard deviation of the close price.
func (f *Factory) Std(period int) []float64 {
	return f.cached(key{kind: kindStd, p1: period}, func() []float64 {
		return rollingStd(f.Close, period)
	})
}

// SlopeSMA returns the rolling least-squares slope of the period-SMA, using
// the same window as the average itself.
func (f *Factory) SlopeSMA(period int) []float64 {
	return f.cached(key{kind: kindSlope, p1: period}, func() []float64 {
		return rollingSlope(f.SMA(period), period)
	})
}

// ---------------------------------------------------------------------------
// Composite indicators
// ---------------------------------------------------------------------------

// Bands is an upper/middle/lower channel (Bollinger, Keltner, Donchian).
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// MACDLines holds the MACD line and its signal line.
type MACDLines struct {
	MACD   []float64
	Signal []float64
}

// ADXLines holds the smoothed ADX and the two directional-movement lines.
type ADXLines struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// StochLines holds the slowed %K line and its %D moving average.
type StochLines struct {
	K []float64
	D []float64
}

// IchimokuLines holds the five Ichimoku cloud components.
type IchimokuLines struct {
	Tenkan  []float64
	Kijun   []float64
	SenkouA []float64
	SenkouB []float64
	Chikou  []float64
}

// SupertrendLines holds the Supertrend stop line and its direction
// (+1 up-trend, -1 down-trend).
type SupertrendLines struct {
	Line []float64
	Dir  []float64
}

// HeikinAshi holds the reconstructed synthetic candles.
type HeikinAshi struct {
	Open  []float64
	High  []float64
	Low   []float64
	Close []float64
}

// Bollinger returns Bollinger bands: SMA middle, ± stdDev rolling standard
// deviations.
func (f *Factory) Bollinger(period int, stdDev float64) Bands {
	return cachedBundle(f, key{kind: kindBBands, p1: period, f1: stdDev}, func() Bands {
		middle := f.SMA(period)
		std := f.Std(period)
		n := len(middle)
		upper := make([]float64, n)
		lower := make([]float64, n)
		for i := 0; i < n; i++ {
			upper[i] = middle[i] + std[i]*stdDev
			lower[i] = middle[i] - std[i]*stdDev
		}
		return Bands{Upper: upper, Middle: middle, Lower: lower}
	})
}

// Keltner returns Keltner channels: EMA middle, ± mult ATRs.
func (f *Factory) Keltner(period int, mult float64) Bands {
	return cachedBundle(f, key{kind: kindKeltner, p1: period, f1: mult}, func() Bands {
		middle := f.EMA(period)
		atrArr := f.ATR(period)
		n := len(middle)
		upper := make([]float64, n)
		lower := make([]float64, n)
		for i := 0; i < n; i++ {
			upper[i] = middle[i] + atrArr[i]*mult
			lower[i] = middle[i] - atrArr[i]*mult
		}
		return Bands{Upper: upper, Middle: middle, Lower: lower}
	})
}

// MACD returns the MACD line (fast EMA − slow EMA) and its signal EMA.
func (f *Factory) MACD(fast, slow, signal int) MACDLines {
	return cachedBundle(f, key{kind: kindMACD, p1: fast, p2: slow, p3: signal}, func() MACDLines {
		emaFast := f.EMA(fast)
		emaSlow := f.EMA(slow)
		line := make([]float64, len(emaFast))
		for i := range line {
			line[i] = emaFast[i] - emaSlow[i]
		}
		return MACDLines{MACD: line, Signal: ema(line, signal)}
	})
}

// ADX returns the Wilder-smoothed ADX with its +DI/−DI lines, computed in
// dependency order: true range, directional movement, smoothed DI, DX, ADX.
// A zero DX denominator maps to 0.
func (f *Factory) ADX(period int) ADXLines {
	return cachedBundle(f, key{kind: kindADX, p1: period}, func() ADXLines {
		n := len(f.Close)
		plusDM := nanSlice(n)
		minusDM := nanSlice(n)
		for i := 1; i < n; i++ {
			up := f.High[i] - f.High[i-1]
			down := f.Low[i-1] - f.Low[i]
			plusDM[i], minusDM[i] = 0, 0
			if up > down && up > 0 {
				plusDM[i] = up
			}
			if down > up && down > 0 {
				minusDM[i] = down
			}
		}

		smATR := wilderSmooth(trueRange(f.High, f.Low, f.Close), period)
		smPlus := wilderSmooth(plusDM, period)
		smMinus := wilderSmooth(minusDM, period)

		plusDI := nanSlice(n)
		minusDI := nanSlice(n)
		dx := nanSlice(n)
		for i := 0; i < n; i++ {
			denom := smATR[i]
			if denom == 0 {
				denom = 1
			}
			plusDI[i] = 100 * smPlus[i] / denom
			minusDI[i] = 100 * smMinus[i] / denom
			sum := plusDI[i] + minusDI[i]
			if sum == 0 {
				dx[i] = 0
			} else {
				dx[i] = 100 * abs(plusDI[i]-minusDI[i]) / sum
			}
		}
		return ADXLines{ADX: wilderSmooth(dx, period), PlusDI: plusDI, MinusDI: minusDI}
	})
}

// Stochastic returns the slowed %K and %D lines. A zero high-low range
// inside the lookback yields NaN for that position, which strategies treat
// as "no signal".
func (f *Factory) Stochastic(kPeriod, dPeriod, slowing int) StochLines {
	return cachedBundle(f, key{kind: kindStoch, p1: kPeriod, p2: dPeriod, p3: slowing}, func() StochLines {
		lowK := rollingMin(f.Low, kPeriod)
		highK := rollingMax(f.High, kPeriod)
		n := len(f.Close)
		raw := nanSlice(n)
		for i := 0; i < n; i++ {
			span := highK[i] - lowK[i]
			if span != 0 {
				raw[i] = 100 * (f.Close[i] - lowK[i]) / span
			}
		}
		k := rollingMean(raw, slowing)
		return StochLines{K: k, D: rollingMean(k, dPeriod)}
	})
}

// Donchian returns the Donchian channel over the period.
func (f *Factory) Donchian(period int) Bands {
	return cachedBundle(f, key{kind: kindDonchian, p1: period}, func() Bands {
		upper := rollingMax(f.High, period)
		lower := rollingMin(f.Low, period)
		middle := make([]float64, len(upper))
		for i := range middle {
			middle[i] = (upper[i] + lower[i]) / 2
		}
		return Bands{Upper: upper, Middle: middle, Lower: lower}
	})
}

// Ichimoku returns the five Ichimoku components; the senkou spans are
// shifted forward by the kijun period and the chikou line backward.
func (f *Factory) Ichimoku(tenkanP, kijunP, senkouP int) IchimokuLines {
	return cachedBundle(f, key{kind: kindIchimoku, p1: tenkanP, p2: kijunP, p3: senkouP}, func() IchimokuLines {
		mid := func(p int) []float64 {
			hi := rollingMax(f.High, p)
			lo := rollingMin(f.Low, p)
			out := make([]float64, len(hi))
			for i := range out {
				out[i] = (hi[i] + lo[i]) / 2
			}
			return out
		}
		tenkan := mid(tenkanP)
		kijun := mid(kijunP)
		base := make([]float64, len(tenkan))
		for i := range base {
			base[i] = (tenkan[i] + kijun[i]) / 2
		}
		return IchimokuLines{
			Tenkan:  tenkan,
			Kijun:   kijun,
			SenkouA: shiftForward(base, kijunP),
			SenkouB: shiftForward(mid(senkouP), kijunP),
			Chikou:  shiftBack(f.Close, kijunP),
		}
	})
}

// Supertrend returns the Supertrend line and direction. The line is a
// stateful recurrence on the previous candle's ATR bands; on a direction
// flip the line snaps to the active band rather than carrying the stale one.
func (f *Factory) Supertrend(period int, mult float64) SupertrendLines {
	return cachedBundle(f, key{kind: kindSupertrend, p1: period, f1: mult}, func() SupertrendLines {
		atrArr := f.ATR(period)
		n := len(f.Close)
		line := nanSlice(n)
		dir := make([]float64, n)
		for i := range dir {
			dir[i] = 1
		}
		for i := 1; i < n; i++ {
			upper := f.High[i-1] + mult*atrArr[i-1]
			lower := f.Low[i-1] - mult*atrArr[i-1]
			prev := line[i-1]
			// NaN comparisons are false, so the line stays NaN until the
			// ATR is available.
			if f.Close[i-1] <= prev {
				line[i] = bandMin(upper, prev)
			} else {
				line[i] = bandMax(lower, prev)
			}
			if f.Close[i] > line[i] {
				dir[i] = 1
			} else {
				dir[i] = -1
			}
			if dir[i] > 0 && dir[i-1] < 0 {
				line[i] = bandMax(lower, prev)
			} else if dir[i] < 0 && dir[i-1] > 0 {
				line[i] = bandMin(upper, prev)
			}
		}
		return SupertrendLines{Line: line, Dir: dir}
	})
}

// HeikinAshiCandles reconstructs Heikin-Ashi candles; the synthetic open is
// a recurrence on the previous synthetic candle.
func (f *Factory) HeikinAshiCandles() HeikinAshi {
	return cachedBundle(f, key{kind: kindHeikinAshi}, func() HeikinAshi {
		n := len(f.Close)
		haClose := make([]float64, n)
		haOpen := make([]float64, n)
		haHigh := make([]float64, n)
		haLow := make([]float64, n)
		for i := 0; i < n; i++ {
			haClose[i] = (f.Open[i] + f.High[i] + f.Low[i] + f.Close[i]) / 4
		}
		if n > 0 {
			haOpen[0] = f.Open[0]
		}
		for i := 1; i < n; i++ {
			haOpen[i] = (haOpen[i-1] + haClose[i-1]) / 2
		}
		for i := 0; i < n; i++ {
			haHigh[i] = max3(f.High[i], haOpen[i], haClose[i])
			haLow[i] = min3(f.Low[i], haOpen[i], haClose[i])
		}
		return HeikinAshi{Open: haOpen, High: haHigh, Low: haLow, Close: haClose}
	})
}

// ---------------------------------------------------------------------------
// Small helpers
// ---------------------------------------------------------------------------

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// bandMin returns b when it is strictly below a, else a. With a NaN operand
// the comparison is false, which keeps the recurrence well-defined during
// warmup.
func bandMin(a, b float64) float64 {
	if b < a {
		return b
	}
	return a
}

func bandMax(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
