package indicator

import "math"

// The rolling kernels below tolerate a not-a-number head in their input: the
// window starts at the first finite value, so indicators computed on top of
// other indicators (slope of an SMA, the MACD signal line) still produce
// values after their combined warmup instead of poisoning the running sums.

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstFinite returns the index of the first non-NaN value, or -1.
func firstFinite(src []float64) int {
	for i, v := range src {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// sma computes a simple moving average with an O(n) running sum.
func sma(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	s := firstFinite(src)
	if w <= 0 || s < 0 || n-s < w {
		return out
	}

	sum := 0.0
	for i := s; i < s+w; i++ {
		sum += src[i]
	}
	out[s+w-1] = sum / float64(w)
	for i := s + w; i < n; i++ {
		sum += src[i] - src[i-w]
		out[i] = sum / float64(w)
	}
	return out
}

// ema computes an exponential moving average seeded with the simple average
// of the first window.
func ema(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	s := firstFinite(src)
	if w <= 0 || s < 0 || n-s < w {
		return out
	}

	sum := 0.0
	for i := s; i < s+w; i++ {
		sum += src[i]
	}
	mult := 2.0 / (float64(w) + 1.0)
	out[s+w-1] = sum / float64(w)
	for i := s + w; i < n; i++ {
		out[i] = (src[i]-out[i-1])*mult + out[i-1]
	}
	return out
}

// rsi computes Wilder's relative strength index. The average gain/loss is
// seeded with the simple mean of the first w deltas and then smoothed
// recursively. A zero average loss maps to 100 rather than +Inf.
func rsi(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if w <= 0 || n <= w {
		return out
	}

	gain := make([]float64, n-1)
	loss := make([]float64, n-1)
	for i := 1; i < n; i++ {
		d := src[i] - src[i-1]
		if d > 0 {
			gain[i-1] = d
		} else {
			loss[i-1] = -d
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < w; i++ {
		avgGain += gain[i]
		avgLoss += loss[i]
	}
	avgGain /= float64(w)
	avgLoss /= float64(w)
	out[w] = rsiValue(avgGain, avgLoss)

	for i := w; i < n-1; i++ {
		avgGain = (avgGain*float64(w-1) + gain[i]) / float64(w)
		avgLoss = (avgLoss*float64(w-1) + loss[i]) / float64(w)
		out[i+1] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	return 100.0 - 100.0/(1.0+avgGain/avgLoss)
}

// trueRange returns the per-candle true range. Index 0 is NaN since it needs
// the previous close.
func trueRange(high, low, close []float64) []float64 {
	n := len(close)
	tr := nanSlice(n)
	for i := 1; i < n; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
	}
	return tr
}

// atr computes Wilder's average true range: seed with the simple mean of the
// first w true ranges, then smooth recursively.
func atr(high, low, close []float64, w int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if w <= 0 || n <= w {
		return out
	}

	tr := trueRange(high, low, close)
	sum := 0.0
	for i := 1; i <= w; i++ {
		sum += tr[i]
	}
	out[w] = sum / float64(w)
	for i := w + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(w-1) + tr[i]) / float64(w)
	}
	return out
}

// wilderSmooth applies Wilder smoothing (alpha = 1/w) to an arbitrary input,
// seeding with the simple mean of the first w finite values.
func wilderSmooth(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	s := firstFinite(src)
	if w <= 0 || s < 0 || n-s < w {
		return out
	}

	sum := 0.0
	for i := s; i < s+w; i++ {
		sum += src[i]
	}
	out[s+w-1] = sum / float64(w)
	for i := s + w; i < n; i++ {
		out[i] = out[i-1] + (src[i]-out[i-1])/float64(w)
	}
	return out
}

// rollingSlope computes the incremental least-squares slope of src over a
// fixed window using running first moments; O(n) total rather than a
// per-step refit.
func rollingSlope(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	s := firstFinite(src)
	if w <= 1 || s < 0 || n-s < w {
		return out
	}

	// Slope denominator is constant for a fixed window: sum((x-mean(x))^2)
	// for x = 0..w-1.
	fw := float64(w)
	denom := fw * (fw*fw - 1) / 12.0

	sumY := 0.0
	sumXY := 0.0
	for k := 0; k < w; k++ {
		sumY += src[s+k]
		sumXY += src[s+k] * float64(k)
	}

	for i := s + w - 1; i < n; i++ {
		if i >= s+w {
			oldY := src[i-w]
			newY := src[i]
			sumXY -= sumY - oldY
			sumXY += newY * (fw - 1)
			sumY += newY - oldY
		}
		meanY := sumY / fw
		numer := sumXY - meanY*(fw*(fw-1)/2.0)
		out[i] = numer / denom
	}
	return out
}

// rollingStd computes the population standard deviation over each window.
// Any NaN inside a window yields NaN for that window only.
func rollingStd(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if w <= 0 {
		return out
	}
	for i := w - 1; i < n; i++ {
		var sum, sumSq float64
		ok := true
		for j := i - w + 1; j <= i; j++ {
			v := src[j]
			if math.IsNaN(v) {
				ok = false
				break
			}
			sum += v
			sumSq += v * v
		}
		if !ok {
			continue
		}
		mean := sum / float64(w)
		variance := sumSq/float64(w) - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// rollingMean recomputes the mean per window; unlike sma it recovers from
// NaN values in the middle of the input (a flat stochastic window, for
// example).
func rollingMean(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if w <= 0 {
		return out
	}
	for i := w - 1; i < n; i++ {
		sum := 0.0
		ok := true
		for j := i - w + 1; j <= i; j++ {
			if math.IsNaN(src[j]) {
				ok = false
				break
			}
			sum += src[j]
		}
		if ok {
			out[i] = sum / float64(w)
		}
	}
	return out
}

// rollingMax computes the maximum over each window.
func rollingMax(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if w <= 0 {
		return out
	}
	for i := w - 1; i < n; i++ {
		m := src[i-w+1]
		for j := i - w + 2; j <= i; j++ {
			if src[j] > m {
				m = src[j]
			}
		}
		out[i] = m
	}
	return out
}

// rollingMin computes the minimum over each window.
func rollingMin(src []float64, w int) []float64 {
	n := len(src)
	out := nanSlice(n)
	if w <= 0 {
		return out
	}
	for i := w - 1; i < n; i++ {
		m := src[i-w+1]
		for j := i - w + 2; j <= i; j++ {
			if src[j] < m {
				m = src[j]
			}
		}
		out[i] = m
	}
	return out
}

// shiftForward moves values k positions later in time (leading NaNs).
func shiftForward(src []float64, k int) []float64 {
	n := len(src)
	out := nanSlice(n)
	for i := k; i < n; i++ {
		out[i] = src[i-k]
	}
	return out
}

// shiftBack moves values k positions earlier in time (trailing NaNs).
func shiftBack(src []float64, k int) []float64 {
	n := len(src)
	out := nanSlice(n)
	for i := 0; i < n-k; i++ {
		out[i] = src[i+k]
	}
	return out
}
