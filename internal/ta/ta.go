package ta

import "math"

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// emaSeries returns the EMA curve seeded with the SMA of the first n values.
func emaSeries(vals []float64, n int) []float64 {
	if len(vals) < n || n <= 0 {
		return nil
	}
	k := 2.0 / (float64(n) + 1.0)
	seed := 0.0
	for _, v := range vals[:n] {
		seed += v
	}
	seed /= float64(n)
	out := make([]float64, 0, len(vals)-n+1)
	out = append(out, seed)
	for _, v := range vals[n:] {
		seed = v*k + seed*(1.0-k)
		out = append(out, seed)
	}
	return out
}

func EMA(vals []float64, n int) float64 {
	s := emaSeries(vals, n)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// MACD returns the 12/26 MACD line, the 9-period signal line, and the
// histogram. Signal and histogram are NaN while there is not enough history
// for the signal EMA.
func MACD(closes []float64) (line, signal, hist float64) {
	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	if len(slow) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	off := len(fast) - len(slow)
	diff := make([]float64, len(slow))
	for i := range slow {
		diff[i] = fast[off+i] - slow[i]
	}
	line = diff[len(diff)-1]
	sig := emaSeries(diff, 9)
	if len(sig) == 0 {
		return line, math.NaN(), math.NaN()
	}
	signal = sig[len(sig)-1]
	return line, signal, line - signal
}

// VolumeRatio compares the latest volume against its n-period average.
// Returns 1 when there is not enough history to judge.
func VolumeRatio(vols []float64, n int) float64 {
	if len(vols) == 0 {
		return 1.0
	}
	avg := SMA(vols, n)
	if math.IsNaN(avg) || avg <= 0 {
		return 1.0
	}
	return vols[len(vols)-1] / avg
}
