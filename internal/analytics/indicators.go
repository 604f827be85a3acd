package analytics

import (
	"fmt"
	"math"

	"finscope/internal/domain"
)

// Indicator windows.
var SMAWindows = []int{20, 50, 200}

const (
	EMAFast       = 12
	EMASlow       = 26
	MACDSignal    = 9
	RSIWindow     = 14
	BollingerN    = 20
	BollingerK    = 2.0
	VolatilityWin = 20
)

// SMA is the simple moving average over window w.
func SMA(xs []float64, w int) []float64 {
	return rolling(xs, w, mean)
}

// EMA is the recursive exponential moving average with alpha = 2/(span+1),
// seeded with the first value.
func EMA(xs []float64, span int) []float64 {
	out := nans(len(xs))
	if len(xs) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(xs []float64, fast, slow, signal int) (line, sig, hist []float64) {
	ef, es := EMA(xs, fast), EMA(xs, slow)
	line = make([]float64, len(xs))
	for i := range xs {
		line[i] = ef[i] - es[i]
	}
	sig = EMA(line, signal)
	hist = make([]float64, len(xs))
	for i := range xs {
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}

// RSI is the relative strength index using simple rolling means of gains
// and losses. A window with no losses yields 100; a flat window is NaN.
func RSI(xs []float64, w int) []float64 {
	gains, losses := nans(len(xs)), nans(len(xs))
	for i := 1; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		gains[i], losses[i] = math.Max(d, 0), math.Max(-d, 0)
	}
	// The first diff is undefined; treat it as no movement so the first
	// full window ends at index w-1.
	if len(xs) > 0 {
		gains[0], losses[0] = 0, 0
	}
	ag, al := rolling(gains, w, mean), rolling(losses, w, mean)
	out := nans(len(xs))
	for i := range xs {
		if math.IsNaN(ag[i]) || math.IsNaN(al[i]) {
			continue
		}
		switch {
		case al[i] == 0 && ag[i] == 0:
		case al[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+ag[i]/al[i])
		}
	}
	return out
}

// Bollinger returns upper, middle and lower bands at k sample standard
// deviations around the w-period SMA.
func Bollinger(xs []float64, w int, k float64) (upper, middle, lower []float64) {
	middle = SMA(xs, w)
	sd := rolling(xs, w, stddev)
	upper, lower = nans(len(xs)), nans(len(xs))
	for i := range xs {
		if math.IsNaN(middle[i]) || math.IsNaN(sd[i]) {
			continue
		}
		upper[i] = middle[i] + k*sd[i]
		lower[i] = middle[i] - k*sd[i]
	}
	return upper, middle, lower
}

// Volatility is the annualised rolling standard deviation of percentage
// returns over window w.
func Volatility(xs []float64, w int) []float64 {
	out := rolling(PctChange(xs), w, stddev)
	scale := math.Sqrt(TradingDaysPerYear)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Indicators computes the full indicator set for ordered bars.
func Indicators(sec domain.Security, bars []domain.Bar) domain.IndicatorSet {
	closes := Closes(bars)
	set := make(map[string][]domain.Point)
	for _, w := range SMAWindows {
		set[smaName(w)] = ToPoints(bars, SMA(closes, w))
	}
	set["ema_12"] = ToPoints(bars, EMA(closes, EMAFast))
	set["ema_26"] = ToPoints(bars, EMA(closes, EMASlow))

	line, sig, hist := MACD(closes, EMAFast, EMASlow, MACDSignal)
	set["macd"] = ToPoints(bars, line)
	set["macd_signal"] = ToPoints(bars, sig)
	set["macd_histogram"] = ToPoints(bars, hist)

	set["rsi"] = ToPoints(bars, RSI(closes, RSIWindow))

	up, mid, lo := Bollinger(closes, BollingerN, BollingerK)
	set["bb_upper"] = ToPoints(bars, up)
	set["bb_middle"] = ToPoints(bars, mid)
	set["bb_lower"] = ToPoints(bars, lo)

	return domain.IndicatorSet{Security: sec, Indicators: set}
}

func smaName(w int) string { return fmt.Sprintf("sma_%d", w) }

// RSISignal classifies an RSI reading as buy (<30), sell (>70) or hold.
func RSISignal(v float64) string {
	switch {
	case v > 70:
		return "sell"
	case v < 30:
		return "buy"
	}
	return "hold"
}

// MACDCrossSignal reports buy when the histogram crosses above zero, sell
// when it crosses below, else hold.
func MACDCrossSignal(prev, cur float64) string {
	switch {
	case prev < 0 && cur > 0:
		return "buy"
	case prev > 0 && cur < 0:
		return "sell"
	}
	return "hold"
}
