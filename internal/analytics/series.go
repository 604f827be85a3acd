// Package analytics computes technical indicators, cycle analyses and
// correlations over ordered daily price series. Every function is pure;
// undefined values (warm-up windows, division by zero) are NaN in the
// float slices and dropped when converted to domain points.
package analytics

import (
	"math"
	"sort"
	"time"

	"finscope/internal/domain"
)

// TradingDaysPerYear annualises daily volatility.
const TradingDaysPerYear = 252

// Closes extracts close prices from bars in order.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// SortBars orders bars by timestamp in place.
func SortBars(bars []domain.Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
}

// ToPoints pairs values with bar dates, skipping NaN and infinite values.
func ToPoints(bars []domain.Bar, values []float64) []domain.Point {
	out := make([]domain.Point, 0, len(values))
	for i, v := range values {
		if i >= len(bars) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, domain.Point{Date: bars[i].Timestamp, Value: v})
	}
	return out
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// PctChange returns (x[i]/x[i-1])-1, NaN at index 0.
func PctChange(xs []float64) []float64 {
	out := nans(len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = xs[i]/xs[i-1] - 1
	}
	return out
}

// rolling applies fn to each full window of size w. A window containing
// NaN yields NaN.
func rolling(xs []float64, w int, fn func([]float64) float64) []float64 {
	out := nans(len(xs))
	if w <= 0 {
		return out
	}
	for i := w - 1; i < len(xs); i++ {
		win := xs[i-w+1 : i+1]
		ok := true
		for _, v := range win {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			out[i] = fn(win)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := 0.0
	for _, v := range xs {
		s += v
	}
	return s / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	m := mean(xs)
	ss := 0.0
	for _, v := range xs {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, v := range xs {
		m = math.Max(m, v)
	}
	return m
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, v := range xs {
		m = math.Min(m, v)
	}
	return m
}

// nanMean averages the non-NaN values; NaN if there are none.
func nanMean(xs []float64) float64 {
	s, n := 0.0, 0
	for _, v := range xs {
		if !math.IsNaN(v) {
			s += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

// dayKey normalises a timestamp to its UTC calendar day.
func dayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
