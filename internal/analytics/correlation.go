package analytics

import (
	"math"

	"finscope/internal/domain"
)

// MinCorrelationPoints is the minimum number of aligned returns needed to
// report a correlation.
const MinCorrelationPoints = 10

// pearson is the Pearson correlation of equal-length samples, NaN when
// either side has zero variance.
func pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return math.NaN()
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// covariance is the sample covariance (n-1 denominator).
func covariance(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return math.NaN()
	}
	mx, my := mean(xs), mean(ys)
	s := 0.0
	for i := range xs {
		s += (xs[i] - mx) * (ys[i] - my)
	}
	return s / float64(len(xs)-1)
}

// AlignedReturns joins two bar series on calendar day and returns the
// percentage returns of both over the shared days.
func AlignedReturns(main, comp []domain.Bar) (mr, cr []float64) {
	byDay := make(map[int64]float64, len(comp))
	for _, b := range comp {
		byDay[dayKey(b.Timestamp).Unix()] = b.Close
	}
	var mc, cc []float64
	for _, b := range main {
		if c, ok := byDay[dayKey(b.Timestamp).Unix()]; ok {
			mc = append(mc, b.Close)
			cc = append(cc, c)
		}
	}
	mr, cr = PctChange(mc), PctChange(cc)
	if len(mr) > 0 {
		mr, cr = mr[1:], cr[1:]
	}
	return mr, cr
}

// Correlate computes correlation, beta and r-squared of main's returns
// against comp's. ok is false when fewer than MinCorrelationPoints aligned
// returns exist.
func Correlate(ticker string, main, comp []domain.Bar) (c domain.Correlation, ok bool) {
	mr, cr := AlignedReturns(main, comp)
	if len(mr) < MinCorrelationPoints {
		return domain.Correlation{}, false
	}
	corr := pearson(mr, cr)
	if math.IsNaN(corr) {
		corr = 0
	}
	beta := 0.0
	if v := covariance(cr, cr); v != 0 && !math.IsNaN(v) {
		beta = covariance(mr, cr) / v
	}
	return domain.Correlation{
		Ticker:      ticker,
		Correlation: corr,
		Beta:        beta,
		RSquared:    corr * corr,
	}, true
}
