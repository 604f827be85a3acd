package analytics

import (
	"math"
	"sort"

	"finscope/internal/domain"
)

// Cycle analysis windows.
const (
	ExtremaWindow  = 20
	PhaseSMAWindow = 50
	LowVolRank     = 0.25
	HighVolRank    = 0.75
)

// Volatility regimes and cycle phases.
const (
	RegimeLow    = "low"
	RegimeMedium = "medium"
	RegimeHigh   = "high"

	PhaseAccumulation = "accumulation"
	PhaseMarkup       = "markup"
	PhaseDistribution = "distribution"
	PhaseMarkdown     = "markdown"
	PhaseUnknown      = "unknown"
)

// alignFTD maps FTD quantities onto bar days; days without a record are 0.
func alignFTD(bars []domain.Bar, ftd []domain.FTD) []float64 {
	byDay := make(map[int64]int64, len(ftd))
	for _, r := range ftd {
		byDay[dayKey(r.Date).Unix()] += r.Quantity
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(byDay[dayKey(b.Timestamp).Unix()])
	}
	return out
}

// SwapCycles finds trough-to-peak-to-trough cycles. A trough is a close that
// is the 20-day rolling minimum and lower than both neighbours; a peak is
// the mirror image. Each completed cycle's end trough starts the next one.
func SwapCycles(sec domain.Security, bars []domain.Bar, ftd []domain.FTD) domain.SwapCycleReport {
	closes := Closes(bars)
	qty := alignFTD(bars, ftd)
	vol := Volatility(closes, VolatilityWin)
	hi := rolling(closes, ExtremaWindow, maxOf)
	lo := rolling(closes, ExtremaWindow, minOf)

	n := len(closes)
	isPeak := func(i int) bool {
		return i > 0 && i < n-1 && closes[i] == hi[i] && closes[i-1] < closes[i] && closes[i+1] < closes[i]
	}
	isTrough := func(i int) bool {
		return i > 0 && i < n-1 && closes[i] == lo[i] && closes[i-1] > closes[i] && closes[i+1] > closes[i]
	}

	var (
		cycles  []domain.SwapCycle
		cur     *domain.SwapCycle
		startIx int
		hasPeak bool
	)
	begin := func(i int) {
		cur = &domain.SwapCycle{
			StartDate:  bars[i].Timestamp,
			StartPrice: closes[i],
			FTDStart:   int64(qty[i]),
		}
		startIx, hasPeak = i, false
	}

	for i := 0; i < n; i++ {
		switch {
		case isTrough(i) && cur == nil:
			begin(i)
		case isPeak(i) && cur != nil:
			cur.PeakDate = bars[i].Timestamp
			cur.PeakPrice = closes[i]
			cur.FTDPeak = int64(qty[i])
			hasPeak = true
		case isTrough(i) && cur != nil && hasPeak:
			cur.EndDate = bars[i].Timestamp
			cur.EndPrice = closes[i]
			cur.FTDEnd = int64(qty[i])
			cur.DurationDays = int(dayKey(cur.EndDate).Sub(dayKey(cur.StartDate)).Hours() / 24)
			cur.Return = cur.PeakPrice/cur.StartPrice - 1
			cur.Drawdown = cur.EndPrice/cur.PeakPrice - 1
			if v := nanMean(vol[startIx : i+1]); !math.IsNaN(v) {
				cur.Volatility = v
			}
			if c := pearson(closes[startIx:i+1], qty[startIx:i+1]); !math.IsNaN(c) {
				cur.FTDCorrelation = &c
			}
			cycles = append(cycles, *cur)
			begin(i)
		}
	}
	return domain.SwapCycleReport{Security: sec, Cycles: cycles, Bars: bars}
}

// PercentRank ranks each non-NaN value within the series as a fraction in
// (0, 1], averaging ties. NaN inputs stay NaN.
func PercentRank(xs []float64) []float64 {
	idx := make([]int, 0, len(xs))
	for i, v := range xs {
		if !math.IsNaN(v) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := nans(len(xs))
	total := float64(len(idx))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		// ranks i+1..j+1 share their average
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			out[idx[k]] = avg / total
		}
		i = j + 1
	}
	return out
}

// Regime classifies a volatility percentile rank. An undefined rank is
// medium.
func Regime(rank float64) string {
	switch {
	case rank <= LowVolRank:
		return RegimeLow
	case rank >= HighVolRank:
		return RegimeHigh
	}
	return RegimeMedium
}

// Phase combines trend (close vs its 50-day SMA) with the volatility regime.
func Phase(aboveSMA bool, regime string) string {
	if aboveSMA {
		switch regime {
		case RegimeLow:
			return PhaseAccumulation
		case RegimeMedium:
			return PhaseMarkup
		case RegimeHigh:
			return PhaseDistribution
		}
		return PhaseUnknown
	}
	if regime == RegimeMedium || regime == RegimeHigh {
		return PhaseMarkdown
	}
	return PhaseUnknown
}

// VolatilityCycles classifies each day with defined volatility into a
// regime and a cycle phase.
func VolatilityCycles(sec domain.Security, bars []domain.Bar) domain.VolatilityReport {
	closes := Closes(bars)
	vol := Volatility(closes, VolatilityWin)
	rank := PercentRank(vol)
	sma := SMA(closes, PhaseSMAWindow)

	pts := make([]domain.VolatilityPoint, 0, len(bars))
	for i := range bars {
		if math.IsNaN(vol[i]) {
			continue
		}
		regime := Regime(rank[i])
		above := !math.IsNaN(sma[i]) && closes[i] > sma[i]
		p := domain.VolatilityPoint{
			Date:       bars[i].Timestamp,
			Close:      closes[i],
			Volatility: vol[i],
			Rank:       rank[i],
			Regime:     regime,
			Phase:      Phase(above, regime),
		}
		if !math.IsNaN(sma[i]) {
			p.PriceSMA = sma[i]
		}
		pts = append(pts, p)
	}
	return domain.VolatilityReport{Security: sec, Points: pts}
}
