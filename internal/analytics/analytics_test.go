package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsFrom(closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: day0.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func assertSeries(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.IsNaN(want[i]) {
			assert.True(t, math.IsNaN(got[i]), "index %d = %v, want NaN", i, got[i])
			continue
		}
		assert.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func TestSMA(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{nan, nan, 2, 3, 4}, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assertSeries(t, []float64{nan, nan}, SMA([]float64{1, 2}, 3))
}

func TestEMA(t *testing.T) {
	assertSeries(t, []float64{1, 1.5, 2.25}, EMA([]float64{1, 2, 3}, 3))
	assert.Empty(t, EMA(nil, 3))
}

func TestMACD(t *testing.T) {
	xs := []float64{10, 11, 12, 11, 10}
	line, sig, hist := MACD(xs, 12, 26, 9)
	ef, es := EMA(xs, 12), EMA(xs, 26)
	for i := range xs {
		assert.InDelta(t, ef[i]-es[i], line[i], 1e-12)
		assert.InDelta(t, line[i]-sig[i], hist[i], 1e-12)
	}
	assert.Equal(t, 0.0, line[0])
}

func TestRSI(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{nan, 100, 50}, RSI([]float64{1, 2, 1}, 2))

	rising := make([]float64, 15)
	for i := range rising {
		rising[i] = float64(i)
	}
	got := RSI(rising, 14)
	assert.True(t, math.IsNaN(got[12]))
	assert.Equal(t, 100.0, got[13])

	flat := RSI([]float64{5, 5, 5}, 2)
	assert.True(t, math.IsNaN(flat[2]), "flat window has undefined RSI")
}

func TestBollinger(t *testing.T) {
	up, mid, lo := Bollinger([]float64{1, 2, 3}, 3, 2)
	assert.InDelta(t, 4, up[2], 1e-12)
	assert.InDelta(t, 2, mid[2], 1e-12)
	assert.InDelta(t, 0, lo[2], 1e-12)
	assert.True(t, math.IsNaN(up[1]))
}

func TestVolatility(t *testing.T) {
	xs := make([]float64, 25)
	for i := range xs {
		xs[i] = 100 * math.Pow(1.01, float64(i))
	}
	vol := Volatility(xs, 20)
	assert.True(t, math.IsNaN(vol[19]))
	assert.InDelta(t, 0, vol[20], 1e-9)

	alt := []float64{100, 110, 100, 110, 100, 110}
	v := Volatility(alt, 3)
	require.False(t, math.IsNaN(v[3]))
	assert.Greater(t, v[3], 1.0)
}

func TestIndicatorsSeriesLengths(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5) + float64(i)*0.1
	}
	set := Indicators(domain.Security{Symbol: "TEST"}, barsFrom(closes))

	assert.Equal(t, "TEST", set.Security.Symbol)
	assert.Len(t, set.Indicators["sma_20"], 231)
	assert.Len(t, set.Indicators["sma_50"], 201)
	assert.Len(t, set.Indicators["sma_200"], 51)
	assert.Len(t, set.Indicators["ema_12"], 250)
	assert.Len(t, set.Indicators["macd_signal"], 250)
	assert.Len(t, set.Indicators["rsi"], 237)
	assert.Len(t, set.Indicators["bb_upper"], 231)
	assert.Equal(t, day0.AddDate(0, 0, 199), set.Indicators["sma_200"][0].Date)

	for _, p := range set.Indicators["rsi"] {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 100.0)
	}
}

func TestSignals(t *testing.T) {
	assert.Equal(t, "sell", RSISignal(75))
	assert.Equal(t, "buy", RSISignal(25))
	assert.Equal(t, "hold", RSISignal(50))
	assert.Equal(t, "buy", MACDCrossSignal(-0.1, 0.2))
	assert.Equal(t, "sell", MACDCrossSignal(0.1, -0.2))
	assert.Equal(t, "hold", MACDCrossSignal(0.1, 0.2))
}

// ---------------------------------------------------------------------------
// Cycles
// ---------------------------------------------------------------------------

// vShape falls to a trough at 20, rises to a peak at 40, falls to a trough
// at 60 and recovers.
func vShape() []float64 {
	var xs []float64
	for i := 0; i <= 20; i++ {
		xs = append(xs, 100-float64(i))
	}
	for i := 21; i <= 40; i++ {
		xs = append(xs, 80+float64(i-20)*2)
	}
	for i := 41; i <= 60; i++ {
		xs = append(xs, 120-float64(i-40)*2)
	}
	for i := 61; i <= 70; i++ {
		xs = append(xs, 80+float64(i-60))
	}
	return xs
}

func TestSwapCycles(t *testing.T) {
	bars := barsFrom(vShape())
	ftd := []domain.FTD{{Symbol: "TEST", Date: day0.AddDate(0, 0, 40), Quantity: 500}}

	rep := SwapCycles(domain.Security{Symbol: "TEST"}, bars, ftd)
	require.Len(t, rep.Cycles, 1)
	c := rep.Cycles[0]

	assert.Equal(t, day0.AddDate(0, 0, 20), c.StartDate)
	assert.Equal(t, day0.AddDate(0, 0, 40), c.PeakDate)
	assert.Equal(t, day0.AddDate(0, 0, 60), c.EndDate)
	assert.Equal(t, 80.0, c.StartPrice)
	assert.Equal(t, 120.0, c.PeakPrice)
	assert.Equal(t, 80.0, c.EndPrice)
	assert.Equal(t, 40, c.DurationDays)
	assert.InDelta(t, 0.5, c.Return, 1e-12)
	assert.InDelta(t, -1.0/3, c.Drawdown, 1e-12)
	assert.Equal(t, int64(500), c.FTDPeak)
	assert.Zero(t, c.FTDStart)
	assert.Greater(t, c.Volatility, 0.0)
	require.NotNil(t, c.FTDCorrelation)
	assert.Greater(t, *c.FTDCorrelation, 0.0)
	assert.Len(t, rep.Bars, len(bars))
}

func TestSwapCyclesWithoutFTDHasNoCorrelation(t *testing.T) {
	rep := SwapCycles(domain.Security{}, barsFrom(vShape()), nil)
	require.Len(t, rep.Cycles, 1)
	assert.Nil(t, rep.Cycles[0].FTDCorrelation)
}

func TestSwapCyclesMonotonicHasNone(t *testing.T) {
	xs := make([]float64, 40)
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	assert.Empty(t, SwapCycles(domain.Security{}, barsFrom(xs), nil).Cycles)
}

func TestPercentRank(t *testing.T) {
	nan := math.NaN()
	assertSeries(t, []float64{1, 0.25, 0.625, nan, 0.625}, PercentRank([]float64{3, 1, 2, nan, 2}))
}

func TestRegimeAndPhase(t *testing.T) {
	assert.Equal(t, RegimeLow, Regime(0.25))
	assert.Equal(t, RegimeHigh, Regime(0.75))
	assert.Equal(t, RegimeMedium, Regime(0.5))
	assert.Equal(t, RegimeMedium, Regime(math.NaN()))

	assert.Equal(t, PhaseAccumulation, Phase(true, RegimeLow))
	assert.Equal(t, PhaseMarkup, Phase(true, RegimeMedium))
	assert.Equal(t, PhaseDistribution, Phase(true, RegimeHigh))
	assert.Equal(t, PhaseMarkdown, Phase(false, RegimeHigh))
	assert.Equal(t, PhaseMarkdown, Phase(false, RegimeMedium))
	assert.Equal(t, PhaseUnknown, Phase(false, RegimeLow))
}

func TestVolatilityCycles(t *testing.T) {
	xs := vShape()
	rep := VolatilityCycles(domain.Security{Symbol: "TEST"}, barsFrom(xs))
	require.Len(t, rep.Points, len(xs)-20)

	first := rep.Points[0]
	assert.Equal(t, day0.AddDate(0, 0, 20), first.Date)
	assert.Zero(t, first.PriceSMA, "50-day SMA undefined at day 20")
	for _, p := range rep.Points {
		assert.Contains(t, []string{RegimeLow, RegimeMedium, RegimeHigh}, p.Regime)
		assert.Greater(t, p.Rank, 0.0)
		assert.LessOrEqual(t, p.Rank, 1.0)
	}
	last := rep.Points[len(rep.Points)-1]
	assert.NotZero(t, last.PriceSMA)
}

// ---------------------------------------------------------------------------
// Correlation
// ---------------------------------------------------------------------------

func pricesFromReturns(rs []float64, scale float64) []float64 {
	out := []float64{100}
	for _, r := range rs {
		out = append(out, out[len(out)-1]*(1+scale*r))
	}
	return out
}

func TestCorrelateBeta(t *testing.T) {
	rs := []float64{0.01, -0.02, 0.015, 0.003, -0.01, 0.02, -0.005, 0.007, -0.012, 0.01, 0.004, -0.003}
	comp := barsFrom(pricesFromReturns(rs, 1))
	main := barsFrom(pricesFromReturns(rs, 2))

	c, ok := Correlate("SPY", main, comp)
	require.True(t, ok)
	assert.Equal(t, "SPY", c.Ticker)
	assert.InDelta(t, 1, c.Correlation, 1e-9)
	assert.InDelta(t, 2, c.Beta, 1e-9)
	assert.InDelta(t, 1, c.RSquared, 1e-9)
}

func TestCorrelateNeedsEnoughPoints(t *testing.T) {
	b := barsFrom([]float64{1, 2, 3, 4, 5})
	_, ok := Correlate("SPY", b, b)
	assert.False(t, ok)
}

func TestAlignedReturnsJoinsOnDay(t *testing.T) {
	main := barsFrom([]float64{100, 110, 121, 133.1})
	comp := []domain.Bar{main[0], main[2], main[3]}
	comp[0].Close, comp[1].Close, comp[2].Close = 50, 60, 30

	mr, cr := AlignedReturns(main, comp)
	assertSeries(t, []float64{0.21, 0.1}, mr)
	assertSeries(t, []float64{0.2, -0.5}, cr)
}
