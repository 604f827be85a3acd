package market

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
)

type fakeBars struct {
	bars  []marketdata.Bar
	errs  []error
	calls int
	last  marketdata.GetBarsRequest
}

func (f *fakeBars) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	f.last = req
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.bars, nil
}

type fakeAssets struct {
	assets      []alpaca.Asset
	days        []alpaca.CalendarDay
	assetCalls  int
	listCalls   int
	notFoundErr error
}

func (f *fakeAssets) GetAsset(symbol string) (*alpaca.Asset, error) {
	f.assetCalls++
	for _, a := range f.assets {
		if a.Symbol == symbol {
			return &a, nil
		}
	}
	return nil, f.notFoundErr
}

func (f *fakeAssets) GetAssets(alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	f.listCalls++
	return f.assets, nil
}

func (f *fakeAssets) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f.days, nil
}

type memRecorder struct {
	mu    sync.Mutex
	calls []domain.APICall
}

func (m *memRecorder) LogAPICall(_ context.Context, c domain.APICall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
	return nil
}

func newGateway(bars BarsClient, assets AssetsClient, rec Recorder) *Gateway {
	return New(bars, assets, Options{
		Feed:            "sip",
		RateLimitPerMin: 60000,
		RetryAttempts:   3,
		Recorder:        rec,
	})
}

func day(d int) time.Time { return time.Date(2024, 3, d, 5, 0, 0, 0, time.UTC) }

func TestBarsConvertsAndSorts(t *testing.T) {
	fb := &fakeBars{bars: []marketdata.Bar{
		{Timestamp: day(5), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 200, TradeCount: 20, VWAP: 2.2},
		{Timestamp: day(4), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100, TradeCount: 10, VWAP: 1.2},
	}}
	rec := &memRecorder{}
	g := newGateway(fb, &fakeAssets{}, rec)

	bars, err := g.Bars(context.Background(), "aapl", domain.TimespanDay, day(1), day(10))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
	assert.Equal(t, int64(100), bars[0].Volume)
	assert.Equal(t, int64(20), bars[1].TradeCount)
	assert.Equal(t, marketdata.OneDay, fb.last.TimeFrame)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "alpaca", rec.calls[0].Provider)
	assert.Equal(t, "bars", rec.calls[0].Endpoint)
	assert.True(t, rec.calls[0].Success)
	assert.Equal(t, http.StatusOK, rec.calls[0].StatusCode)
	assert.Contains(t, rec.calls[0].Params, `"symbol":"AAPL"`)
}

func TestBarsRetriesTransientErrors(t *testing.T) {
	fb := &fakeBars{errs: []error{errors.New("connection reset")}, bars: []marketdata.Bar{{Timestamp: day(4), Close: 1}}}
	g := newGateway(fb, &fakeAssets{}, nil)

	bars, err := g.Bars(context.Background(), "AAPL", domain.TimespanDay, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 2, fb.calls)
}

func TestBarsExhaustedRetriesAreUnavailable(t *testing.T) {
	boom := errors.New("upstream down")
	fb := &fakeBars{errs: []error{boom, boom, boom}}
	rec := &memRecorder{}
	g := newGateway(fb, &fakeAssets{}, rec)

	_, err := g.Bars(context.Background(), "AAPL", domain.TimespanDay, day(1), day(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, fb.calls)
	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].Success)
	assert.Contains(t, rec.calls[0].ErrorMessage, "upstream down")
}

func TestBarsClientErrorIsNotRetried(t *testing.T) {
	fb := &fakeBars{errs: []error{&alpaca.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "bad timeframe"}}}
	g := newGateway(fb, &fakeAssets{}, nil)

	_, err := g.Bars(context.Background(), "AAPL", domain.TimespanDay, day(1), day(10))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, fb.calls)
}

func TestTimeFrame(t *testing.T) {
	for _, ts := range []domain.Timespan{domain.TimespanMinute, domain.TimespanHour, domain.TimespanDay, domain.TimespanWeek, domain.TimespanMonth} {
		_, err := TimeFrame(ts)
		assert.NoError(t, err, ts)
	}
	_, err := TimeFrame("fortnight")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAsset(t *testing.T) {
	fa := &fakeAssets{
		assets:      []alpaca.Asset{{Symbol: "GME", Name: "GameStop Corp.", Exchange: "NYSE", Status: "active"}},
		notFoundErr: &alpaca.APIError{StatusCode: http.StatusNotFound, Message: "asset not found"},
	}
	g := newGateway(&fakeBars{}, fa, nil)

	sec, err := g.Asset(context.Background(), "gme")
	require.NoError(t, err)
	assert.Equal(t, "GME", sec.Symbol)
	assert.Equal(t, "GameStop Corp.", sec.Name)
	assert.Equal(t, "NYSE", sec.Exchange)
	assert.True(t, sec.IsActive)

	_, err = g.Asset(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, fa.assetCalls, "404 must not be retried")
}

func TestSearchRanksAndCaches(t *testing.T) {
	fa := &fakeAssets{assets: []alpaca.Asset{
		{Symbol: "AMCX", Name: "AMC Networks", Status: "active"},
		{Symbol: "AMC", Name: "AMC Entertainment", Status: "active"},
		{Symbol: "XAMC", Name: "Example", Status: "active"},
		{Symbol: "GME", Name: "GameStop", Status: "active"},
	}}
	g := newGateway(&fakeBars{}, fa, nil)

	got, err := g.Search(context.Background(), "amc", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "AMC", got[0].Symbol)
	assert.Equal(t, "AMCX", got[1].Symbol)
	assert.Equal(t, "XAMC", got[2].Symbol)

	got, err = g.Search(context.Background(), "stop", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GME", got[0].Symbol)
	assert.Equal(t, 1, fa.listCalls)

	got, err = g.Search(context.Background(), "amc", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	now := time.Now()
	g.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = g.Search(context.Background(), "amc", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, fa.listCalls)

	_, err = g.Search(context.Background(), "  ", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHolidays(t *testing.T) {
	fa := &fakeAssets{days: []alpaca.CalendarDay{
		{Date: "2024-07-01"}, {Date: "2024-07-02"}, {Date: "2024-07-03"}, {Date: "2024-07-05"},
	}}
	g := newGateway(&fakeBars{}, fa, nil)

	from := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 7, 7, 0, 0, 0, 0, time.UTC)
	got, err := g.Holidays(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-07-04", got[0].Format(time.DateOnly))
}
