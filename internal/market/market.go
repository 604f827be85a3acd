// Package market is the gateway to Alpaca's market-data and trading APIs.
// It converts SDK types to domain types, applies the shared rate limit and
// retry policy, and records every outbound call.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"finscope/internal/config"
	"finscope/internal/domain"
	"finscope/internal/util"
)

// ---------------------------------------------------------------------------
// SDK seams
// ---------------------------------------------------------------------------

// BarsClient is the subset of *marketdata.Client used by the gateway.
type BarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AssetsClient is the subset of *alpaca.Client used by the gateway.
type AssetsClient interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// Recorder persists outbound call records.
type Recorder interface {
	LogAPICall(ctx context.Context, call domain.APICall) error
}

var _ BarsClient = (*marketdata.Client)(nil)
var _ AssetsClient = (*alpaca.Client)(nil)

// ---------------------------------------------------------------------------
// Gateway
// ---------------------------------------------------------------------------

// Options tunes a Gateway. Zero values fall back to the defaults used by
// config.Load.
type Options struct {
	Feed            string
	DataURL         string
	TradingURL      string
	RateLimitPerMin int
	RetryAttempts   int
	RetryDelay      time.Duration
	AssetCacheTTL   time.Duration
	Recorder        Recorder
	Logger          *slog.Logger
}

// Gateway fetches bars, asset details and the trading calendar.
type Gateway struct {
	bars    BarsClient
	assets  AssetsClient
	opts    Options
	limiter *util.RateLimiter
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	universe []alpaca.Asset
	loadedAt time.Time
}

// New creates a Gateway over the given clients.
func New(bars BarsClient, assets AssetsClient, opts Options) *Gateway {
	if opts.Feed == "" {
		opts.Feed = "iex"
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 200
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.AssetCacheTTL <= 0 {
		opts.AssetCacheTTL = time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		bars:    bars,
		assets:  assets,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		log:     log.With("component", "market"),
		now:     time.Now,
	}
}

// NewAlpaca builds a Gateway backed by real Alpaca SDK clients.
func NewAlpaca(cfg config.Alpaca, rec Recorder, log *slog.Logger) *Gateway {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
	})
	tr := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return New(md, tr, Options{
		Feed:            cfg.Feed,
		DataURL:         cfg.DataURL,
		TradingURL:      cfg.BaseURL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RetryAttempts:   cfg.RetryAttempts,
		RetryDelay:      cfg.RetryDelay,
		Recorder:        rec,
		Logger:          log,
	})
}

// TimeFrame maps a domain timespan to an Alpaca timeframe.
func TimeFrame(ts domain.Timespan) (marketdata.TimeFrame, error) {
	switch ts {
	case domain.TimespanMinute:
		return marketdata.OneMin, nil
	case domain.TimespanHour:
		return marketdata.OneHour, nil
	case domain.TimespanDay, "":
		return marketdata.OneDay, nil
	case domain.TimespanWeek:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case domain.TimespanMonth:
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("timespan %q: %w", ts, domain.ErrInvalidInput)
}

// Bars returns bars for symbol between from and to (inclusive), oldest
// first.
func (g *Gateway) Bars(ctx context.Context, symbol string, ts domain.Timespan, from, to time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	tf, err := TimeFrame(ts)
	if err != nil {
		return nil, err
	}
	req := marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     from,
		End:       to,
		Feed:      marketdata.Feed(g.opts.Feed),
	}

	var raw []marketdata.Bar
	err = g.call(ctx, "bars", g.opts.DataURL+"/v2/stocks/"+symbol+"/bars",
		map[string]any{"symbol": symbol, "timeframe": tf.String(), "start": from, "end": to},
		func() error {
			var err error
			raw, err = g.bars.GetBars(symbol, req)
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars for %s: %w", ts, symbol, err)
	}

	out := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		out = append(out, domain.Bar{
			Symbol:     symbol,
			Timestamp:  b.Timestamp.UTC(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     int64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Asset returns details for one symbol. Unknown symbols yield
// domain.ErrNotFound.
func (g *Gateway) Asset(ctx context.Context, symbol string) (domain.Security, error) {
	symbol = strings.ToUpper(symbol)
	var a *alpaca.Asset
	err := g.call(ctx, "asset", g.opts.TradingURL+"/v2/assets/"+symbol,
		map[string]any{"symbol": symbol},
		func() error {
			var err error
			a, err = g.assets.GetAsset(symbol)
			return err
		})
	if err != nil {
		return domain.Security{}, fmt.Errorf("fetching asset %s: %w", symbol, err)
	}
	if a == nil {
		return domain.Security{}, fmt.Errorf("security %s not found: %w", symbol, domain.ErrNotFound)
	}
	return toSecurity(*a), nil
}

// Search returns up to limit active US equities whose symbol or name
// contains q. Exact symbol matches rank first, then symbol prefixes.
func (g *Gateway) Search(ctx context.Context, q string, limit int) ([]domain.Security, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("empty search query: %w", domain.ErrInvalidInput)
	}
	universe, err := g.loadUniverse(ctx)
	if err != nil {
		return nil, err
	}

	upper := strings.ToUpper(q)
	type hit struct {
		rank int
		a    alpaca.Asset
	}
	var hits []hit
	for _, a := range universe {
		sym := strings.ToUpper(a.Symbol)
		switch {
		case sym == upper:
			hits = append(hits, hit{0, a})
		case strings.HasPrefix(sym, upper):
			hits = append(hits, hit{1, a})
		case strings.Contains(sym, upper) || strings.Contains(strings.ToUpper(a.Name), upper):
			hits = append(hits, hit{2, a})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].a.Symbol < hits[j].a.Symbol
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]domain.Security, len(hits))
	for i, h := range hits {
		out[i] = toSecurity(h.a)
	}
	return out, nil
}

// loadUniverse returns the cached active asset list, refreshing it after
// AssetCacheTTL.
func (g *Gateway) loadUniverse(ctx context.Context) ([]alpaca.Asset, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.universe != nil && g.now().Sub(g.loadedAt) < g.opts.AssetCacheTTL {
		return g.universe, nil
	}

	var assets []alpaca.Asset
	err := g.call(ctx, "assets", g.opts.TradingURL+"/v2/assets",
		map[string]any{"status": "active", "asset_class": "us_equity"},
		func() error {
			var err error
			assets, err = g.assets.GetAssets(alpaca.GetAssetsRequest{
				Status:     "active",
				AssetClass: "us_equity",
			})
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	g.universe = assets
	g.loadedAt = g.now()
	g.log.Debug("asset universe loaded", "count", len(assets))
	return assets, nil
}

// Holidays returns the weekdays in [from, to] that have no session in the
// Alpaca trading calendar.
func (g *Gateway) Holidays(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	var days []alpaca.CalendarDay
	err := g.call(ctx, "calendar", g.opts.TradingURL+"/v2/calendar",
		map[string]any{"start": from, "end": to},
		func() error {
			var err error
			days, err = g.assets.GetCalendar(alpaca.GetCalendarRequest{Start: from, End: to})
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("fetching calendar: %w", err)
	}

	open := make(map[string]bool, len(days))
	for _, d := range days {
		open[d.Date] = true
	}
	var out []time.Time
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for d := start; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if !open[d.Format(time.DateOnly)] {
			out = append(out, d)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Call plumbing
// ---------------------------------------------------------------------------

// call runs fn under the rate limiter and retry policy and records the
// outcome. Client errors other than 429 are not retried; 404 maps to
// domain.ErrNotFound and exhausted retries to domain.ErrUnavailable.
func (g *Gateway) call(ctx context.Context, endpoint, url string, params map[string]any, fn func() error) error {
	attempt := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		code := statusCode(err)
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return util.Permanent(err)
		}
		return err
	}
	err := util.Retry(ctx, g.opts.RetryAttempts, g.opts.RetryDelay, attempt)
	g.record(ctx, endpoint, url, params, err)

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	switch code := statusCode(err); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	case code >= 400 && code < 500 && code != http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
}

func (g *Gateway) record(ctx context.Context, endpoint, url string, params map[string]any, err error) {
	if g.opts.Recorder == nil {
		return
	}
	p, _ := json.Marshal(params)
	rec := domain.APICall{
		Provider:  "alpaca",
		Endpoint:  endpoint,
		URL:       url,
		Method:    http.MethodGet,
		Params:    string(p),
		Success:   err == nil,
		CreatedAt: g.now().UTC(),
	}
	if err == nil {
		rec.StatusCode = http.StatusOK
	} else {
		rec.StatusCode = statusCode(err)
		rec.ErrorMessage = err.Error()
	}
	// Recording must not fail the caller.
	if lerr := g.opts.Recorder.LogAPICall(context.WithoutCancel(ctx), rec); lerr != nil {
		g.log.Warn("recording api call failed", "endpoint", endpoint, "error", lerr)
	}
}

func statusCode(err error) int {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func toSecurity(a alpaca.Asset) domain.Security {
	return domain.Security{
		Symbol:   strings.ToUpper(a.Symbol),
		Name:     a.Name,
		Type:     "stock",
		Exchange: string(a.Exchange),
		IsActive: string(a.Status) == "active",
	}
}
