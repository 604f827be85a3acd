package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"finscope/internal/domain"
	"finscope/internal/ftd"
	"finscope/internal/market"
	"finscope/internal/news"
	"finscope/internal/prefs"
	"finscope/internal/provider"
	"finscope/internal/store"
	"finscope/internal/util"
	"finscope/pkg/finscope"
)

// stack is the locally wired data layer.
type stack struct {
	sqlite   *store.SQLiteStore
	gateway  *market.Gateway
	provider *provider.Local
}

func (s *stack) Close() error { return s.sqlite.Close() }

// openStack opens the stores under the configured data directory and wires
// the Alpaca, SEC and news sources into a Local provider.
func (a *app) openStack() (*stack, error) {
	cfg := a.cfg
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	sqlite, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	bars := store.NewParquetStore(cfg.Storage.DataDir)

	gw := market.NewAlpaca(cfg.Alpaca, sqlite, a.log)
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.DataURL,
	})

	deps := provider.Deps{
		Securities: sqlite,
		FTDStore:   sqlite,
		Users:      sqlite,
		Watchlists: sqlite,
		Bars:       bars,
		Market:     gw,
		FTD:        ftd.New(cfg.SEC, sqlite, a.log),
		News:       news.NewFetcher(md, cfg.News.Sources, a.log),
		Logger:     a.log,
	}
	if cfg.News.Archive {
		deps.NewsArchive = bars
	}
	return &stack{sqlite: sqlite, gateway: gw, provider: provider.NewLocal(deps)}, nil
}

// dataProvider returns the remote client when remote is set and the local
// stack otherwise. The returned close func is never nil.
func (a *app) dataProvider(remote bool) (provider.DataProvider, func() error, error) {
	if remote {
		a.log.Info("using remote provider", "url", a.cfg.UI.RemoteURL)
		return finscope.NewClient(a.cfg.UI.RemoteURL), func() error { return nil }, nil
	}
	st, err := a.openStack()
	if err != nil {
		return nil, nil, err
	}
	return st.provider, st.Close, nil
}

// calendar builds a US trading calendar seeded with the exchange holidays
// for the surrounding year. Holiday lookup failures only cost accuracy.
func (a *app) calendar(ctx context.Context, gw *market.Gateway) *util.TradingCalendar {
	cal := util.NewTradingCalendar(domain.MarketUS)
	if gw == nil {
		return cal
	}
	now := time.Now()
	days, err := gw.Holidays(ctx, now.AddDate(0, -1, 0), now.AddDate(1, 0, 0))
	if err != nil {
		a.log.Warn("loading market holidays", "error", err)
		return cal
	}
	cal.AddHolidays(days...)
	return cal
}

// openPrefs opens the preference store with the configured theme as the
// default.
func (a *app) openPrefs() (*prefs.Store, error) {
	ps, err := prefs.Open(a.cfg.Storage.PrefsPath, prefs.Preferences{Theme: prefs.Theme(a.cfg.UI.Theme)}, a.log)
	if err != nil {
		return nil, fmt.Errorf("opening preferences: %w", err)
	}
	return ps, nil
}
