package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"finscope/internal/analytics"
	"finscope/internal/domain"
	"finscope/internal/store"
)

// ---------------------------------------------------------------------------
// Upstream seams
// ---------------------------------------------------------------------------

// MarketGateway fetches bars and asset reference data from a vendor.
type MarketGateway interface {
	Bars(ctx context.Context, symbol string, ts domain.Timespan, from, to time.Time) ([]domain.Bar, error)
	Asset(ctx context.Context, symbol string) (domain.Security, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Security, error)
}

// FTDSource fetches fails-to-deliver records. Zero year and half select
// the most recent archives.
type FTDSource interface {
	Fetch(ctx context.Context, symbol string, year, half int) ([]domain.FTD, error)
}

// NewsSource fetches articles published in [start, end].
type NewsSource interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error)
}

// Deps wires a Local provider. News, NewsArchive and FTD are optional.
type Deps struct {
	Securities  store.SecurityStore
	FTDStore    store.FTDStore
	Users       store.UserStore
	Watchlists  store.WatchlistStore
	Bars        store.BarStore
	NewsArchive store.NewsStore

	Market MarketGateway
	FTD    FTDSource
	News   NewsSource

	Logger     *slog.Logger
	Now        func() time.Time
	BcryptCost int
}

var _ DataProvider = (*Local)(nil)

// Local implements DataProvider over local stores, filling them from the
// market, SEC and news sources on demand.
type Local struct {
	d   Deps
	log *slog.Logger
	now func() time.Time
}

// market is the BarStore partition used for cached daily bars.
const market = string(domain.MarketUS)

// cacheHorizon bounds how far back cached bars are read when no range is
// given.
const cacheHorizon = 10 * 365 * 24 * time.Hour

// NewLocal creates a Local provider.
func NewLocal(d Deps) *Local {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{d: d, log: log.With("component", "provider"), now: now}
}

func normalize(ticker string) string { return strings.ToUpper(strings.TrimSpace(ticker)) }

// ---------------------------------------------------------------------------
// Securities
// ---------------------------------------------------------------------------

func (l *Local) ListSecurities(ctx context.Context) ([]domain.Security, error) {
	return l.d.Securities.ListSecurities(ctx)
}

// GetSecurity serves the stored security, falling back to the market
// gateway and persisting what it returns.
func (l *Local) GetSecurity(ctx context.Context, ticker string) (domain.Security, error) {
	ticker = normalize(ticker)
	if ticker == "" {
		return domain.Security{}, fmt.Errorf("ticker is required: %w", domain.ErrInvalidInput)
	}
	sec, err := l.d.Securities.GetSecurity(ctx, ticker)
	if err == nil {
		return sec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Security{}, err
	}

	if l.d.Market != nil {
		sec, err = l.d.Market.Asset(ctx, ticker)
		switch {
		case err == nil:
			return l.d.Securities.UpsertSecurity(ctx, sec)
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Security{}, err
		}
	}
	return domain.Security{}, fmt.Errorf("security %s not found: %w", ticker, domain.ErrNotFound)
}

// SearchSecurities matches stored securities, falling back to the market
// search when nothing local matches.
func (l *Local) SearchSecurities(ctx context.Context, query string) ([]domain.Security, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinSearchQuery {
		return nil, fmt.Errorf("search query must be at least %d characters: %w", MinSearchQuery, domain.ErrInvalidInput)
	}
	found, err := l.d.Securities.SearchSecurities(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 || l.d.Market == nil {
		return found, nil
	}

	remote, err := l.d.Market.Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Security, 0, len(remote))
	for _, sec := range remote {
		saved, err := l.d.Securities.UpsertSecurity(ctx, sec)
		if err != nil {
			return nil, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Prices and fails-to-deliver
// ---------------------------------------------------------------------------

// GetPriceData serves cached daily bars unless none are cached, an
// explicit range is requested, or a non-daily timespan is asked for; then
// it fetches from the market and caches daily results.
func (l *Local) GetPriceData(ctx context.Context, ticker string, opts domain.PriceOptions) (domain.PriceSeries, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	ts := opts.Timespan
	if ts == "" {
		ts = domain.TimespanDay
	}
	if !ts.Valid() {
		return domain.PriceSeries{}, fmt.Errorf("timespan %q: %w", ts, domain.ErrInvalidInput)
	}

	now := l.now().UTC()
	if ts == domain.TimespanDay && !opts.HasRange() {
		cached, err := l.d.Bars.ReadBars(ctx, sec.Symbol, market, now.Add(-cacheHorizon), now)
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("reading cached bars: %w", err)
		}
		if len(cached) > 0 {
			return domain.PriceSeries{Security: sec, Timespan: ts, Bars: cached}, nil
		}
	}

	from, to := opts.From, opts.To
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -DefaultPriceDays)
	}
	bars, err := l.fetchBars(ctx, sec.Symbol, ts, from, to)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	return domain.PriceSeries{Security: sec, Timespan: ts, Bars: bars}, nil
}

func (l *Local) fetchBars(ctx context.Context, symbol string, ts domain.Timespan, from, to time.Time) ([]domain.Bar, error) {
	if l.d.Market == nil {
		return nil, fmt.Errorf("no market gateway configured: %w", domain.ErrUnavailable)
	}
	bars, err := l.d.Market.Bars(ctx, symbol, ts, from, to)
	if err != nil {
		return nil, err
	}
	if ts == domain.TimespanDay && len(bars) > 0 {
		if err := l.d.Bars.WriteBars(ctx, market, bars); err != nil {
			l.log.Warn("caching bars failed", "symbol", symbol, "error", err)
		}
	}
	return bars, nil
}

// dailyBars returns daily bars for [from, to], using the cache when it
// covers the window and the market otherwise. A market failure falls back
// to whatever is cached.
func (l *Local) dailyBars(ctx context.Context, sec domain.Security, from, to time.Time) ([]domain.Bar, error) {
	cached, err := l.d.Bars.ReadBars(ctx, sec.Symbol, market, from, to)
	if err != nil {
		return nil, fmt.Errorf("reading cached bars: %w", err)
	}
	if covers(cached, from, to) {
		return cached, nil
	}
	fetched, err := l.fetchBars(ctx, sec.Symbol, domain.TimespanDay, from, to)
	if err != nil {
		if len(cached) > 0 && !errors.Is(err, context.Canceled) {
			l.log.Warn("serving partial cached bars", "symbol", sec.Symbol, "error", err)
			return cached, nil
		}
		return nil, err
	}
	return fetched, nil
}

// covers reports whether bars span [from, to] allowing for weekends and
// holidays at either edge.
func covers(bars []domain.Bar, from, to time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	first, last := bars[0].Timestamp, bars[len(bars)-1].Timestamp
	return !first.After(from.AddDate(0, 0, 5)) && !last.Before(to.AddDate(0, 0, -5))
}

func (l *Local) requireBars(ctx context.Context, sec domain.Security, from, to time.Time) ([]domain.Bar, error) {
	bars, err := l.dailyBars(ctx, sec, from, to)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no price data for %s: %w", sec.Symbol, domain.ErrNotFound)
	}
	return bars, nil
}

// GetFTDData serves stored records unless none are stored or a specific
// half-year is requested; then it fetches from the SEC and persists.
func (l *Local) GetFTDData(ctx context.Context, ticker string, opts domain.FTDOptions) (domain.FTDSeries, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.FTDSeries{}, err
	}
	recs, err := l.d.FTDStore.ReadFTD(ctx, sec.ID, time.Time{}, time.Time{})
	if err != nil {
		return domain.FTDSeries{}, err
	}
	specific := opts.Year != 0 && opts.Half != 0
	if len(recs) > 0 && !specific {
		return domain.FTDSeries{Security: sec, Records: recs}, nil
	}
	if l.d.FTD == nil {
		return domain.FTDSeries{Security: sec, Records: recs}, nil
	}

	fetched, err := l.d.FTD.Fetch(ctx, sec.Symbol, opts.Year, opts.Half)
	if err != nil {
		return domain.FTDSeries{}, err
	}
	if err := l.d.FTDStore.WriteFTD(ctx, sec.ID, fetched); err != nil {
		return domain.FTDSeries{}, fmt.Errorf("storing ftd data: %w", err)
	}
	recs, err = l.d.FTDStore.ReadFTD(ctx, sec.ID, time.Time{}, time.Time{})
	if err != nil {
		return domain.FTDSeries{}, err
	}
	return domain.FTDSeries{Security: sec, Records: recs}, nil
}

// ---------------------------------------------------------------------------
// Analytics
// ---------------------------------------------------------------------------

func (l *Local) lookback(days, def int) (from, to time.Time) {
	if days <= 0 {
		days = def
	}
	to = l.now().UTC()
	return to.AddDate(0, 0, -days), to
}

func (l *Local) GetTechnicalIndicators(ctx context.Context, ticker string, opts domain.RangeOptions) (domain.IndicatorSet, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.IndicatorSet{}, err
	}
	from, to := opts.From, opts.To
	if to.IsZero() {
		to = l.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -DefaultIndicatorDays)
	}
	if from.After(to) {
		return domain.IndicatorSet{}, fmt.Errorf("from is after to: %w", domain.ErrInvalidInput)
	}
	bars, err := l.requireBars(ctx, sec, from, to)
	if err != nil {
		return domain.IndicatorSet{}, err
	}
	return analytics.Indicators(sec, bars), nil
}

func (l *Local) GetSwapCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.SwapCycleReport, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.SwapCycleReport{}, err
	}
	from, to := l.lookback(opts.Days, DefaultCycleDays)
	bars, err := l.requireBars(ctx, sec, from, to)
	if err != nil {
		return domain.SwapCycleReport{}, err
	}
	ftd, err := l.d.FTDStore.ReadFTD(ctx, sec.ID, from, to)
	if err != nil {
		return domain.SwapCycleReport{}, err
	}
	return analytics.SwapCycles(sec, bars, ftd), nil
}

func (l *Local) GetVolatilityCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.VolatilityReport, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.VolatilityReport{}, err
	}
	from, to := l.lookback(opts.Days, DefaultCycleDays)
	bars, err := l.requireBars(ctx, sec, from, to)
	if err != nil {
		return domain.VolatilityReport{}, err
	}
	return analytics.VolatilityCycles(sec, bars), nil
}

// GetMarketCorrelations compares ticker's returns with each comparison
// ticker. Comparisons that cannot be resolved or have too little overlap
// are skipped.
func (l *Local) GetMarketCorrelations(ctx context.Context, ticker string, opts domain.CorrelationOptions) (domain.CorrelationReport, error) {
	sec, err := l.GetSecurity(ctx, ticker)
	if err != nil {
		return domain.CorrelationReport{}, err
	}
	from, to := l.lookback(opts.Days, DefaultCorrelationDays)
	mainBars, err := l.requireBars(ctx, sec, from, to)
	if err != nil {
		return domain.CorrelationReport{}, err
	}

	comps := opts.Comparison
	if len(comps) == 0 {
		comps = DefaultComparison
	}
	results := make([]*domain.Correlation, len(comps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, comp := range comps {
		comp = normalize(comp)
		g.Go(func() error {
			csec, err := l.GetSecurity(gctx, comp)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.log.Warn("comparison security unavailable", "ticker", comp, "error", err)
				return nil
			}
			bars, err := l.dailyBars(gctx, csec, from, to)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				l.log.Warn("comparison prices unavailable", "ticker", comp, "error", err)
				return nil
			}
			if c, ok := analytics.Correlate(comp, mainBars, bars); ok {
				results[i] = &c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CorrelationReport{}, err
	}

	report := domain.CorrelationReport{Security: sec, Correlations: []domain.Correlation{}}
	for _, c := range results {
		if c != nil {
			report.Correlations = append(report.Correlations, *c)
		}
	}
	return report, nil
}

// ---------------------------------------------------------------------------
// News
// ---------------------------------------------------------------------------

// GetNews fetches recent articles and archives them. When the sources are
// unavailable the archive is served instead.
func (l *Local) GetNews(ctx context.Context, ticker string, opts domain.NewsOptions) ([]domain.Article, error) {
	ticker = normalize(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required: %w", domain.ErrInvalidInput)
	}
	from, to := l.lookback(opts.Days, DefaultNewsDays)

	if l.d.News == nil {
		return l.archivedNews(ctx, ticker, from, to)
	}
	arts, err := l.d.News.Fetch(ctx, ticker, from, to)
	if err != nil {
		if l.d.NewsArchive != nil && errors.Is(err, domain.ErrUnavailable) {
			l.log.Warn("news sources unavailable, serving archive", "ticker", ticker, "error", err)
			return l.archivedNews(ctx, ticker, from, to)
		}
		return nil, err
	}
	if l.d.NewsArchive != nil && len(arts) > 0 {
		if err := l.d.NewsArchive.WriteNews(ctx, arts); err != nil {
			l.log.Warn("archiving news failed", "ticker", ticker, "error", err)
		}
	}
	if arts == nil {
		arts = []domain.Article{}
	}
	return arts, nil
}

func (l *Local) archivedNews(ctx context.Context, ticker string, from, to time.Time) ([]domain.Article, error) {
	if l.d.NewsArchive == nil {
		return []domain.Article{}, nil
	}
	arts, err := l.d.NewsArchive.ReadNews(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if arts == nil {
		arts = []domain.Article{}
	}
	return arts, nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (l *Local) ListUsers(ctx context.Context) ([]domain.User, error) {
	return l.d.Users.ListUsers(ctx)
}

func (l *Local) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return l.d.Users.GetUser(ctx, id)
}

func validateEmail(email string) error {
	if err := checkmail.ValidateFormat(email); err != nil {
		return fmt.Errorf("invalid email %q: %w", email, domain.ErrInvalidInput)
	}
	return nil
}

func (l *Local) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), l.d.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// CreateUser validates and stores a new user with default settings and a
// default watchlist.
func (l *Local) CreateUser(ctx context.Context, in domain.UserInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return domain.User{}, fmt.Errorf("username, email and password are required: %w", domain.ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	hash, err := l.hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	u, err := l.d.Users.CreateUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		return domain.User{}, err
	}
	l.log.Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// UpdateUser applies the non-nil fields of upd.
func (l *Local) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (domain.User, error) {
	u, err := l.d.Users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return domain.User{}, fmt.Errorf("username cannot be empty: %w", domain.ErrInvalidInput)
		}
		u.Username = name
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if err := validateEmail(email); err != nil {
			return domain.User{}, err
		}
		u.Email = email
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return domain.User{}, fmt.Errorf("password cannot be empty: %w", domain.ErrInvalidInput)
		}
		if u.PasswordHash, err = l.hash(*upd.Password); err != nil {
			return domain.User{}, err
		}
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	return l.d.Users.UpdateUser(ctx, u)
}

func (l *Local) DeleteUser(ctx context.Context, id int64) error {
	if err := l.d.Users.DeleteUser(ctx, id); err != nil {
		return err
	}
	l.log.Info("user deleted", "user_id", id)
	return nil
}

// Authenticate reports whether password matches the stored hash.
func (l *Local) Authenticate(ctx context.Context, id int64, password string) (bool, error) {
	u, err := l.d.Users.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil, nil
}

// ---------------------------------------------------------------------------
// Watchlists
// ---------------------------------------------------------------------------

func (l *Local) ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error) {
	if _, err := l.d.Users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return l.d.Watchlists.ListWatchlists(ctx, userID)
}

func (l *Local) CreateWatchlist(ctx context.Context, userID int64, in domain.WatchlistInput) (domain.Watchlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Watchlist{}, fmt.Errorf("watchlist name is required: %w", domain.ErrInvalidInput)
	}
	if _, err := l.d.Users.GetUser(ctx, userID); err != nil {
		return domain.Watchlist{}, err
	}
	return l.d.Watchlists.CreateWatchlist(ctx, userID, name)
}

// AddWatchlistItem resolves the symbol and appends it to a watchlist owned
// by userID.
func (l *Local) AddWatchlistItem(ctx context.Context, userID, watchlistID int64, in domain.WatchlistItemInput) (domain.WatchlistItem, error) {
	if normalize(in.Symbol) == "" {
		return domain.WatchlistItem{}, fmt.Errorf("symbol is required: %w", domain.ErrInvalidInput)
	}
	wl, err := l.d.Watchlists.GetWatchlist(ctx, watchlistID)
	if err != nil {
		return domain.WatchlistItem{}, err
	}
	if wl.UserID != userID {
		return domain.WatchlistItem{}, fmt.Errorf("watchlist %d not found: %w", watchlistID, domain.ErrNotFound)
	}
	sec, err := l.GetSecurity(ctx, in.Symbol)
	if err != nil {
		return domain.WatchlistItem{}, err
	}
	return l.d.Watchlists.AddWatchlistItem(ctx, watchlistID, sec, strings.TrimSpace(in.Notes))
}
