// Package providertest provides an in-memory provider.DataProvider for
// tests of hook consumers and transports.
package providertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"finscope/internal/domain"
	"finscope/internal/provider"
)

var _ provider.DataProvider = (*Fake)(nil)

// Fake is an in-memory DataProvider. Populate it with the Add* helpers.
// Fail, when set, is returned by every operation.
type Fake struct {
	mu         sync.Mutex
	securities map[string]domain.Security
	bars       map[string][]domain.Bar
	ftd        map[string][]domain.FTD
	news       map[string][]domain.Article
	users      map[int64]domain.User
	watchlists map[int64]domain.Watchlist
	nextID     int64
	calls      map[string]int

	Fail  error
	Delay time.Duration
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		securities: make(map[string]domain.Security),
		bars:       make(map[string][]domain.Bar),
		ftd:        make(map[string][]domain.FTD),
		news:       make(map[string][]domain.Article),
		users:      make(map[int64]domain.User),
		watchlists: make(map[int64]domain.Watchlist),
		calls:      make(map[string]int),
	}
}

// AddSecurity registers a security and its bars.
func (f *Fake) AddSecurity(sec domain.Security, bars ...domain.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if sec.ID == 0 {
		sec.ID = f.nextID
	}
	f.securities[sec.Symbol] = sec
	f.bars[sec.Symbol] = append(f.bars[sec.Symbol], bars...)
}

// AddFTD registers fails-to-deliver records for a symbol.
func (f *Fake) AddFTD(symbol string, recs ...domain.FTD) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ftd[symbol] = append(f.ftd[symbol], recs...)
}

// AddNews registers articles for a symbol.
func (f *Fake) AddNews(symbol string, arts ...domain.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.news[symbol] = append(f.news[symbol], arts...)
}

// SetFail sets Fail under the lock, for use while requests are in flight.
func (f *Fake) SetFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	fail, delay := f.Fail, f.Delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

func (f *Fake) security(ticker string) (domain.Security, error) {
	sec, ok := f.securities[strings.ToUpper(ticker)]
	if !ok {
		return domain.Security{}, fmt.Errorf("security %s %w", strings.ToUpper(ticker), domain.ErrNotFound)
	}
	return sec, nil
}

// ---------------------------------------------------------------------------
// Securities and market data
// ---------------------------------------------------------------------------

func (f *Fake) ListSecurities(ctx context.Context) ([]domain.Security, error) {
	if err := f.enter(ctx, "ListSecurities"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Security, 0, len(f.securities))
	for _, s := range f.securities {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *Fake) GetSecurity(ctx context.Context, ticker string) (domain.Security, error) {
	if err := f.enter(ctx, "GetSecurity"); err != nil {
		return domain.Security{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.security(ticker)
}

func (f *Fake) SearchSecurities(ctx context.Context, query string) ([]domain.Security, error) {
	if err := f.enter(ctx, "SearchSecurities"); err != nil {
		return nil, err
	}
	if len(query) < provider.MinSearchQuery {
		return nil, fmt.Errorf("query too short: %w", domain.ErrInvalidInput)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []domain.Security
	for _, s := range f.securities {
		if strings.Contains(strings.ToLower(s.Symbol), q) || strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *Fake) GetPriceData(ctx context.Context, ticker string, opts domain.PriceOptions) (domain.PriceSeries, error) {
	if err := f.enter(ctx, "GetPriceData"); err != nil {
		return domain.PriceSeries{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	ts := opts.Timespan
	if ts == "" {
		ts = domain.TimespanDay
	}
	var bars []domain.Bar
	for _, b := range f.bars[sec.Symbol] {
		if !opts.From.IsZero() && b.Timestamp.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && b.Timestamp.After(opts.To) {
			continue
		}
		bars = append(bars, b)
	}
	return domain.PriceSeries{Security: sec, Timespan: ts, Bars: bars}, nil
}

func (f *Fake) GetFTDData(ctx context.Context, ticker string, _ domain.FTDOptions) (domain.FTDSeries, error) {
	if err := f.enter(ctx, "GetFTDData"); err != nil {
		return domain.FTDSeries{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.FTDSeries{}, err
	}
	return domain.FTDSeries{Security: sec, Records: f.ftd[sec.Symbol]}, nil
}

func (f *Fake) GetTechnicalIndicators(ctx context.Context, ticker string, _ domain.RangeOptions) (domain.IndicatorSet, error) {
	if err := f.enter(ctx, "GetTechnicalIndicators"); err != nil {
		return domain.IndicatorSet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.IndicatorSet{}, err
	}
	closes := make([]domain.Point, 0, len(f.bars[sec.Symbol]))
	for _, b := range f.bars[sec.Symbol] {
		closes = append(closes, domain.Point{Date: b.Timestamp, Value: b.Close})
	}
	return domain.IndicatorSet{Security: sec, Indicators: map[string][]domain.Point{"close": closes}}, nil
}

func (f *Fake) GetSwapCycles(ctx context.Context, ticker string, _ domain.LookbackOptions) (domain.SwapCycleReport, error) {
	if err := f.enter(ctx, "GetSwapCycles"); err != nil {
		return domain.SwapCycleReport{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.SwapCycleReport{}, err
	}
	return domain.SwapCycleReport{Security: sec, Bars: f.bars[sec.Symbol]}, nil
}

func (f *Fake) GetVolatilityCycles(ctx context.Context, ticker string, _ domain.LookbackOptions) (domain.VolatilityReport, error) {
	if err := f.enter(ctx, "GetVolatilityCycles"); err != nil {
		return domain.VolatilityReport{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.VolatilityReport{}, err
	}
	return domain.VolatilityReport{Security: sec}, nil
}

func (f *Fake) GetMarketCorrelations(ctx context.Context, ticker string, opts domain.CorrelationOptions) (domain.CorrelationReport, error) {
	if err := f.enter(ctx, "GetMarketCorrelations"); err != nil {
		return domain.CorrelationReport{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sec, err := f.security(ticker)
	if err != nil {
		return domain.CorrelationReport{}, err
	}
	rep := domain.CorrelationReport{Security: sec}
	for _, c := range opts.Comparison {
		rep.Correlations = append(rep.Correlations, domain.Correlation{Ticker: c, Correlation: 1, Beta: 1, RSquared: 1})
	}
	return rep, nil
}

func (f *Fake) GetNews(ctx context.Context, ticker string, _ domain.NewsOptions) ([]domain.Article, error) {
	if err := f.enter(ctx, "GetNews"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.news[strings.ToUpper(ticker)], nil
}

// ---------------------------------------------------------------------------
// Users and watchlists
// ---------------------------------------------------------------------------

func (f *Fake) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := f.enter(ctx, "ListUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if err := f.enter(ctx, "GetUser"); err != nil {
		return domain.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (f *Fake) CreateUser(ctx context.Context, in domain.UserInput) (domain.User, error) {
	if err := f.enter(ctx, "CreateUser"); err != nil {
		return domain.User{}, err
	}
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return domain.User{}, fmt.Errorf("username, email and password are required: %w", domain.ErrInvalidInput)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == in.Username || u.Email == in.Email {
			return domain.User{}, fmt.Errorf("username or email already exists: %w", domain.ErrConflict)
		}
	}
	f.nextID++
	u := domain.User{ID: f.nextID, Username: in.Username, Email: in.Email, IsActive: true}
	f.users[u.ID] = u
	f.nextID++
	f.watchlists[f.nextID] = domain.Watchlist{ID: f.nextID, UserID: u.ID, Name: domain.DefaultWatchlistName}
	return u, nil
}

func (f *Fake) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (domain.User, error) {
	if err := f.enter(ctx, "UpdateUser"); err != nil {
		return domain.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d %w", id, domain.ErrNotFound)
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	f.users[id] = u
	return u, nil
}

func (f *Fake) DeleteUser(ctx context.Context, id int64) error {
	if err := f.enter(ctx, "DeleteUser"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return fmt.Errorf("user %d %w", id, domain.ErrNotFound)
	}
	delete(f.users, id)
	return nil
}

func (f *Fake) ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error) {
	if err := f.enter(ctx, "ListWatchlists"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Watchlist
	for _, w := range f.watchlists {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) CreateWatchlist(ctx context.Context, userID int64, in domain.WatchlistInput) (domain.Watchlist, error) {
	if err := f.enter(ctx, "CreateWatchlist"); err != nil {
		return domain.Watchlist{}, err
	}
	if in.Name == "" {
		return domain.Watchlist{}, fmt.Errorf("watchlist name is required: %w", domain.ErrInvalidInput)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return domain.Watchlist{}, fmt.Errorf("user %d %w", userID, domain.ErrNotFound)
	}
	for _, w := range f.watchlists {
		if w.UserID == userID && w.Name == in.Name {
			return domain.Watchlist{}, fmt.Errorf("watchlist %q already exists: %w", in.Name, domain.ErrConflict)
		}
	}
	f.nextID++
	w := domain.Watchlist{ID: f.nextID, UserID: userID, Name: in.Name}
	f.watchlists[w.ID] = w
	return w, nil
}

func (f *Fake) AddWatchlistItem(ctx context.Context, userID, watchlistID int64, in domain.WatchlistItemInput) (domain.WatchlistItem, error) {
	if err := f.enter(ctx, "AddWatchlistItem"); err != nil {
		return domain.WatchlistItem{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watchlists[watchlistID]
	if !ok || w.UserID != userID {
		return domain.WatchlistItem{}, fmt.Errorf("watchlist %d %w", watchlistID, domain.ErrNotFound)
	}
	sec, err := f.security(in.Symbol)
	if err != nil {
		return domain.WatchlistItem{}, err
	}
	for _, it := range w.Items {
		if it.SecurityID == sec.ID {
			return domain.WatchlistItem{}, fmt.Errorf("%s already in watchlist: %w", sec.Symbol, domain.ErrConflict)
		}
	}
	f.nextID++
	it := domain.WatchlistItem{ID: f.nextID, WatchlistID: w.ID, SecurityID: sec.ID, Symbol: sec.Symbol, Notes: in.Notes}
	w.Items = append(w.Items, it)
	f.watchlists[w.ID] = w
	return it, nil
}
