// Package hooks binds request hooks to individual data provider operations.
// Every variant keeps the request.Hook contract and only fixes the action
// and its argument shape.
package hooks

import (
	"context"

	"finscope/internal/domain"
	"finscope/internal/provider"
	"finscope/internal/request"
)

// Variant is a request.Hook whose action is a single provider operation
// taking an argument of type A.
type Variant[A, T any] struct {
	*request.Hook[T]
	fn func(context.Context, A) (T, error)
}

func newVariant[A, T any](name string, fn func(context.Context, A) (T, error), opts []request.Option) *Variant[A, T] {
	return &Variant[A, T]{Hook: request.New[T](name, opts...), fn: fn}
}

// Go starts the operation for arg without waiting.
func (v *Variant[A, T]) Go(ctx context.Context, arg A) *request.Call[T] {
	return v.Start(ctx, request.Bind1(v.fn, arg))
}

// Fetch runs the operation for arg and waits for it.
func (v *Variant[A, T]) Fetch(ctx context.Context, arg A) (T, error) {
	return v.Go(ctx, arg).Wait()
}

// None is the argument of operations that take no input.
type None struct{}

// ---------------------------------------------------------------------------
// Argument shapes
// ---------------------------------------------------------------------------

type PriceArgs struct {
	Ticker  string
	Options domain.PriceOptions
}

type FTDArgs struct {
	Ticker  string
	Options domain.FTDOptions
}

type RangeArgs struct {
	Ticker  string
	Options domain.RangeOptions
}

type LookbackArgs struct {
	Ticker  string
	Options domain.LookbackOptions
}

type CorrelationArgs struct {
	Ticker  string
	Options domain.CorrelationOptions
}

type NewsArgs struct {
	Ticker  string
	Options domain.NewsOptions
}

type UserUpdateArgs struct {
	ID     int64
	Update domain.UserUpdate
}

type WatchlistArgs struct {
	UserID int64
	Input  domain.WatchlistInput
}

type WatchlistItemArgs struct {
	UserID      int64
	WatchlistID int64
	Input       domain.WatchlistItemInput
}

// ---------------------------------------------------------------------------
// Securities
// ---------------------------------------------------------------------------

func Securities(p provider.SecurityProvider, opts ...request.Option) *Variant[None, []domain.Security] {
	return newVariant("securities", func(ctx context.Context, _ None) ([]domain.Security, error) {
		return p.ListSecurities(ctx)
	}, opts)
}

func Security(p provider.SecurityProvider, opts ...request.Option) *Variant[string, domain.Security] {
	return newVariant("security", p.GetSecurity, opts)
}

func SecuritySearch(p provider.SecurityProvider, opts ...request.Option) *Variant[string, []domain.Security] {
	return newVariant("security-search", p.SearchSecurities, opts)
}

// ---------------------------------------------------------------------------
// Market data and analytics
// ---------------------------------------------------------------------------

func PriceData(p provider.MarketProvider, opts ...request.Option) *Variant[PriceArgs, domain.PriceSeries] {
	return newVariant("price-data", func(ctx context.Context, a PriceArgs) (domain.PriceSeries, error) {
		return p.GetPriceData(ctx, a.Ticker, a.Options)
	}, opts)
}

func FTDData(p provider.MarketProvider, opts ...request.Option) *Variant[FTDArgs, domain.FTDSeries] {
	return newVariant("ftd-data", func(ctx context.Context, a FTDArgs) (domain.FTDSeries, error) {
		return p.GetFTDData(ctx, a.Ticker, a.Options)
	}, opts)
}

func TechnicalIndicators(p provider.AnalysisProvider, opts ...request.Option) *Variant[RangeArgs, domain.IndicatorSet] {
	return newVariant("technical-indicators", func(ctx context.Context, a RangeArgs) (domain.IndicatorSet, error) {
		return p.GetTechnicalIndicators(ctx, a.Ticker, a.Options)
	}, opts)
}

func SwapCycles(p provider.AnalysisProvider, opts ...request.Option) *Variant[LookbackArgs, domain.SwapCycleReport] {
	return newVariant("swap-cycles", func(ctx context.Context, a LookbackArgs) (domain.SwapCycleReport, error) {
		return p.GetSwapCycles(ctx, a.Ticker, a.Options)
	}, opts)
}

func VolatilityCycles(p provider.AnalysisProvider, opts ...request.Option) *Variant[LookbackArgs, domain.VolatilityReport] {
	return newVariant("volatility-cycles", func(ctx context.Context, a LookbackArgs) (domain.VolatilityReport, error) {
		return p.GetVolatilityCycles(ctx, a.Ticker, a.Options)
	}, opts)
}

func MarketCorrelations(p provider.AnalysisProvider, opts ...request.Option) *Variant[CorrelationArgs, domain.CorrelationReport] {
	return newVariant("market-correlations", func(ctx context.Context, a CorrelationArgs) (domain.CorrelationReport, error) {
		return p.GetMarketCorrelations(ctx, a.Ticker, a.Options)
	}, opts)
}

func News(p provider.NewsProvider, opts ...request.Option) *Variant[NewsArgs, []domain.Article] {
	return newVariant("news", func(ctx context.Context, a NewsArgs) ([]domain.Article, error) {
		return p.GetNews(ctx, a.Ticker, a.Options)
	}, opts)
}

// ---------------------------------------------------------------------------
// Users and watchlists
// ---------------------------------------------------------------------------

func Users(p provider.UserProvider, opts ...request.Option) *Variant[None, []domain.User] {
	return newVariant("users", func(ctx context.Context, _ None) ([]domain.User, error) {
		return p.ListUsers(ctx)
	}, opts)
}

func User(p provider.UserProvider, opts ...request.Option) *Variant[int64, domain.User] {
	return newVariant("user", p.GetUser, opts)
}

func CreateUser(p provider.UserProvider, opts ...request.Option) *Variant[domain.UserInput, domain.User] {
	return newVariant("create-user", p.CreateUser, opts)
}

func UpdateUser(p provider.UserProvider, opts ...request.Option) *Variant[UserUpdateArgs, domain.User] {
	return newVariant("update-user", func(ctx context.Context, a UserUpdateArgs) (domain.User, error) {
		return p.UpdateUser(ctx, a.ID, a.Update)
	}, opts)
}

func DeleteUser(p provider.UserProvider, opts ...request.Option) *Variant[int64, None] {
	return newVariant("delete-user", func(ctx context.Context, id int64) (None, error) {
		return None{}, p.DeleteUser(ctx, id)
	}, opts)
}

func Watchlists(p provider.WatchlistProvider, opts ...request.Option) *Variant[int64, []domain.Watchlist] {
	return newVariant("watchlists", p.ListWatchlists, opts)
}

func CreateWatchlist(p provider.WatchlistProvider, opts ...request.Option) *Variant[WatchlistArgs, domain.Watchlist] {
	return newVariant("create-watchlist", func(ctx context.Context, a WatchlistArgs) (domain.Watchlist, error) {
		return p.CreateWatchlist(ctx, a.UserID, a.Input)
	}, opts)
}

func AddWatchlistItem(p provider.WatchlistProvider, opts ...request.Option) *Variant[WatchlistItemArgs, domain.WatchlistItem] {
	return newVariant("add-watchlist-item", func(ctx context.Context, a WatchlistItemArgs) (domain.WatchlistItem, error) {
		return p.AddWatchlistItem(ctx, a.UserID, a.WatchlistID, a.Input)
	}, opts)
}
