// Package provider defines the named data retrieval operations consumed by
// the request hooks and implements them over local storage and market
// gateways.
package provider

import (
	"context"

	"finscope/internal/domain"
)

// SecurityProvider looks up securities.
type SecurityProvider interface {
	ListSecurities(ctx context.Context) ([]domain.Security, error)
	GetSecurity(ctx context.Context, ticker string) (domain.Security, error)
	SearchSecurities(ctx context.Context, query string) ([]domain.Security, error)
}

// MarketProvider serves price and fails-to-deliver series.
type MarketProvider interface {
	GetPriceData(ctx context.Context, ticker string, opts domain.PriceOptions) (domain.PriceSeries, error)
	GetFTDData(ctx context.Context, ticker string, opts domain.FTDOptions) (domain.FTDSeries, error)
}

// AnalysisProvider serves derived analytics.
type AnalysisProvider interface {
	GetTechnicalIndicators(ctx context.Context, ticker string, opts domain.RangeOptions) (domain.IndicatorSet, error)
	GetSwapCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.SwapCycleReport, error)
	GetVolatilityCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.VolatilityReport, error)
	GetMarketCorrelations(ctx context.Context, ticker string, opts domain.CorrelationOptions) (domain.CorrelationReport, error)
}

// NewsProvider serves news articles.
type NewsProvider interface {
	GetNews(ctx context.Context, ticker string, opts domain.NewsOptions) ([]domain.Article, error)
}

// UserProvider manages dashboard users.
type UserProvider interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	CreateUser(ctx context.Context, in domain.UserInput) (domain.User, error)
	UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (domain.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// WatchlistProvider manages per-user watchlists.
type WatchlistProvider interface {
	ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error)
	CreateWatchlist(ctx context.Context, userID int64, in domain.WatchlistInput) (domain.Watchlist, error)
	AddWatchlistItem(ctx context.Context, userID, watchlistID int64, in domain.WatchlistItemInput) (domain.WatchlistItem, error)
}

// DataProvider is the full set of retrieval operations.
type DataProvider interface {
	SecurityProvider
	MarketProvider
	AnalysisProvider
	NewsProvider
	UserProvider
	WatchlistProvider
}

// Defaults applied when an option is left zero.
const (
	DefaultPriceDays       = 30
	DefaultIndicatorDays   = 365
	DefaultCycleDays       = 365
	DefaultCorrelationDays = 90
	DefaultNewsDays        = 7
	MinSearchQuery         = 2
	SearchLimit            = 10
)

// DefaultComparison is the comparison set for market correlations.
var DefaultComparison = []string{"SPY", "QQQ", "IWM"}
