// Package store defines storage interfaces for persisting and retrieving
// domain objects such as bars, news, securities, fails-to-deliver records,
// users and watchlists.
package store

import (
	"context"
	"time"

	"finscope/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of daily bars for a market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// NewsStore archives news articles.
type NewsStore interface {
	WriteNews(ctx context.Context, articles []domain.Article) error
	ReadNews(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error)
}

// SecurityStore persists security reference data.
type SecurityStore interface {
	// UpsertSecurity inserts or updates a security keyed by symbol and
	// returns the stored row.
	UpsertSecurity(ctx context.Context, sec domain.Security) (domain.Security, error)

	// GetSecurity returns the security with the given symbol or
	// domain.ErrNotFound.
	GetSecurity(ctx context.Context, symbol string) (domain.Security, error)

	// GetSecurityByID returns the security with the given id or
	// domain.ErrNotFound.
	GetSecurityByID(ctx context.Context, id int64) (domain.Security, error)

	// ListSecurities returns active securities ordered by symbol.
	ListSecurities(ctx context.Context) ([]domain.Security, error)

	// SearchSecurities matches query against symbol and name.
	SearchSecurities(ctx context.Context, query string, limit int) ([]domain.Security, error)
}

// FTDStore persists fails-to-deliver records.
type FTDStore interface {
	// WriteFTD upserts records keyed by (security, settlement date).
	WriteFTD(ctx context.Context, securityID int64, recs []domain.FTD) error

	// ReadFTD returns records within [start, end]; zero bounds are open.
	ReadFTD(ctx context.Context, securityID int64, start, end time.Time) ([]domain.FTD, error)
}

// UserStore persists users and their settings.
type UserStore interface {
	// CreateUser inserts u together with its default settings and default
	// watchlist in one transaction. Duplicate username or email yields
	// domain.ErrConflict.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id int64) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) (domain.User, error)
	DeleteUser(ctx context.Context, id int64) error

	GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error)
	SaveUserSettings(ctx context.Context, s domain.UserSettings) error
}

// WatchlistStore persists watchlists and their items.
type WatchlistStore interface {
	ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error)
	GetWatchlist(ctx context.Context, id int64) (domain.Watchlist, error)
	CreateWatchlist(ctx context.Context, userID int64, name string) (domain.Watchlist, error)
	AddWatchlistItem(ctx context.Context, watchlistID int64, sec domain.Security, notes string) (domain.WatchlistItem, error)
}

// APICallLog records outbound data-vendor requests.
type APICallLog interface {
	LogAPICall(ctx context.Context, call domain.APICall) error
	RecentAPICalls(ctx context.Context, limit int) ([]domain.APICall, error)
}
