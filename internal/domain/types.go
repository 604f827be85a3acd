// Package domain defines the core types shared across finscope: securities,
// price bars, fails-to-deliver records, analytics reports, users and
// watchlists.
package domain

import (
	"errors"
	"time"
)

// Sentinel errors returned by providers and stores. Callers test them with
// errors.Is; the HTTP layer maps them to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)

// Market identifies a trading market.
type Market string

const (
	MarketUS Market = "us"
)

// Timespan is the aggregation window of a price bar.
type Timespan string

const (
	TimespanMinute Timespan = "minute"
	TimespanHour   Timespan = "hour"
	TimespanDay    Timespan = "day"
	TimespanWeek   Timespan = "week"
	TimespanMonth  Timespan = "month"
)

// Valid reports whether ts is one of the supported timespans.
func (ts Timespan) Valid() bool {
	switch ts {
	case TimespanMinute, TimespanHour, TimespanDay, TimespanWeek, TimespanMonth:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Securities and prices
// ---------------------------------------------------------------------------

// Security is a tradable instrument (stock, ETF, ...).
type Security struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Type      string    `json:"security_type"`
	Exchange  string    `json:"exchange,omitempty"`
	IsActive  bool      `json:"is_active"`
	Sector    string    `json:"sector,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	MarketCap float64   `json:"market_cap,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bar is a single OHLCV price bar.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"date"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap"`
}

// PriceSeries is a security together with its ordered bars.
type PriceSeries struct {
	Security Security `json:"security"`
	Timespan Timespan `json:"timespan"`
	Bars     []Bar    `json:"price_data"`
}

// PriceOptions narrows a price series request. Zero From/To means the
// provider default window.
type PriceOptions struct {
	From     time.Time
	To       time.Time
	Timespan Timespan
}

// HasRange reports whether an explicit date range was requested.
func (o PriceOptions) HasRange() bool {
	return !o.From.IsZero() || !o.To.IsZero()
}

// RangeOptions bounds an analytics request by date.
type RangeOptions struct {
	From time.Time
	To   time.Time
}

// LookbackOptions bounds an analytics request by number of calendar days
// ending today.
type LookbackOptions struct {
	Days int
}

// CorrelationOptions selects the comparison tickers and lookback window.
type CorrelationOptions struct {
	Comparison []string
	Days       int
}

// ---------------------------------------------------------------------------
// Fails-to-deliver
// ---------------------------------------------------------------------------

// FTD is one fails-to-deliver record for a settlement date.
type FTD struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	CUSIP    string    `json:"cusip,omitempty"`
	Quantity int64     `json:"quantity"`
	Price    float64   `json:"price"`
	Value    float64   `json:"value"`
}

// FTDSeries is a security with its fails-to-deliver history.
type FTDSeries struct {
	Security Security `json:"security"`
	Records  []FTD    `json:"ftd_data"`
}

// FTDOptions selects a SEC publication period. Half is 1 (a) or 2 (b); zero
// values mean "use cached data or the most recent period".
type FTDOptions struct {
	Year int
	Half int
}

// ---------------------------------------------------------------------------
// Analytics
// ---------------------------------------------------------------------------

// Point is a dated value in an indicator series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IndicatorSet holds named indicator series (sma_20, ema_12, macd, rsi,
// bb_upper, ...) for a security.
type IndicatorSet struct {
	Security   Security           `json:"security"`
	Indicators map[string][]Point `json:"indicators"`
}

// SwapCycle is one trough-peak-trough price cycle.
type SwapCycle struct {
	StartDate      time.Time `json:"start_date"`
	StartPrice     float64   `json:"start_price"`
	PeakDate       time.Time `json:"peak_date"`
	PeakPrice      float64   `json:"peak_price"`
	EndDate        time.Time `json:"end_date"`
	EndPrice       float64   `json:"end_price"`
	DurationDays   int       `json:"duration"`
	Return         float64   `json:"return"`
	Drawdown       float64   `json:"drawdown"`
	Volatility     float64   `json:"volatility"`
	FTDStart       int64     `json:"ftd_start"`
	FTDPeak        int64     `json:"ftd_peak"`
	FTDEnd         int64     `json:"ftd_end"`
	FTDCorrelation *float64  `json:"ftd_correlation"`
}

// SwapCycleReport is the swap cycle analysis for a security.
type SwapCycleReport struct {
	Security Security    `json:"security"`
	Cycles   []SwapCycle `json:"cycles"`
	Bars     []Bar       `json:"price_data"`
}

// VolatilityPoint is the volatility regime classification for one day.
type VolatilityPoint struct {
	Date       time.Time `json:"date"`
	Close      float64   `json:"close"`
	Volatility float64   `json:"volatility"`
	Rank       float64   `json:"volatility_rank"`
	Regime     string    `json:"volatility_regime"`
	PriceSMA   float64   `json:"price_sma"`
	Phase      string    `json:"cycle_phase"`
}

// VolatilityReport is the volatility cycle analysis for a security.
type VolatilityReport struct {
	Security Security          `json:"security"`
	Points   []VolatilityPoint `json:"volatility_data"`
}

// Correlation relates a security's returns to a comparison ticker.
type Correlation struct {
	Ticker      string  `json:"ticker"`
	Correlation float64 `json:"correlation"`
	Beta        float64 `json:"beta"`
	RSquared    float64 `json:"r_squared"`
}

// CorrelationReport lists correlations against each comparison ticker.
type CorrelationReport struct {
	Security     Security      `json:"security"`
	Correlations []Correlation `json:"correlations"`
}

// ---------------------------------------------------------------------------
// News
// ---------------------------------------------------------------------------

// Article is a single news article from any source.
type Article struct {
	Symbol   string    `json:"symbol"`
	Time     time.Time `json:"time"`
	Source   string    `json:"source"`
	Headline string    `json:"headline"`
	Content  string    `json:"content,omitempty"`
}

// NewsOptions bounds a news request to the trailing number of days.
type NewsOptions struct {
	Days int
}

// ---------------------------------------------------------------------------
// Users and watchlists
// ---------------------------------------------------------------------------

// User is a dashboard account. The password hash never leaves the store.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserInput carries the fields required to create a user.
type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserUpdate carries optional user field changes; nil means unchanged.
type UserUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// UserSettings are per-user chart and display defaults.
type UserSettings struct {
	UserID            int64    `json:"user_id"`
	Theme             string   `json:"theme"`
	DefaultChartType  string   `json:"default_chart_type"`
	DefaultTimeframe  string   `json:"default_timeframe"`
	ShowVolume        bool     `json:"show_volume"`
	ShowExtendedHours bool     `json:"show_extended_hours"`
	DefaultIndicators []string `json:"default_indicators"`
}

// DefaultUserSettings returns the settings seeded for a new user.
func DefaultUserSettings(userID int64) UserSettings {
	return UserSettings{
		UserID:            userID,
		Theme:             "dark",
		DefaultChartType:  "candlestick",
		DefaultTimeframe:  "1d",
		ShowVolume:        true,
		ShowExtendedHours: false,
		DefaultIndicators: []string{"sma_20", "sma_50", "sma_200", "rsi"},
	}
}

// DefaultWatchlistName is the watchlist created alongside every new user.
const DefaultWatchlistName = "Default"

// Watchlist is a named list of securities owned by a user.
type Watchlist struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Items     []WatchlistItem `json:"items"`
}

// WatchlistItem is one security in a watchlist.
type WatchlistItem struct {
	ID          int64     `json:"id"`
	WatchlistID int64     `json:"watchlist_id"`
	SecurityID  int64     `json:"security_id"`
	Symbol      string    `json:"security_symbol"`
	AddedAt     time.Time `json:"added_at"`
	Notes       string    `json:"notes,omitempty"`
}

// WatchlistInput carries the fields required to create a watchlist.
type WatchlistInput struct {
	Name string `json:"name"`
}

// WatchlistItemInput carries the fields required to add a watchlist item.
type WatchlistItemInput struct {
	Symbol string `json:"symbol"`
	Notes  string `json:"notes,omitempty"`
}

// APICall is an audit record of one outbound data-vendor request.
type APICall struct {
	Provider     string
	Endpoint     string
	URL          string
	Method       string
	Params       string
	StatusCode   int
	Success      bool
	ErrorMessage string
	CreatedAt    time.Time
}
