// Package finscope is a Go SDK for the finscope HTTP API. Client implements
// provider.DataProvider so remote and local back ends are interchangeable.
package finscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finscope/internal/domain"
	"finscope/internal/httpapi"
	"finscope/internal/menu"
	"finscope/internal/provider"
)

var _ provider.DataProvider = (*Client)(nil)

// Client provides a Go SDK for interacting with the finscope server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new finscope API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// APIError is a non-success response. It unwraps to the domain sentinel
// matching its status code, if any.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finscope api: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return httpapi.ErrorFor(e.StatusCode) }

// do sends a request and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env httpapi.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding %s data: %w", path, err)
		}
	}
	return nil
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	err := c.do(ctx, http.MethodGet, path, query, nil, &out)
	return out, err
}

func securityPath(ticker, suffix string) string {
	return "/api/securities/" + url.PathEscape(strings.ToUpper(ticker)) + suffix
}

func setDate(q url.Values, key string, t time.Time) {
	if !t.IsZero() {
		q.Set(key, t.Format("2006-01-02"))
	}
}

func setInt(q url.Values, key string, n int) {
	if n > 0 {
		q.Set(key, strconv.Itoa(n))
	}
}

// ---------------------------------------------------------------------------
// Securities and market data
// ---------------------------------------------------------------------------

func (c *Client) ListSecurities(ctx context.Context) ([]domain.Security, error) {
	return get[[]domain.Security](ctx, c, "/api/securities", nil)
}

func (c *Client) GetSecurity(ctx context.Context, ticker string) (domain.Security, error) {
	return get[domain.Security](ctx, c, securityPath(ticker, ""), nil)
}

func (c *Client) SearchSecurities(ctx context.Context, query string) ([]domain.Security, error) {
	return get[[]domain.Security](ctx, c, "/api/securities/search", url.Values{"q": {query}})
}

func (c *Client) GetPriceData(ctx context.Context, ticker string, opts domain.PriceOptions) (domain.PriceSeries, error) {
	q := url.Values{}
	setDate(q, "from", opts.From)
	setDate(q, "to", opts.To)
	if opts.Timespan != "" {
		q.Set("timespan", string(opts.Timespan))
	}
	return get[domain.PriceSeries](ctx, c, securityPath(ticker, "/price"), q)
}

func (c *Client) GetFTDData(ctx context.Context, ticker string, opts domain.FTDOptions) (domain.FTDSeries, error) {
	q := url.Values{}
	setInt(q, "year", opts.Year)
	setInt(q, "half", opts.Half)
	return get[domain.FTDSeries](ctx, c, securityPath(ticker, "/ftd"), q)
}

func (c *Client) GetTechnicalIndicators(ctx context.Context, ticker string, opts domain.RangeOptions) (domain.IndicatorSet, error) {
	q := url.Values{}
	setDate(q, "from", opts.From)
	setDate(q, "to", opts.To)
	return get[domain.IndicatorSet](ctx, c, securityPath(ticker, "/indicators"), q)
}

func (c *Client) GetSwapCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.SwapCycleReport, error) {
	q := url.Values{}
	setInt(q, "lookback", opts.Days)
	return get[domain.SwapCycleReport](ctx, c, securityPath(ticker, "/swap-cycles"), q)
}

func (c *Client) GetVolatilityCycles(ctx context.Context, ticker string, opts domain.LookbackOptions) (domain.VolatilityReport, error) {
	q := url.Values{}
	setInt(q, "lookback", opts.Days)
	return get[domain.VolatilityReport](ctx, c, securityPath(ticker, "/volatility-cycles"), q)
}

func (c *Client) GetMarketCorrelations(ctx context.Context, ticker string, opts domain.CorrelationOptions) (domain.CorrelationReport, error) {
	q := url.Values{}
	if len(opts.Comparison) > 0 {
		q.Set("comparison", strings.Join(opts.Comparison, ","))
	}
	setInt(q, "lookback", opts.Days)
	return get[domain.CorrelationReport](ctx, c, securityPath(ticker, "/correlations"), q)
}

func (c *Client) GetNews(ctx context.Context, ticker string, opts domain.NewsOptions) ([]domain.Article, error) {
	q := url.Values{}
	setInt(q, "days", opts.Days)
	return get[[]domain.Article](ctx, c, securityPath(ticker, "/news"), q)
}

// ---------------------------------------------------------------------------
// Users and watchlists
// ---------------------------------------------------------------------------

func userPath(id int64, suffix string) string {
	return "/api/users/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	return get[[]domain.User](ctx, c, "/api/users", nil)
}

func (c *Client) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return get[domain.User](ctx, c, userPath(id, ""), nil)
}

func (c *Client) CreateUser(ctx context.Context, in domain.UserInput) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodPost, "/api/users", nil, in, &u)
	return u, err
}

func (c *Client) UpdateUser(ctx context.Context, id int64, upd domain.UserUpdate) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodPut, userPath(id, ""), nil, upd, &u)
	return u, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, userPath(id, ""), nil, nil, nil)
}

func (c *Client) ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error) {
	return get[[]domain.Watchlist](ctx, c, userPath(userID, "/watchlists"), nil)
}

func (c *Client) CreateWatchlist(ctx context.Context, userID int64, in domain.WatchlistInput) (domain.Watchlist, error) {
	var w domain.Watchlist
	err := c.do(ctx, http.MethodPost, userPath(userID, "/watchlists"), nil, in, &w)
	return w, err
}

func (c *Client) AddWatchlistItem(ctx context.Context, userID, watchlistID int64, in domain.WatchlistItemInput) (domain.WatchlistItem, error) {
	var it domain.WatchlistItem
	path := userPath(userID, "/watchlists/"+strconv.FormatInt(watchlistID, 10)+"/items")
	err := c.do(ctx, http.MethodPost, path, nil, in, &it)
	return it, err
}

// ---------------------------------------------------------------------------
// Menu and preferences
// ---------------------------------------------------------------------------

// Menu returns the server's resolved sidebar entries.
func (c *Client) Menu(ctx context.Context) ([]menu.Entry, error) {
	return get[[]menu.Entry](ctx, c, "/api/menu", nil)
}

// Preferences returns the server's display preferences.
func (c *Client) Preferences(ctx context.Context) (httpapi.PreferencesResponse, error) {
	return get[httpapi.PreferencesResponse](ctx, c, "/api/preferences", nil)
}

// UpdatePreferences changes the non-nil fields of upd.
func (c *Client) UpdatePreferences(ctx context.Context, upd httpapi.PreferencesUpdate) (httpapi.PreferencesResponse, error) {
	var out httpapi.PreferencesResponse
	err := c.do(ctx, http.MethodPut, "/api/preferences", nil, upd, &out)
	return out, err
}

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}
