package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
	"finscope/internal/menu"
	"finscope/internal/prefs"
	"finscope/internal/provider/providertest"
)

type fixture struct {
	fake  *providertest.Fake
	prefs *prefs.Store
	srv   *Server
	ts    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := providertest.New()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fake.AddSecurity(domain.Security{Symbol: "GME", Name: "GameStop Corp."},
		domain.Bar{Symbol: "GME", Timestamp: day, Close: 23.1},
		domain.Bar{Symbol: "GME", Timestamp: day.AddDate(0, 0, 1), Close: 24.5},
	)
	fake.AddNews("GME", domain.Article{Symbol: "GME", Time: day, Source: "alpaca", Headline: "GME up"})

	ps, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.json"), prefs.Preferences{Theme: prefs.ThemeDark}, nil)
	require.NoError(t, err)
	entries, err := menu.Resolve([]string{"dashboard", "news"})
	require.NoError(t, err)

	srv := New(fake, ps, entries, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &fixture{fake: fake, prefs: ps, srv: srv, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, Envelope[json.RawMessage]) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env Envelope[json.RawMessage]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestSecurityRoutes(t *testing.T) {
	f := newFixture(t)

	resp, env := f.do(t, http.MethodGet, "/api/securities/gme", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, "GME", decode[domain.Security](t, env.Data).Symbol)

	resp, env = f.do(t, http.MethodGet, "/api/securities/GME/price?from=2024-06-04", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	series := decode[domain.PriceSeries](t, env.Data)
	require.Len(t, series.Bars, 1)
	assert.Equal(t, 24.5, series.Bars[0].Close)

	_, env = f.do(t, http.MethodGet, "/api/securities/search?q=game", "")
	assert.Len(t, decode[[]domain.Security](t, env.Data), 1)

	_, env = f.do(t, http.MethodGet, "/api/securities/GME/correlations?comparison=spy,%20qqq", "")
	rep := decode[domain.CorrelationReport](t, env.Data)
	require.Len(t, rep.Correlations, 2)
	assert.Equal(t, "SPY", rep.Correlations[0].Ticker)
	assert.Equal(t, "QQQ", rep.Correlations[1].Ticker)

	_, env = f.do(t, http.MethodGet, "/api/securities/GME/news?days=3", "")
	assert.Len(t, decode[[]domain.Article](t, env.Data), 1)

	_, env = f.do(t, http.MethodGet, "/api/securities/AMC/news", "")
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		path string
		want int
	}{
		{"/api/securities/NOPE", http.StatusNotFound},
		{"/api/securities/search?q=g", http.StatusBadRequest},
		{"/api/securities/GME/price?from=June", http.StatusBadRequest},
		{"/api/securities/GME/price?timespan=fortnight", http.StatusBadRequest},
		{"/api/securities/GME/ftd?year=abc", http.StatusBadRequest},
		{"/api/users/zero", http.StatusBadRequest},
		{"/api/users/42", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, env := f.do(t, http.MethodGet, tc.path, "")
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
		assert.False(t, env.Success, tc.path)
		assert.NotEmpty(t, env.Error, tc.path)
	}

	f.fake.SetFail(fmt.Errorf("alpaca down: %w", domain.ErrUnavailable))
	resp, env := f.do(t, http.MethodGet, "/api/securities/GME", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, env.Error, "alpaca down")

	f.fake.SetFail(fmt.Errorf("disk on fire"))
	resp, env = f.do(t, http.MethodGet, "/api/securities/GME", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", env.Error)
}

func TestUserAndWatchlistRoutes(t *testing.T) {
	f := newFixture(t)

	resp, env := f.do(t, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	u := decode[domain.User](t, env.Data)
	assert.Equal(t, "ann", u.Username)
	assert.NotContains(t, string(env.Data), "password")

	resp, _ = f.do(t, http.MethodPost, "/api/users", `{"username":"ann","email":"ann@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/users", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	userPath := fmt.Sprintf("/api/users/%d", u.ID)
	_, env = f.do(t, http.MethodPut, userPath, `{"is_active":false}`)
	assert.False(t, decode[domain.User](t, env.Data).IsActive)

	_, env = f.do(t, http.MethodGet, userPath+"/watchlists", "")
	lists := decode[[]domain.Watchlist](t, env.Data)
	require.Len(t, lists, 1)
	assert.Equal(t, domain.DefaultWatchlistName, lists[0].Name)

	resp, env = f.do(t, http.MethodPost, userPath+"/watchlists", `{"name":"Squeeze"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wl := decode[domain.Watchlist](t, env.Data)

	resp, env = f.do(t, http.MethodPost, fmt.Sprintf("%s/watchlists/%d/items", userPath, wl.ID), `{"symbol":"GME"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "GME", decode[domain.WatchlistItem](t, env.Data).Symbol)

	resp, _ = f.do(t, http.MethodPost, fmt.Sprintf("%s/watchlists/%d/items", userPath, wl.ID), `{"symbol":"GME"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = f.do(t, http.MethodDelete, userPath, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	resp, _ = f.do(t, http.MethodGet, userPath, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMenuHealthAndPreferences(t *testing.T) {
	f := newFixture(t)

	_, env := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "ok", decode[Health](t, env.Data).Status)

	_, env = f.do(t, http.MethodGet, "/api/menu", "")
	entries := decode[[]menu.Entry](t, env.Data)
	require.Len(t, entries, 2)
	assert.Equal(t, menu.IconNewspaper, entries[1].Icon)

	_, env = f.do(t, http.MethodGet, "/api/preferences", "")
	assert.Equal(t, prefs.ThemeDark, decode[PreferencesResponse](t, env.Data).Theme)

	resp, env := f.do(t, http.MethodPut, "/api/preferences", `{"theme":"light"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[PreferencesResponse](t, env.Data)
	assert.Equal(t, prefs.ThemeLight, got.Theme)
	assert.Equal(t, prefs.ThemeLight, got.Resolved)
	assert.Equal(t, prefs.ThemeLight, f.prefs.Get().Theme)

	resp, _ = f.do(t, http.MethodPut, "/api/preferences", `{"theme":"neon"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, prefs.ThemeLight, f.prefs.Get().Theme)
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get(RequestIDHeader))

	req, err = http.NewRequest(http.MethodOptions, f.ts.URL+"/api/users", nil)
	require.NoError(t, err)
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp3.StatusCode)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	read := func() EventMessage {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg EventMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	msg := read()
	assert.Equal(t, "snapshot", msg.Data.Type)
	assert.Equal(t, prefs.ThemeDark, msg.Data.Prefs.Theme)

	require.NoError(t, f.prefs.SetSidebarCollapsed(true))
	msg = read()
	assert.Equal(t, "sidebar", msg.Data.Type)
	assert.True(t, msg.Data.Prefs.SidebarCollapsed)
}

func TestStatusRoundTrip(t *testing.T) {
	for _, sentinel := range []error{domain.ErrNotFound, domain.ErrInvalidInput, domain.ErrConflict, domain.ErrUnavailable} {
		assert.ErrorIs(t, ErrorFor(StatusFor(fmt.Errorf("wrapped: %w", sentinel))), sentinel)
	}
	assert.Nil(t, ErrorFor(http.StatusInternalServerError))
}
