package finscope

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
	"finscope/internal/httpapi"
	"finscope/internal/menu"
	"finscope/internal/prefs"
	"finscope/internal/provider/providertest"
)

func newTestClient(t *testing.T) (*Client, *providertest.Fake) {
	t.Helper()
	fake := providertest.New()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fake.AddSecurity(domain.Security{Symbol: "GME", Name: "GameStop Corp."},
		domain.Bar{Symbol: "GME", Timestamp: day, Close: 23.1},
		domain.Bar{Symbol: "GME", Timestamp: day.AddDate(0, 0, 1), Close: 24.5},
	)
	fake.AddFTD("GME", domain.FTD{Symbol: "GME", Date: day, Quantity: 1000, Price: 23.1, Value: 23100})

	ps, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.json"), prefs.Preferences{Theme: prefs.ThemeDark}, nil)
	require.NoError(t, err)
	entries, err := menu.Resolve(nil)
	require.NoError(t, err)
	srv := httpapi.New(fake, ps, entries, httpapi.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL + "/"), fake
}

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:5000/")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	require.NotNil(t, c.httpClient)

	hc := &http.Client{}
	assert.Same(t, hc, c.WithHTTPClient(hc).httpClient)
}

func TestClientSecurities(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	sec, err := c.GetSecurity(ctx, "gme")
	require.NoError(t, err)
	assert.Equal(t, "GameStop Corp.", sec.Name)

	series, err := c.GetPriceData(ctx, "GME", domain.PriceOptions{To: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, series.Bars, 1)
	assert.Equal(t, 23.1, series.Bars[0].Close)

	ftd, err := c.GetFTDData(ctx, "GME", domain.FTDOptions{})
	require.NoError(t, err)
	require.Len(t, ftd.Records, 1)
	assert.EqualValues(t, 1000, ftd.Records[0].Quantity)

	rep, err := c.GetMarketCorrelations(ctx, "GME", domain.CorrelationOptions{Comparison: []string{"SPY", "IWM"}, Days: 30})
	require.NoError(t, err)
	assert.Len(t, rep.Correlations, 2)

	list, err := c.ListSecurities(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	arts, err := c.GetNews(ctx, "GME", domain.NewsOptions{Days: 7})
	require.NoError(t, err)
	assert.NotNil(t, arts)
	assert.Empty(t, arts)
}

func TestClientErrorsUnwrapToSentinels(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetSecurity(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "NOPE")

	_, err = c.SearchSecurities(ctx, "g")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	fake.SetFail(domain.ErrUnavailable)
	_, err = c.GetSecurity(ctx, "GME")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClientUnreachableIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url).GetSecurity(context.Background(), "GME")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClientUsersAndWatchlists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	u, err := c.CreateUser(ctx, domain.UserInput{Username: "bo", Email: "bo@example.com", Password: "secret"})
	require.NoError(t, err)

	_, err = c.CreateUser(ctx, domain.UserInput{Username: "bo", Email: "bo@example.com", Password: "secret"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	name := "bo2"
	u, err = c.UpdateUser(ctx, u.ID, domain.UserUpdate{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "bo2", u.Username)

	wl, err := c.CreateWatchlist(ctx, u.ID, domain.WatchlistInput{Name: "Meme"})
	require.NoError(t, err)
	it, err := c.AddWatchlistItem(ctx, u.ID, wl.ID, domain.WatchlistItemInput{Symbol: "GME", Notes: "hold"})
	require.NoError(t, err)
	assert.Equal(t, "hold", it.Notes)

	lists, err := c.ListWatchlists(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, c.DeleteUser(ctx, u.ID))
	_, err = c.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClientMenuAndPreferences(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	entries, err := c.Menu(ctx)
	require.NoError(t, err)
	require.Len(t, entries, len(menu.DefaultOrder))
	assert.Equal(t, menu.Dashboard, entries[0].Item)

	p, err := c.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, prefs.ThemeDark, p.Theme)

	collapsed := true
	p, err = c.UpdatePreferences(ctx, httpapi.PreferencesUpdate{SidebarCollapsed: &collapsed})
	require.NoError(t, err)
	assert.True(t, p.SidebarCollapsed)
	assert.Equal(t, prefs.ThemeDark, p.Theme)
}
