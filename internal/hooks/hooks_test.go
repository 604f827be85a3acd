package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
	"finscope/internal/provider/providertest"
	"finscope/internal/request"
)

func seeded() *providertest.Fake {
	f := providertest.New()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f.AddSecurity(domain.Security{Symbol: "GME", Name: "GameStop Corp."},
		domain.Bar{Symbol: "GME", Timestamp: day, Close: 100},
		domain.Bar{Symbol: "GME", Timestamp: day.AddDate(0, 0, 1), Close: 101},
	)
	f.AddSecurity(domain.Security{Symbol: "SPY", Name: "SPDR S&P 500"})
	f.AddFTD("GME", domain.FTD{Symbol: "GME", Date: day, Quantity: 1000, Price: 100, Value: 100000})
	f.AddNews("GME", domain.Article{Symbol: "GME", Headline: "GME rallies", Source: "alpaca"})
	return f
}

func TestPriceDataSucceeds(t *testing.T) {
	f := seeded()
	h := PriceData(f)
	defer h.Close()

	ps, err := h.Fetch(context.Background(), PriceArgs{Ticker: "gme"})
	require.NoError(t, err)
	assert.Equal(t, "GME", ps.Security.Symbol)
	assert.Len(t, ps.Bars, 2)
	assert.Equal(t, domain.TimespanDay, ps.Timespan)

	s := h.State()
	assert.Equal(t, request.Succeeded, s.Status)
	assert.Equal(t, ps, s.Result)
	assert.Equal(t, "price-data", h.Name())
}

func TestSecurityNotFoundIsStoredAndReturned(t *testing.T) {
	h := Security(seeded())
	_, err := h.Fetch(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, request.Failed, h.Status())
	assert.Equal(t, err.Error(), h.Err().Error())
}

func TestGoIsPendingWhileProviderRuns(t *testing.T) {
	f := seeded()
	f.Delay = 50 * time.Millisecond
	h := News(f)

	c := h.Go(context.Background(), NewsArgs{Ticker: "GME"})
	assert.True(t, h.Loading())

	arts, err := c.Wait()
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "GME rallies", arts[0].Headline)
	assert.False(t, h.Loading())
}

func TestVariantsPassArguments(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	list, err := Securities(f).Fetch(ctx, None{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	found, err := SecuritySearch(f).Fetch(ctx, "game")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "GME", found[0].Symbol)

	_, err = SecuritySearch(f).Fetch(ctx, "g")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ftd, err := FTDData(f).Fetch(ctx, FTDArgs{Ticker: "GME"})
	require.NoError(t, err)
	assert.Len(t, ftd.Records, 1)

	ind, err := TechnicalIndicators(f).Fetch(ctx, RangeArgs{Ticker: "GME"})
	require.NoError(t, err)
	assert.Len(t, ind.Indicators["close"], 2)

	_, err = SwapCycles(f).Fetch(ctx, LookbackArgs{Ticker: "GME", Options: domain.LookbackOptions{Days: 30}})
	require.NoError(t, err)
	_, err = VolatilityCycles(f).Fetch(ctx, LookbackArgs{Ticker: "GME"})
	require.NoError(t, err)

	corr, err := MarketCorrelations(f).Fetch(ctx, CorrelationArgs{
		Ticker:  "GME",
		Options: domain.CorrelationOptions{Comparison: []string{"SPY", "QQQ"}},
	})
	require.NoError(t, err)
	assert.Len(t, corr.Correlations, 2)
	assert.Equal(t, 1, f.Calls("GetMarketCorrelations"))
}

func TestUserAndWatchlistVariants(t *testing.T) {
	f := seeded()
	ctx := context.Background()

	u, err := CreateUser(f).Fetch(ctx, domain.UserInput{Username: "ann", Email: "ann@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = CreateUser(f).Fetch(ctx, domain.UserInput{Username: "ann", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := User(f).Fetch(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann", got.Username)

	name := "annie"
	upd, err := UpdateUser(f).Fetch(ctx, UserUpdateArgs{ID: u.ID, Update: domain.UserUpdate{Username: &name}})
	require.NoError(t, err)
	assert.Equal(t, "annie", upd.Username)

	lists, err := Watchlists(f).Fetch(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, domain.DefaultWatchlistName, lists[0].Name)

	w, err := CreateWatchlist(f).Fetch(ctx, WatchlistArgs{UserID: u.ID, Input: domain.WatchlistInput{Name: "Meme"}})
	require.NoError(t, err)

	item, err := AddWatchlistItem(f).Fetch(ctx, WatchlistItemArgs{UserID: u.ID, WatchlistID: w.ID, Input: domain.WatchlistItemInput{Symbol: "gme"}})
	require.NoError(t, err)
	assert.Equal(t, "GME", item.Symbol)

	users, err := Users(f).Fetch(ctx, None{})
	require.NoError(t, err)
	assert.Len(t, users, 1)

	del := DeleteUser(f)
	_, err = del.Fetch(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, request.Succeeded, del.Status())
}

func TestVariantHonoursPolicy(t *testing.T) {
	f := seeded()
	h := Security(f, request.WithPolicy(request.Serialized))
	assert.Equal(t, request.Serialized, h.Policy())

	f.Fail = errors.New("upstream down")
	_, err := h.Fetch(context.Background(), "GME")
	require.Error(t, err)
	assert.Equal(t, "upstream down", err.Error())
}
