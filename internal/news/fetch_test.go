package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finscope/internal/domain"
)

type fakeAlpaca struct {
	news []marketdata.News
	err  error
	req  marketdata.GetNewsRequest
}

func (f *fakeAlpaca) GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error) {
	f.req = req
	return f.news, f.err
}

func rss(items ...string) string {
	return `<?xml version="1.0"?><rss><channel>` + strings.Join(items, "") + `</channel></rss>`
}

func item(title string, t time.Time, desc string) string {
	return fmt.Sprintf(`<item><title>%s</title><pubDate>%s</pubDate><description><![CDATA[%s]]></description></item>`,
		title, t.Format(time.RFC1123Z), desc)
}

var (
	start = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
)

func newTestFetcher(t *testing.T, alpaca AlpacaClient, sources []string, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewFetcher(alpaca, sources, nil)
	f.googleURL = srv.URL + "/google"
	f.globeURL = srv.URL + "/globe"
	return f
}

func TestFetchMergesSources(t *testing.T) {
	fa := &fakeAlpaca{news: []marketdata.News{{
		CreatedAt: time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC),
		Headline:  "GME jumps",
		Content:   "<p>Markets were mixed.</p><p>GME rose 10%.</p>",
	}}}
	f := newTestFetcher(t, fa, []string{SourceAlpaca, SourceGoogle, SourceGlobeNewswire}, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/google"):
			assert.Equal(t, "GME stock", r.URL.Query().Get("q"))
			fmt.Fprint(w, rss(
				item("GameStop rallies - Reuters", time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC), "<b>GameStop</b> &amp; friends"),
				item("Old story - Reuters", time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), "too old"),
				item("gme JUMPS", time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), "duplicate headline"),
			))
		case r.URL.Path == "/globe/GME/feedTitle/GlobeNewswire.xml":
			fmt.Fprint(w, rss(item("GameStop files 10-Q", time.Date(2024, 5, 5, 9, 0, 0, 0, time.UTC), "filing")))
		default:
			http.NotFound(w, r)
		}
	})

	arts, err := f.Fetch(context.Background(), "gme", start, end)
	require.NoError(t, err)
	require.Len(t, arts, 3)

	assert.Equal(t, "GameStop files 10-Q", arts[0].Headline)
	assert.Equal(t, SourceGlobeNewswire, arts[0].Source)
	assert.Equal(t, "GameStop rallies", arts[1].Headline)
	assert.Equal(t, "GameStop & friends", arts[1].Content)
	assert.Equal(t, "GME jumps", arts[2].Headline)
	assert.Equal(t, "GME rose 10%.", arts[2].Content)
	for _, a := range arts {
		assert.Equal(t, "GME", a.Symbol)
	}
	assert.Equal(t, []string{"GME"}, fa.req.Symbols)
}

func TestFetchToleratesPartialFailure(t *testing.T) {
	fa := &fakeAlpaca{err: errors.New("unauthorized")}
	f := newTestFetcher(t, fa, []string{SourceAlpaca, SourceGoogle}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rss(item("Headline", time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC), "")))
	})

	arts, err := f.Fetch(context.Background(), "GME", start, end)
	require.NoError(t, err)
	assert.Len(t, arts, 1)
}

func TestFetchAllSourcesFail(t *testing.T) {
	f := newTestFetcher(t, nil, []string{SourceGoogle, SourceGlobeNewswire}, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})

	_, err := f.Fetch(context.Background(), "GME", start, end)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world & co", StripHTML("<div>Hello <i>world</i></div><script>alert(1)</script> &amp; co"))
	assert.Equal(t, "", StripHTML(""))
}

func TestExtractSymbolContent(t *testing.T) {
	raw := "<p>Intro paragraph.</p><p>AAPL beat estimates.</p><ul><li>aapl guidance raised</li></ul>"
	assert.Equal(t, "AAPL beat estimates. aapl guidance raised", ExtractSymbolContent(raw, "AAPL"))
	assert.Equal(t, "Intro paragraph. AAPL beat estimates. aapl guidance raised", ExtractSymbolContent(raw, "MSFT"))
}

func TestDedupe(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := Dedupe([]domain.Article{
		{Time: t0, Headline: "A"},
		{Time: t0.Add(time.Hour), Headline: "a "},
		{Time: t0.Add(2 * time.Hour), Headline: "B"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Headline)
	assert.Equal(t, "a ", out[1].Headline)
}
