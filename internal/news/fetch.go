// Package news fetches articles for a symbol from Alpaca, Google News RSS
// and GlobeNewswire RSS.
package news

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"finscope/internal/domain"
)

// Source names accepted in configuration.
const (
	SourceAlpaca        = "alpaca"
	SourceGoogle        = "google"
	SourceGlobeNewswire = "globenewswire"
)

// AlpacaClient is the subset of *marketdata.Client used for news.
type AlpacaClient interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

var _ AlpacaClient = (*marketdata.Client)(nil)

// Fetcher aggregates news from the configured sources.
type Fetcher struct {
	alpaca    AlpacaClient
	client    *http.Client
	sources   []string
	googleURL string
	globeURL  string
	log       *slog.Logger
}

// NewFetcher creates a Fetcher. alpaca may be nil, in which case the
// alpaca source is skipped.
func NewFetcher(alpaca AlpacaClient, sources []string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		alpaca:    alpaca,
		client:    &http.Client{Timeout: 10 * time.Second},
		sources:   sources,
		googleURL: "https://news.google.com/rss/search",
		globeURL:  "https://www.globenewswire.com/RssFeed/keyword",
		log:       log.With("component", "news"),
	}
}

// Fetch returns articles for symbol published in [start, end], newest
// first, across every source. A failing source is logged and skipped; the
// call fails only when all sources fail.
func (f *Fetcher) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error) {
	symbol = strings.ToUpper(symbol)

	var (
		mu    sync.Mutex
		all   []domain.Article
		errs  []error
		tried int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range f.sources {
		fetch := f.sourceFunc(src)
		if fetch == nil {
			continue
		}
		tried++
		g.Go(func() error {
			arts, err := fetch(gctx, symbol, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				f.log.Warn("news source failed", "source", src, "symbol", symbol, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", src, err))
				return nil
			}
			all = append(all, arts...)
			return nil
		})
	}
	_ = g.Wait()

	if tried > 0 && len(errs) == tried {
		return nil, fmt.Errorf("fetching news for %s: %w: %w", symbol, domain.ErrUnavailable, errors.Join(errs...))
	}
	for i := range all {
		all[i].Symbol = symbol
	}
	return Dedupe(all), nil
}

type sourceFunc func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error)

func (f *Fetcher) sourceFunc(name string) sourceFunc {
	switch name {
	case SourceAlpaca:
		if f.alpaca == nil {
			return nil
		}
		return f.fetchAlpaca
	case SourceGoogle:
		return f.fetchGoogle
	case SourceGlobeNewswire:
		return f.fetchGlobeNewswire
	}
	return nil
}

// Dedupe drops repeated headlines (case-insensitive) and sorts newest
// first.
func Dedupe(arts []domain.Article) []domain.Article {
	sort.SliceStable(arts, func(i, j int) bool { return arts[i].Time.After(arts[j].Time) })
	seen := make(map[string]bool, len(arts))
	out := arts[:0]
	for _, a := range arts {
		k := strings.ToLower(strings.TrimSpace(a.Headline))
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, a)
	}
	return out
}

// --- Alpaca ---

func (f *Fetcher) fetchAlpaca(_ context.Context, symbol string, start, end time.Time) ([]domain.Article, error) {
	alpacaNews, err := f.alpaca.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         50,
		IncludeContent:     true,
		ExcludeContentless: true,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		body := ""
		if a.Content != "" {
			body = ExtractSymbolContent(a.Content, symbol)
		} else if a.Summary != "" {
			body = a.Summary
		}
		articles = append(articles, domain.Article{
			Time:     a.CreatedAt.UTC(),
			Source:   SourceAlpaca,
			Headline: a.Headline,
			Content:  body,
		})
	}
	return articles, nil
}

// --- RSS ---

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

var rssTimeLayouts = []string{time.RFC1123Z, time.RFC1123, "Mon, 02 Jan 2006 15:04 MST"}

func parseRSSTime(s string) (time.Time, bool) {
	for _, layout := range rssTimeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (f *Fetcher) fetchRSS(ctx context.Context, u string) ([]rssItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decoding rss: %w", err)
	}
	return rss.Channel.Items, nil
}

func (f *Fetcher) fetchGoogle(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error) {
	q := url.Values{"q": {symbol + " stock"}, "hl": {"en-US"}, "gl": {"US"}, "ceid": {"US:en"}}
	items, err := f.fetchRSS(ctx, f.googleURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	for _, item := range items {
		t, ok := parseRSSTime(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		headline := item.Title
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		articles = append(articles, domain.Article{
			Time:     t,
			Source:   SourceGoogle,
			Headline: headline,
			Content:  StripHTML(item.Desc),
		})
	}
	return articles, nil
}

func (f *Fetcher) fetchGlobeNewswire(ctx context.Context, symbol string, start, end time.Time) ([]domain.Article, error) {
	items, err := f.fetchRSS(ctx, f.globeURL+"/"+url.PathEscape(symbol)+"/feedTitle/GlobeNewswire.xml")
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	for _, item := range items {
		t, ok := parseRSSTime(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		articles = append(articles, domain.Article{
			Time:     t,
			Source:   SourceGlobeNewswire,
			Headline: item.Title,
			Content:  StripHTML(item.Desc),
		})
	}
	return articles, nil
}
