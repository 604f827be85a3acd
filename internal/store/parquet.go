package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"finscope/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ NewsStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and NewsStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// NewsRecord is the Parquet schema for archived news articles.
type NewsRecord struct {
	Symbol    string `parquet:"symbol"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Source    string `parquet:"source"`
	Headline  string `parquet:"headline"`
	Content   string `parquet:"content"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files grouped by symbol and year,
// merging with what is already on disk:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: strings.ToUpper(b.Symbol), year: ts.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     k.symbol,
			Timestamp:  ts.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		// A missing file just means nothing to merge with.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeByKey(existing, records,
			func(r BarRecord) string { return fmt.Sprintf("%s|%d", r.Symbol, r.Timestamp) },
			func(r BarRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, market, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// NewsStore implementation
// ---------------------------------------------------------------------------

// WriteNews archives articles into one file per symbol and UTC day,
// deduplicated by (source, time, headline).
func (s *ParquetStore) WriteNews(_ context.Context, articles []domain.Article) error {
	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]NewsRecord)
	for _, a := range articles {
		ts := a.Time.UTC()
		k := key{symbol: strings.ToUpper(a.Symbol), date: ts.Format(time.DateOnly)}
		groups[k] = append(groups[k], NewsRecord{
			Symbol:    k.symbol,
			Timestamp: ts.UnixMilli(),
			Source:    a.Source,
			Headline:  a.Headline,
			Content:   a.Content,
		})
	}

	for k, records := range groups {
		day, _ := time.Parse(time.DateOnly, k.date)
		path := s.newsPath(k.symbol, day)

		existing, _ := readParquetFile[NewsRecord](path)
		merged := mergeByKey(existing, records,
			func(r NewsRecord) string { return fmt.Sprintf("%s|%d|%s", r.Source, r.Timestamp, r.Headline) },
			func(r NewsRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing news for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadNews returns archived articles for symbol within [start, end], oldest
// first.
func (s *ParquetStore) ReadNews(_ context.Context, symbol string, start, end time.Time) ([]domain.Article, error) {
	var out []domain.Article
	first := start.UTC().Truncate(24 * time.Hour)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[NewsRecord](s.newsPath(symbol, d))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			out = append(out, domain.Article{
				Symbol:   r.Symbol,
				Time:     ts,
				Source:   r.Source,
				Headline: r.Headline,
				Content:  r.Content,
			})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// newsPath returns the filesystem path for a news Parquet file.
// Layout: <dataDir>/us/news/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) newsPath(symbol string, t time.Time) string {
	return filepath.Join(s.DataDir, string(domain.MarketUS), "news", strings.ToUpper(symbol), t.Format(time.DateOnly)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeByKey deduplicates records by key, preferring incoming over
// existing, and sorts the result by ts.
func mergeByKey[T any](existing, incoming []T, key func(T) string, ts func(T) int64) []T {
	seen := make(map[string]T, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key(r)] = r
	}
	for _, r := range incoming {
		seen[key(r)] = r
	}

	merged := make([]T, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if ts(merged[i]) != ts(merged[j]) {
			return ts(merged[i]) < ts(merged[j])
		}
		return key(merged[i]) < key(merged[j])
	})
	return merged
}
