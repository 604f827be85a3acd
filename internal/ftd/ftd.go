// Package ftd downloads and parses the SEC fails-to-deliver archives.
//
// Each archive is a zip holding one pipe-delimited text file:
//
//	SETTLEMENT DATE|CUSIP|SYMBOL|QUANTITY (FAILS)|DESCRIPTION|PRICE
//	20240102|36467W109|GME|12345|GAMESTOP CORP|14.25
//	Trailer record count 1
package ftd

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"

	"finscope/internal/config"
	"finscope/internal/domain"
	"finscope/internal/util"
)

// FirstYear is the earliest year the SEC publishes.
const FirstYear = 2009

// Recorder persists outbound call records.
type Recorder interface {
	LogAPICall(ctx context.Context, call domain.APICall) error
}

// Source fetches fails-to-deliver records from the SEC.
type Source struct {
	client    *http.Client
	baseURL   string
	userAgent string
	attempts  int
	rec       Recorder
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Source from SEC configuration. rec may be nil.
func New(cfg config.SEC, rec Recorder, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Source{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		attempts:  3,
		rec:       rec,
		log:       log.With("component", "ftd"),
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Archive selection
// ---------------------------------------------------------------------------

// URLs returns the archives covering the given half-year (1 = Jan-Jun,
// 2 = Jul-Dec). 2009 is published monthly; later years as one archive per
// half. A zero year and half selects the recent semi-monthly archives.
func (s *Source) URLs(year, half int) ([]string, error) {
	now := s.now()
	if year == 0 && half == 0 {
		return s.recentURLs(now), nil
	}
	if year == 0 {
		year = now.Year()
	}
	if half == 0 {
		half = 1
		if now.Month() > time.June {
			half = 2
		}
	}
	if year < FirstYear || year > now.Year() {
		return nil, fmt.Errorf("year must be between %d and %d: %w", FirstYear, now.Year(), domain.ErrInvalidInput)
	}
	if half != 1 && half != 2 {
		return nil, fmt.Errorf("half must be 1 or 2: %w", domain.ErrInvalidInput)
	}
	if year == now.Year() && half == 2 && now.Month() <= time.June {
		return nil, fmt.Errorf("second half of %d is not yet available: %w", year, domain.ErrInvalidInput)
	}

	if year > FirstYear {
		suffix := "a"
		if half == 2 {
			suffix = "b"
		}
		return []string{fmt.Sprintf("%s/cnsfails%d%s.zip", s.baseURL, year, suffix)}, nil
	}

	first := 1
	if half == 2 {
		first = 7
	}
	urls := make([]string, 0, 6)
	for m := first; m < first+6; m++ {
		urls = append(urls, fmt.Sprintf("%s/cnsfails%d%02d.zip", s.baseURL, year, m))
	}
	return urls, nil
}

// recentURLs lists the "a" (days 1-15) and "b" (16-end) archives of the
// two months before now, oldest first.
func (s *Source) recentURLs(now time.Time) []string {
	var urls []string
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for back := 2; back >= 1; back-- {
		m := first.AddDate(0, -back, 0)
		for _, suffix := range []string{"a", "b"} {
			urls = append(urls, fmt.Sprintf("%s/cnsfails%d%02d%s.zip", s.baseURL, m.Year(), int(m.Month()), suffix))
		}
	}
	return urls
}

// ---------------------------------------------------------------------------
// Fetching
// ---------------------------------------------------------------------------

// Fetch downloads every archive for the period and returns the records for
// symbol ordered by settlement date. Missing archives are skipped; if every
// archive fails the last error is returned.
func (s *Source) Fetch(ctx context.Context, symbol string, year, half int) ([]domain.FTD, error) {
	symbol = strings.ToUpper(symbol)
	urls, err := s.URLs(year, half)
	if err != nil {
		return nil, err
	}

	var (
		out     []domain.FTD
		lastErr error
		fetched int
	)
	for _, u := range urls {
		data, err := s.download(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("ftd archive unavailable", "url", u, "error", err)
			lastErr = err
			continue
		}
		recs, err := ParseArchive(data, symbol)
		if err != nil {
			s.log.Warn("ftd archive unreadable", "url", u, "error", err)
			lastErr = err
			continue
		}
		fetched++
		out = append(out, recs...)
	}
	if fetched == 0 && lastErr != nil {
		return nil, fmt.Errorf("fetching ftd data for %s: %w: %w", symbol, domain.ErrUnavailable, lastErr)
	}
	s.log.Debug("ftd fetched", "symbol", symbol, "archives", fetched, "records", len(out))
	return dedupe(out), nil
}

func (s *Source) download(ctx context.Context, url string) ([]byte, error) {
	var (
		data []byte
		code int
	)
	err := util.Retry(ctx, s.attempts, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("User-Agent", s.userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		code = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		default:
			return util.Permanent(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	s.record(ctx, url, code, err)
	return data, err
}

func (s *Source) record(ctx context.Context, url string, code int, err error) {
	if s.rec == nil {
		return
	}
	call := domain.APICall{
		Provider:   "sec",
		Endpoint:   "ftd_data",
		URL:        url,
		Method:     http.MethodGet,
		StatusCode: code,
		Success:    err == nil,
		CreatedAt:  s.now().UTC(),
	}
	if err != nil {
		call.ErrorMessage = err.Error()
	}
	if lerr := s.rec.LogAPICall(context.WithoutCancel(ctx), call); lerr != nil {
		s.log.Warn("recording api call failed", "url", url, "error", lerr)
	}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseArchive reads every file in a zip archive and returns the rows for
// symbol. An empty symbol returns every row.
func ParseArchive(data []byte, symbol string) ([]domain.FTD, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	var out []domain.FTD
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		recs, err := Parse(rc, symbol)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// Parse reads pipe-delimited rows. The header, the trailer and malformed
// rows are skipped. Descriptions are ISO-8859-1 in the published files.
func Parse(r io.Reader, symbol string) ([]domain.FTD, error) {
	symbol = strings.ToUpper(symbol)
	sc := bufio.NewScanner(charmap.ISO8859_1.NewDecoder().Reader(r))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var out []domain.FTD
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 6 {
			continue // trailer
		}
		sym := strings.ToUpper(strings.TrimSpace(fields[2]))
		if symbol != "" && sym != symbol {
			continue
		}
		rec, ok := parseRow(fields, sym)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRow(fields []string, sym string) (domain.FTD, bool) {
	date, err := time.Parse("20060102", strings.TrimSpace(fields[0]))
	if err != nil {
		return domain.FTD{}, false // header
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return domain.FTD{}, false
	}
	price := decimal.Zero
	if p := strings.TrimSpace(fields[5]); p != "" && p != "." {
		if price, err = decimal.NewFromString(p); err != nil {
			return domain.FTD{}, false
		}
	}
	return domain.FTD{
		Symbol:   sym,
		Date:     date,
		CUSIP:    strings.TrimSpace(fields[1]),
		Quantity: qty,
		Price:    price.InexactFloat64(),
		Value:    decimal.NewFromInt(qty).Mul(price).InexactFloat64(),
	}, true
}

// dedupe keeps the last record per (symbol, date) and sorts by date.
func dedupe(recs []domain.FTD) []domain.FTD {
	idx := make(map[string]int, len(recs))
	out := make([]domain.FTD, 0, len(recs))
	for _, r := range recs {
		k := r.Symbol + "|" + r.Date.Format(time.DateOnly)
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
