package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"finscope/internal/domain"
)

// Compile-time interface checks.
var _ SecurityStore = (*SQLiteStore)(nil)
var _ FTDStore = (*SQLiteStore)(nil)
var _ UserStore = (*SQLiteStore)(nil)
var _ WatchlistStore = (*SQLiteStore)(nil)
var _ APICallLog = (*SQLiteStore)(nil)

// SQLiteStore implements the relational stores backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// migrations and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single
	// connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS securities (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol        TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		security_type TEXT NOT NULL DEFAULT 'stock',
		exchange      TEXT NOT NULL DEFAULT '',
		is_active     INTEGER NOT NULL DEFAULT 1,
		sector        TEXT NOT NULL DEFAULT '',
		industry      TEXT NOT NULL DEFAULT '',
		market_cap    REAL NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ftd_data (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		security_id INTEGER NOT NULL REFERENCES securities(id) ON DELETE CASCADE,
		date        TEXT NOT NULL,
		cusip       TEXT NOT NULL DEFAULT '',
		quantity    INTEGER NOT NULL,
		price       REAL NOT NULL,
		value       REAL NOT NULL,
		UNIQUE (security_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id             INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		theme               TEXT NOT NULL,
		default_chart_type  TEXT NOT NULL,
		default_timeframe   TEXT NOT NULL,
		show_volume         INTEGER NOT NULL,
		show_extended_hours INTEGER NOT NULL,
		default_indicators  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS watchlists (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS watchlist_items (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		watchlist_id INTEGER NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
		security_id  INTEGER NOT NULL REFERENCES securities(id),
		added_at     TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		UNIQUE (watchlist_id, security_id)
	)`,
	`CREATE TABLE IF NOT EXISTS api_call_logs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		provider      TEXT NOT NULL,
		endpoint      TEXT NOT NULL,
		url           TEXT NOT NULL DEFAULT '',
		method        TEXT NOT NULL DEFAULT 'GET',
		params        TEXT NOT NULL DEFAULT '',
		status_code   INTEGER NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ftd_security_date ON ftd_data(security_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_api_call_logs_created ON api_call_logs(created_at)`,
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration %d: %w", i, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// translate maps driver errors onto domain sentinels.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %w", what, domain.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
		return fmt.Errorf("%s already exists: %w", what, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// SecurityStore implementation
// ---------------------------------------------------------------------------

const securityCols = `id, symbol, name, security_type, exchange, is_active, sector, industry, market_cap, created_at, updated_at`

func scanSecurity(r rowScanner) (domain.Security, error) {
	var sec domain.Security
	var active int
	var created, updated string
	err := r.Scan(&sec.ID, &sec.Symbol, &sec.Name, &sec.Type, &sec.Exchange, &active,
		&sec.Sector, &sec.Industry, &sec.MarketCap, &created, &updated)
	sec.IsActive = active != 0
	sec.CreatedAt, sec.UpdatedAt = parseTime(created), parseTime(updated)
	return sec, err
}

// UpsertSecurity inserts a security or refreshes the descriptive columns of
// an existing row with the same symbol.
func (s *SQLiteStore) UpsertSecurity(ctx context.Context, sec domain.Security) (domain.Security, error) {
	sec.Symbol = strings.ToUpper(sec.Symbol)
	if sec.Type == "" {
		sec.Type = "stock"
	}
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO securities (symbol, name, security_type, exchange, is_active, sector, industry, market_cap, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			security_type = excluded.security_type,
			exchange = excluded.exchange,
			is_active = excluded.is_active,
			sector = CASE WHEN excluded.sector <> '' THEN excluded.sector ELSE securities.sector END,
			industry = CASE WHEN excluded.industry <> '' THEN excluded.industry ELSE securities.industry END,
			market_cap = CASE WHEN excluded.market_cap <> 0 THEN excluded.market_cap ELSE securities.market_cap END,
			updated_at = excluded.updated_at`,
		sec.Symbol, sec.Name, sec.Type, sec.Exchange, boolInt(sec.IsActive), sec.Sector, sec.Industry, sec.MarketCap, now, now)
	if err != nil {
		return domain.Security{}, translate(err, "security "+sec.Symbol)
	}
	return s.GetSecurity(ctx, sec.Symbol)
}

func (s *SQLiteStore) GetSecurity(ctx context.Context, symbol string) (domain.Security, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+securityCols+` FROM securities WHERE symbol = ?`, strings.ToUpper(symbol))
	sec, err := scanSecurity(row)
	if err != nil {
		return domain.Security{}, translate(err, "security "+strings.ToUpper(symbol))
	}
	return sec, nil
}

func (s *SQLiteStore) GetSecurityByID(ctx context.Context, id int64) (domain.Security, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+securityCols+` FROM securities WHERE id = ?`, id)
	sec, err := scanSecurity(row)
	if err != nil {
		return domain.Security{}, translate(err, fmt.Sprintf("security %d", id))
	}
	return sec, nil
}

func (s *SQLiteStore) ListSecurities(ctx context.Context) ([]domain.Security, error) {
	return s.querySecurities(ctx, `SELECT `+securityCols+` FROM securities WHERE is_active = 1 ORDER BY symbol`)
}

func (s *SQLiteStore) SearchSecurities(ctx context.Context, query string, limit int) ([]domain.Security, error) {
	if limit <= 0 {
		limit = 10
	}
	pat := "%" + strings.ToLower(query) + "%"
	return s.querySecurities(ctx, `SELECT `+securityCols+` FROM securities
		WHERE lower(symbol) LIKE ? OR lower(name) LIKE ?
		ORDER BY symbol LIMIT ?`, pat, pat, limit)
}

func (s *SQLiteStore) querySecurities(ctx context.Context, q string, args ...any) ([]domain.Security, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying securities: %w", err)
	}
	defer rows.Close()

	var out []domain.Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning security: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// FTDStore implementation
// ---------------------------------------------------------------------------

func (s *SQLiteStore) WriteFTD(ctx context.Context, securityID int64, recs []domain.FTD) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning ftd write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ftd_data (security_id, date, cusip, quantity, price, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(security_id, date) DO UPDATE SET
			cusip = excluded.cusip, quantity = excluded.quantity,
			price = excluded.price, value = excluded.value`)
	if err != nil {
		return fmt.Errorf("preparing ftd insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, securityID, r.Date.UTC().Format(time.DateOnly), r.CUSIP, r.Quantity, r.Price, r.Value); err != nil {
			return fmt.Errorf("inserting ftd %s %s: %w", r.Symbol, r.Date.Format(time.DateOnly), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReadFTD(ctx context.Context, securityID int64, start, end time.Time) ([]domain.FTD, error) {
	q := `SELECT s.symbol, f.date, f.cusip, f.quantity, f.price, f.value
		FROM ftd_data f JOIN securities s ON s.id = f.security_id
		WHERE f.security_id = ?`
	args := []any{securityID}
	if !start.IsZero() {
		q += ` AND f.date >= ?`
		args = append(args, start.UTC().Format(time.DateOnly))
	}
	if !end.IsZero() {
		q += ` AND f.date <= ?`
		args = append(args, end.UTC().Format(time.DateOnly))
	}
	q += ` ORDER BY f.date`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ftd: %w", err)
	}
	defer rows.Close()

	var out []domain.FTD
	for rows.Next() {
		var r domain.FTD
		var date string
		if err := rows.Scan(&r.Symbol, &date, &r.CUSIP, &r.Quantity, &r.Price, &r.Value); err != nil {
			return nil, fmt.Errorf("scanning ftd: %w", err)
		}
		r.Date, _ = time.Parse(time.DateOnly, date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// APICallLog implementation
// ---------------------------------------------------------------------------

func (s *SQLiteStore) LogAPICall(ctx context.Context, c domain.APICall) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Method == "" {
		c.Method = "GET"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_call_logs (provider, endpoint, url, method, params, status_code, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Provider, c.Endpoint, c.URL, c.Method, c.Params, c.StatusCode, boolInt(c.Success), c.ErrorMessage, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("logging api call: %w", err)
	}
	return nil
}

// RecentAPICalls returns the newest calls first.
func (s *SQLiteStore) RecentAPICalls(ctx context.Context, limit int) ([]domain.APICall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, endpoint, url, method, params, status_code, success, error_message, created_at
		FROM api_call_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying api calls: %w", err)
	}
	defer rows.Close()

	var out []domain.APICall
	for rows.Next() {
		var c domain.APICall
		var success int
		var created string
		if err := rows.Scan(&c.Provider, &c.Endpoint, &c.URL, &c.Method, &c.Params, &c.StatusCode, &success, &c.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("scanning api call: %w", err)
		}
		c.Success = success != 0
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
