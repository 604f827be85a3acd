package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finscope/internal/domain"
)

// ---------------------------------------------------------------------------
// UserStore implementation
// ---------------------------------------------------------------------------

const userCols = `id, username, email, password_hash, is_active, created_at, updated_at`

func scanUser(r rowScanner) (domain.User, error) {
	var u domain.User
	var active int
	var created, updated string
	err := r.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &active, &created, &updated)
	u.IsActive = active != 0
	u.CreatedAt, u.UpdatedAt = parseTime(created), parseTime(updated)
	return u, err
}

// CreateUser inserts the user, its default settings and its default
// watchlist atomically.
func (s *SQLiteStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("beginning user create: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, boolInt(u.IsActive), formatTime(now), formatTime(now))
	if err != nil {
		return domain.User{}, translate(err, "username or email")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("reading user id: %w", err)
	}

	if err := saveSettings(ctx, tx, domain.DefaultUserSettings(id)); err != nil {
		return domain.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO watchlists (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, domain.DefaultWatchlistName, formatTime(now), formatTime(now)); err != nil {
		return domain.User{}, fmt.Errorf("creating default watchlist: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("committing user create: %w", err)
	}

	u.ID, u.CreatedAt, u.UpdatedAt = id, now, now
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, translate(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser overwrites the mutable columns of an existing user.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u domain.User) (domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, email = ?, password_hash = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, boolInt(u.IsActive), formatTime(time.Now()), u.ID)
	if err != nil {
		return domain.User{}, translate(err, "username or email")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.User{}, fmt.Errorf("user %d %w", u.ID, domain.ErrNotFound)
	}
	return s.GetUser(ctx, u.ID)
}

// DeleteUser removes a user; settings and watchlists cascade.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetUserSettings(ctx context.Context, userID int64) (domain.UserSettings, error) {
	var st domain.UserSettings
	var vol, ext int
	var inds string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, theme, default_chart_type, default_timeframe, show_volume, show_extended_hours, default_indicators
		FROM user_settings WHERE user_id = ?`, userID).
		Scan(&st.UserID, &st.Theme, &st.DefaultChartType, &st.DefaultTimeframe, &vol, &ext, &inds)
	if err != nil {
		return domain.UserSettings{}, translate(err, fmt.Sprintf("settings for user %d", userID))
	}
	st.ShowVolume, st.ShowExtendedHours = vol != 0, ext != 0
	if err := json.Unmarshal([]byte(inds), &st.DefaultIndicators); err != nil {
		return domain.UserSettings{}, fmt.Errorf("decoding indicators for user %d: %w", userID, err)
	}
	return st, nil
}

func (s *SQLiteStore) SaveUserSettings(ctx context.Context, st domain.UserSettings) error {
	return saveSettings(ctx, s.db, st)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveSettings(ctx context.Context, db execer, st domain.UserSettings) error {
	inds, err := json.Marshal(st.DefaultIndicators)
	if err != nil {
		return fmt.Errorf("encoding indicators: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, theme, default_chart_type, default_timeframe, show_volume, show_extended_hours, default_indicators)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			theme = excluded.theme,
			default_chart_type = excluded.default_chart_type,
			default_timeframe = excluded.default_timeframe,
			show_volume = excluded.show_volume,
			show_extended_hours = excluded.show_extended_hours,
			default_indicators = excluded.default_indicators`,
		st.UserID, st.Theme, st.DefaultChartType, st.DefaultTimeframe,
		boolInt(st.ShowVolume), boolInt(st.ShowExtendedHours), string(inds))
	if err != nil {
		return fmt.Errorf("saving settings for user %d: %w", st.UserID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// WatchlistStore implementation
// ---------------------------------------------------------------------------

func (s *SQLiteStore) ListWatchlists(ctx context.Context, userID int64) ([]domain.Watchlist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, created_at, updated_at FROM watchlists
		WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying watchlists: %w", err)
	}
	var out []domain.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning watchlist: %w", err)
		}
		out = append(out, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Items are loaded after the outer cursor is released; the pool has a
	// single connection.
	for i := range out {
		if out[i].Items, err = s.watchlistItems(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetWatchlist(ctx context.Context, id int64) (domain.Watchlist, error) {
	w, err := scanWatchlist(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at, updated_at FROM watchlists WHERE id = ?`, id))
	if err != nil {
		return domain.Watchlist{}, translate(err, fmt.Sprintf("watchlist %d", id))
	}
	if w.Items, err = s.watchlistItems(ctx, id); err != nil {
		return domain.Watchlist{}, err
	}
	return w, nil
}

func (s *SQLiteStore) CreateWatchlist(ctx context.Context, userID int64, name string) (domain.Watchlist, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlists (user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, name, formatTime(now), formatTime(now))
	if err != nil {
		return domain.Watchlist{}, translate(err, fmt.Sprintf("watchlist %q", name))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Watchlist{}, fmt.Errorf("reading watchlist id: %w", err)
	}
	return domain.Watchlist{ID: id, UserID: userID, Name: name, CreatedAt: now, UpdatedAt: now, Items: []domain.WatchlistItem{}}, nil
}

func (s *SQLiteStore) AddWatchlistItem(ctx context.Context, watchlistID int64, sec domain.Security, notes string) (domain.WatchlistItem, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist_items (watchlist_id, security_id, added_at, notes) VALUES (?, ?, ?, ?)`,
		watchlistID, sec.ID, formatTime(now), notes)
	if err != nil {
		return domain.WatchlistItem{}, translate(err, sec.Symbol+" in watchlist")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WatchlistItem{}, fmt.Errorf("reading item id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE watchlists SET updated_at = ? WHERE id = ?`, formatTime(now), watchlistID); err != nil {
		return domain.WatchlistItem{}, fmt.Errorf("touching watchlist %d: %w", watchlistID, err)
	}
	return domain.WatchlistItem{
		ID:          id,
		WatchlistID: watchlistID,
		SecurityID:  sec.ID,
		Symbol:      sec.Symbol,
		AddedAt:     now,
		Notes:       notes,
	}, nil
}

func scanWatchlist(r rowScanner) (domain.Watchlist, error) {
	var w domain.Watchlist
	var created, updated string
	err := r.Scan(&w.ID, &w.UserID, &w.Name, &created, &updated)
	w.CreatedAt, w.UpdatedAt = parseTime(created), parseTime(updated)
	return w, err
}

func (s *SQLiteStore) watchlistItems(ctx context.Context, watchlistID int64) ([]domain.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.watchlist_id, i.security_id, s.symbol, i.added_at, i.notes
		FROM watchlist_items i JOIN securities s ON s.id = i.security_id
		WHERE i.watchlist_id = ? ORDER BY i.id`, watchlistID)
	if err != nil {
		return nil, fmt.Errorf("querying watchlist items: %w", err)
	}
	defer rows.Close()

	items := []domain.WatchlistItem{}
	for rows.Next() {
		var it domain.WatchlistItem
		var added string
		if err := rows.Scan(&it.ID, &it.WatchlistID, &it.SecurityID, &it.Symbol, &added, &it.Notes); err != nil {
			return nil, fmt.Errorf("scanning watchlist item: %w", err)
		}
		it.AddedAt = parseTime(added)
		items = append(items, it)
	}
	return items, rows.Err()
}
