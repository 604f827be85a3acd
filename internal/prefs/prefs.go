// Package prefs holds the process-wide display preferences (theme and
// sidebar state) with JSON persistence and pub/sub for live consumers.
package prefs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"finscope/internal/domain"
)

// Theme is a colour scheme selection.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q: %w", s, domain.ErrInvalidInput)
}

// Preferences is the persisted state.
type Preferences struct {
	Theme            Theme `json:"theme"`
	SidebarCollapsed bool  `json:"sidebar_collapsed"`
}

// Event is broadcast after every change and sent once on subscribe.
type Event struct {
	Type     string      `json:"type"` // "snapshot", "theme", "sidebar"
	Prefs    Preferences `json:"preferences"`
	Resolved Theme       `json:"resolved_theme"`
}

// Store holds preferences in memory with write-through JSON persistence.
type Store struct {
	mu       sync.RWMutex
	prefs    Preferences
	filePath string
	getenv   func(string) string
	log      *slog.Logger

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// Open loads preferences from path. A missing or unreadable file yields
// defaults; an invalid default theme is an error.
func Open(path string, defaults Preferences, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if defaults.Theme == "" {
		defaults.Theme = ThemeSystem
	}
	if _, err := ParseTheme(string(defaults.Theme)); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating preferences dir: %w", err)
		}
	}
	s := &Store{
		prefs:    defaults,
		filePath: path,
		getenv:   os.Getenv,
		log:      log.With("component", "prefs"),
		subs:     make(map[int]chan Event),
	}
	s.load()
	return s, nil
}

// Get returns the current preferences.
func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Resolved returns the effective theme, mapping system to light or dark.
func (s *Store) Resolved() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked()
}

func (s *Store) resolveLocked() Theme {
	if s.prefs.Theme == ThemeSystem {
		return ResolveSystem(s.getenv)
	}
	return s.prefs.Theme
}

// SetTheme stores t, persists and broadcasts.
func (s *Store) SetTheme(t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	return s.mutate("theme", func(p *Preferences) { p.Theme = t })
}

// ToggleTheme switches between light and dark. From system it switches to
// the opposite of the resolved theme.
func (s *Store) ToggleTheme() (Theme, error) {
	next := ThemeDark
	if s.Resolved() == ThemeDark {
		next = ThemeLight
	}
	return next, s.SetTheme(next)
}

// SetSidebarCollapsed stores the sidebar state, persists and broadcasts.
func (s *Store) SetSidebarCollapsed(collapsed bool) error {
	return s.mutate("sidebar", func(p *Preferences) { p.SidebarCollapsed = collapsed })
}

// ToggleSidebar flips the sidebar state and returns the new value.
func (s *Store) ToggleSidebar() (bool, error) {
	collapsed := !s.Get().SidebarCollapsed
	return collapsed, s.SetSidebarCollapsed(collapsed)
}

// Replace overwrites every field.
func (s *Store) Replace(p Preferences) error {
	if _, err := ParseTheme(string(p.Theme)); err != nil {
		return err
	}
	return s.mutate("snapshot", func(cur *Preferences) { *cur = p })
}

// mutate applies fn, writes through to disk and broadcasts. The in-memory
// change is kept even if the write fails.
func (s *Store) mutate(kind string, fn func(*Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.prefs)
	err := s.flush()
	s.broadcast(Event{Type: kind, Prefs: s.prefs, Resolved: s.resolveLocked()})
	return err
}

// Subscribe returns a channel that receives events, starting with a
// snapshot. bufSize controls the channel buffer; a slow consumer loses the
// oldest pending events, never the latest.
func (s *Store) Subscribe(bufSize int) (int, <-chan Event) {
	if bufSize < 1 {
		bufSize = 1
	}
	ch := make(chan Event, bufSize)
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	ch <- Event{Type: "snapshot", Prefs: s.prefs, Resolved: s.resolveLocked()}
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// broadcast delivers e to every subscriber without blocking. A full buffer
// gives up its oldest event. Callers hold s.mu, which orders events.
func (s *Store) broadcast(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// load reads the JSON file into memory.
func (s *Store) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return // first run
	}
	var loaded Preferences
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn("loading preferences file", "error", err)
		return
	}
	if _, err := ParseTheme(string(loaded.Theme)); err != nil {
		s.log.Warn("ignoring persisted theme", "theme", loaded.Theme)
		loaded.Theme = s.prefs.Theme
	}
	s.prefs = loaded
	s.log.Debug("loaded preferences", "theme", loaded.Theme, "sidebar_collapsed", loaded.SidebarCollapsed)
}

// flush writes the in-memory state to disk. Must be called with mu held.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling preferences: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}

// ResolveSystem picks light or dark from FINSCOPE_THEME, then from the
// background colour index in COLORFGBG ("fg;bg"). Dark is the fallback.
func ResolveSystem(getenv func(string) string) Theme {
	switch Theme(strings.ToLower(getenv("FINSCOPE_THEME"))) {
	case ThemeLight:
		return ThemeLight
	case ThemeDark:
		return ThemeDark
	}
	if v := getenv("COLORFGBG"); v != "" {
		parts := strings.Split(v, ";")
		if bg, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if bg == 7 || bg >= 9 {
				return ThemeLight
			}
			return ThemeDark
		}
	}
	return ThemeDark
}
