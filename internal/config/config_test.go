package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finscope/internal/menu"
	"finscope/internal/request"
)

var overrideVars = []string{
	"DATA_DIR", "SQLITE_PATH", "FINSCOPE_PREFS_PATH", "FINSCOPE_HOST", "FINSCOPE_PORT",
	"FINSCOPE_GRPC_PORT", "FINSCOPE_REMOTE_URL", "FINSCOPE_POLICY", "ALPACA_BASE_URL",
	"ALPACA_DATA_URL", "SEC_USER_AGENT", "LOG_LEVEL", "LOG_FORMAT", "APCA_API_KEY_ID",
	"APCA_API_SECRET_KEY",
}

// clearEnv blanks every override variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finscope.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/finscope/data"
  sqlite_path: "/tmp/finscope/finscope.db"
server:
  host: "0.0.0.0"
  port: 8080
  grpc_port: 9090
  health_interval: 10s
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "sip"
  rate_limit_per_min: 100
sec:
  user_agent: "tests tests@example.com"
news:
  sources: [alpaca, globenewswire]
logging:
  level: "debug"
  format: "text"
requests:
  policy: serialized
ui:
  menu: [dashboard, news]
  theme: dark
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/finscope/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/finscope/data")
	}
	if cfg.Storage.PrefsPath != "/tmp/finscope/data/preferences.json" {
		t.Errorf("Storage.PrefsPath = %q", cfg.Storage.PrefsPath)
	}

	// -- Server --
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "0.0.0.0:8080")
	}
	if cfg.Server.GRPCAddr() != "0.0.0.0:9090" {
		t.Errorf("Server.GRPCAddr() = %q", cfg.Server.GRPCAddr())
	}
	if cfg.Server.HealthInterval != 10*time.Second {
		t.Errorf("Server.HealthInterval = %v, want 10s", cfg.Server.HealthInterval)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" || cfg.Alpaca.Feed != "sip" || cfg.Alpaca.RateLimitPerMin != 100 {
		t.Errorf("Alpaca = %+v", cfg.Alpaca)
	}
	if cfg.Alpaca.RetryAttempts != 3 {
		t.Errorf("Alpaca.RetryAttempts = %d, want default 3", cfg.Alpaca.RetryAttempts)
	}

	// -- Resolved --
	if cfg.Policy != request.Serialized {
		t.Errorf("Policy = %v, want serialized", cfg.Policy)
	}
	if len(cfg.Menu) != 2 || cfg.Menu[0].Item != menu.Dashboard || cfg.Menu[1].Icon != menu.IconNewspaper {
		t.Errorf("Menu = %+v", cfg.Menu)
	}
	if cfg.Logging.Format != "text" || cfg.UI.Theme != "dark" {
		t.Errorf("Logging/UI = %+v %+v", cfg.Logging, cfg.UI)
	}
	if cfg.UI.RemoteURL != "http://0.0.0.0:8080" {
		t.Errorf("UI.RemoteURL = %q", cfg.UI.RemoteURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "file-key"
`)
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "env-secret")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("FINSCOPE_PORT", "7000")
	t.Setenv("FINSCOPE_POLICY", "last-settled-wins")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "env-key" || cfg.Alpaca.APISecret != "env-secret" {
		t.Errorf("Alpaca credentials = %q/%q", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}
	if cfg.Storage.DataDir != "/env/data" || cfg.Storage.SQLitePath != "/env/data/finscope.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Policy != request.LastSettledWins {
		t.Errorf("Policy = %v, want last-settled-wins", cfg.Policy)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"unknown menu item":   "ui:\n  menu: [dashboard, portfolio]\n",
		"duplicate menu item": "ui:\n  menu: [news, news]\n",
		"unknown request":     "requests:\n  policy: fastest\n",
		"unknown theme":       "ui:\n  theme: neon\n",
		"unknown news source": "news:\n  sources: [reddit]\n",
	}
	for want, content := range cases {
		_, err := Load(writeConfig(t, content))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("Load(%q) error = %v, want containing %q", content, err, want)
		}
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("FINSCOPE_HOST", "10.0.0.1")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Server.Host != "10.0.0.1" || cfg.Server.Port != 5000 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if len(cfg.Menu) != len(menu.DefaultOrder) {
		t.Errorf("Menu has %d entries, want %d", len(cfg.Menu), len(menu.DefaultOrder))
	}
	if cfg.Policy != request.LatestWins {
		t.Errorf("Policy = %v, want latest-wins", cfg.Policy)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Alpaca.DataURL != "https://data.alpaca.markets" {
		t.Errorf("Alpaca.DataURL = %q", cfg.Alpaca.DataURL)
	}
	if cfg.SEC.UserAgent == "" || cfg.SEC.Timeout != time.Minute {
		t.Errorf("SEC = %+v", cfg.SEC)
	}
	if len(cfg.News.Sources) != 2 {
		t.Errorf("News.Sources = %v", cfg.News.Sources)
	}
}
