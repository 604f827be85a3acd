package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"finscope/internal/menu"
	"finscope/internal/request"
)

// DefaultPath is used when neither --config nor FINSCOPE_CONFIG is set.
const DefaultPath = "config/finscope.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for finscope.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	SEC      SEC      `yaml:"sec"`
	News     News     `yaml:"news"`
	Logging  Logging  `yaml:"logging"`
	Requests Requests `yaml:"requests"`
	UI       UI       `yaml:"ui"`

	// Menu is resolved from UI.Menu during Load.
	Menu []menu.Entry `yaml:"-"`
	// Policy is parsed from Requests.Policy during Load.
	Policy request.Policy `yaml:"-"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	PrefsPath  string `yaml:"prefs_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	GRPCPort       int           `yaml:"grpc_port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// Addr returns host:port for the HTTP listener.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns host:grpc_port for the gRPC listener.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// Alpaca holds credentials and endpoints for the Alpaca APIs.
type Alpaca struct {
	APIKey          string        `yaml:"api_key"`
	APISecret       string        `yaml:"api_secret"`
	BaseURL         string        `yaml:"base_url"`
	DataURL         string        `yaml:"data_url"`
	Feed            string        `yaml:"feed"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// SEC configures the fails-to-deliver archive source.
type SEC struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// News selects article sources.
type News struct {
	Sources []string `yaml:"sources"`
	Archive bool     `yaml:"archive"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Requests configures request hooks.
type Requests struct {
	Policy string `yaml:"policy"`
}

// UI configures the sidebar, theme and remote API used by the terminal UI.
type UI struct {
	Menu      []string `yaml:"menu"`
	Theme     string   `yaml:"theme"`
	RemoteURL string   `yaml:"remote_url"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a configuration with every default applied and resolved.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := cfg.resolve(); err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

// Load reads the YAML configuration file at the given path, fills in
// defaults, applies environment variable overrides and resolves derived
// values (menu entries, request policy).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default (with environment
// overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	cfg = &Config{}
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = cfg.Storage.DataDir + "/finscope.db"
	}
	if cfg.Storage.PrefsPath == "" {
		cfg.Storage.PrefsPath = cfg.Storage.DataDir + "/preferences.json"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 5001
	}
	if cfg.Server.CORSOrigin == "" {
		cfg.Server.CORSOrigin = "*"
	}
	if cfg.Server.HealthInterval == 0 {
		cfg.Server.HealthInterval = 30 * time.Second
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.DataURL == "" {
		cfg.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Alpaca.RateLimitPerMin == 0 {
		cfg.Alpaca.RateLimitPerMin = 200
	}
	if cfg.Alpaca.RetryAttempts == 0 {
		cfg.Alpaca.RetryAttempts = 3
	}
	if cfg.Alpaca.RetryDelay == 0 {
		cfg.Alpaca.RetryDelay = 500 * time.Millisecond
	}
	if cfg.SEC.BaseURL == "" {
		cfg.SEC.BaseURL = "https://www.sec.gov/files/data/fails-deliver-data"
	}
	if cfg.SEC.UserAgent == "" {
		cfg.SEC.UserAgent = "finscope research contact@example.com"
	}
	if cfg.SEC.Timeout == 0 {
		cfg.SEC.Timeout = 60 * time.Second
	}
	if len(cfg.News.Sources) == 0 {
		cfg.News.Sources = []string{"alpaca", "google"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = "system"
	}
	if cfg.UI.RemoteURL == "" {
		cfg.UI.RemoteURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
}

func (cfg *Config) resolve() error {
	entries, err := menu.Resolve(cfg.UI.Menu)
	if err != nil {
		return err
	}
	cfg.Menu = entries

	p, ok := request.ParsePolicy(cfg.Requests.Policy)
	if !ok {
		return fmt.Errorf("unknown request policy %q", cfg.Requests.Policy)
	}
	cfg.Policy = p

	switch cfg.UI.Theme {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("unknown theme %q", cfg.UI.Theme)
	}
	for _, src := range cfg.News.Sources {
		switch src {
		case "alpaca", "google", "globenewswire":
		default:
			return fmt.Errorf("unknown news source %q", src)
		}
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("FINSCOPE_PREFS_PATH"); v != "" {
		cfg.Storage.PrefsPath = v
	}

	if v := os.Getenv("FINSCOPE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("FINSCOPE_PORT")); err == nil && v > 0 {
		cfg.Server.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("FINSCOPE_GRPC_PORT")); err == nil && v > 0 {
		cfg.Server.GRPCPort = v
	}
	if v := os.Getenv("FINSCOPE_REMOTE_URL"); v != "" {
		cfg.UI.RemoteURL = v
	}
	if v := os.Getenv("FINSCOPE_POLICY"); v != "" {
		cfg.Requests.Policy = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("SEC_USER_AGENT"); v != "" {
		cfg.SEC.UserAgent = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Standard Alpaca env vars (canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
