// Package config loads runtime settings from the environment with an
// optional YAML file layered underneath.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/h0rv/issuepulse/internal/domain"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the variable pointing at a YAML config file.
const EnvConfigFile = "PULSE_CONFIG"

// Config holds all runtime settings. Environment variables win over the
// YAML file, which wins over defaults.
type Config struct {
	AppEnv    string `yaml:"env"`
	TZ        string `yaml:"timezone"`
	UserID    string `yaml:"user_id"`
	Filter    string `yaml:"filter"`
	Fixture   string `yaml:"fixture"`
	SeenDB    string `yaml:"seen_db"`
	TokenFile string `yaml:"token_file"`

	BackendURL   string        `yaml:"backend_url"`
	ProjectURL   string        `yaml:"project_url"` // "{id}" is replaced by the project ID
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	NotifyCron  string `yaml:"notify_cron"`
	NotifyWidth int    `yaml:"notify_width"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		AppEnv:       "dev",
		TZ:           "Local",
		Filter:       domain.CurrentMonth.String(),
		SeenDB:       defaultSeenDB(),
		PollInterval: 30 * time.Second,
		HTTPTimeout:  15 * time.Second,
		NotifyCron:   "0 9 * * *",
		NotifyWidth:  72,
	}
}

func defaultSeenDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pulse-seen.db"
	}
	return filepath.Join(dir, "pulse", "seen.db")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoi(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func dur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Load builds the configuration. A missing PULSE_CONFIG is fine; an
// unreadable or malformed file is an error.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.AppEnv = getenv("PULSE_ENV", cfg.AppEnv)
	cfg.TZ = getenv("PULSE_TZ", cfg.TZ)
	cfg.UserID = getenv("PULSE_USER_ID", cfg.UserID)
	cfg.Filter = getenv("PULSE_FILTER", cfg.Filter)
	cfg.Fixture = getenv("PULSE_FIXTURE", cfg.Fixture)
	cfg.SeenDB = getenv("PULSE_SEEN_DB", cfg.SeenDB)
	cfg.TokenFile = getenv("PULSE_TOKEN_FILE", cfg.TokenFile)
	cfg.BackendURL = getenv("PULSE_BACKEND_URL", cfg.BackendURL)
	cfg.ProjectURL = getenv("PULSE_PROJECT_URL", cfg.ProjectURL)
	cfg.PollInterval = dur("PULSE_POLL_INTERVAL", cfg.PollInterval)
	cfg.HTTPTimeout = dur("PULSE_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.NotifyCron = getenv("PULSE_NOTIFY_CRON", cfg.NotifyCron)
	cfg.NotifyWidth = atoi("PULSE_NOTIFY_WIDTH", cfg.NotifyWidth)

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	if _, err := domain.ParseFilter(cfg.Filter); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Location resolves TZ.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.TZ, err)
	}
	return loc, nil
}

// DefaultFilter returns the parsed Filter setting.
func (c Config) DefaultFilter() domain.Filter {
	f, err := domain.ParseFilter(c.Filter)
	if err != nil {
		return domain.CurrentMonth
	}
	return f
}
