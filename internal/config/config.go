package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrNotConfigured is returned when the remote project is not set up.
var ErrNotConfigured = errors.New("supabase url and key are not configured")

// Config holds all finsync configuration.
type Config struct {
	Supabase   SupabaseConfig   `toml:"supabase"`
	Sync       SyncConfig       `toml:"sync"`
	General    GeneralConfig    `toml:"general"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// SupabaseConfig locates the remote project and the signed-in user.
type SupabaseConfig struct {
	URL         string `toml:"url"`
	AnonKey     string `toml:"anon_key"`
	AccessToken string `toml:"access_token,omitempty"`
	UserID      string `toml:"user_id,omitempty"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	GuardWindowMS          int  `toml:"guard_window_ms"`
	DebounceMS             int  `toml:"debounce_ms"`
	InactivityThresholdSec int  `toml:"inactivity_threshold_sec"`
	PollIntervalSec        int  `toml:"poll_interval_sec"`
	FlushIntervalSec       int  `toml:"flush_interval_sec"`
	Realtime               bool `toml:"realtime"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	BaseCurrency string `toml:"base_currency"`
	CachePath    string `toml:"cache_path,omitempty"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Sync: SyncConfig{
			GuardWindowMS:          2000,
			DebounceMS:             400,
			InactivityThresholdSec: 30,
			PollIntervalSec:        300,
			FlushIntervalSec:       15,
			Realtime:               true,
		},
		General: GeneralConfig{
			BaseCurrency: "USD",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// GuardWindow returns the mutation guard window.
func (s SyncConfig) GuardWindow() time.Duration {
	return time.Duration(s.GuardWindowMS) * time.Millisecond
}

// Debounce returns the notification debounce window.
func (s SyncConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// InactivityThreshold returns the full-refresh threshold.
func (s SyncConfig) InactivityThreshold() time.Duration {
	return time.Duration(s.InactivityThresholdSec) * time.Second
}

// PollInterval returns the background poll interval.
func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// FlushInterval returns how often the daemon persists the cache.
func (s SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalSec) * time.Second
}

// Validate reports whether the remote project is configured.
func (c Config) Validate() error {
	if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
		return ErrNotConfigured
	}
	return nil
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "finsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "finsync")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, then .env files, then environment
// overrides. A missing config file yields defaults.
func Load() (Config, error) {
	loadDotEnv(".env", filepath.Join(ConfigDir(), ".env"))
	return LoadFile(ConfigPath())
}

// LoadFile reads path and applies environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadDotEnv loads the files that exist. Variables already set in the
// environment win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Supabase.URL, "SUPABASE_URL")
	set(&cfg.Supabase.AnonKey, "SUPABASE_KEY")
	set(&cfg.Supabase.AccessToken, "SUPABASE_ACCESS_TOKEN")
	set(&cfg.Supabase.UserID, "FINSYNC_USER_ID")
	set(&cfg.General.BaseCurrency, "FINSYNC_BASE_CURRENCY")
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes cfg to path, creating its directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return toml.NewEncoder(f).Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
