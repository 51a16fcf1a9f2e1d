// Package config loads layered settings: an optional YAML file, then
// ANJOMAN_ environment variables, then defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/soheil-star01/anjoman/internal/core/domain"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "anjoman.yaml"

const envPrefix = "ANJOMAN_"

type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Storage   StorageConfig   `koanf:"storage"`
	Session   SessionConfig   `koanf:"session"`
	Segmenter SegmenterConfig `koanf:"segmenter"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	// Credentials seeds provider keys; values may reference ${VAR}.
	Credentials map[string]string `koanf:"credentials"`
}

type BackendConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"` // Duration string like "90s"; empty means no client bound
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type SessionConfig struct {
	DefaultBudget    float64 `koanf:"default_budget"`
	ModelPreference  string  `koanf:"model_preference"`
	WarningThreshold float64 `koanf:"warning_threshold"`
}

type SegmenterConfig struct {
	MinFragmentLength int `koanf:"min_fragment_length"`
	MinPreambleLength int `koanf:"min_preamble_length"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"backend.base_url":              "http://localhost:8000",
	"backend.timeout":               "",
	"storage.type":                  "sqlite",
	"storage.sqlite.path":           "~/.anjoman/settings.db",
	"session.default_budget":        5.0,
	"session.model_preference":      "balanced",
	"session.warning_threshold":     0.8,
	"segmenter.min_fragment_length": 15,
	"segmenter.min_preamble_length": 20,
	"log.level":                     "warn",
	"log.format":                    "text",
	"telemetry.enabled":             false,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration. An empty path means DefaultFile, which may be
// absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// Environment variables override the file. "__" separates nesting levels.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for p, key := range cfg.Credentials {
		cfg.Credentials[p] = substituteEnvVars(key)
	}
	cfg.Storage.SQLite.Path = expandHome(cfg.Storage.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage.type %q", c.Storage.Type)
	}
	if c.Session.DefaultBudget <= 0 {
		return fmt.Errorf("config: session.default_budget must be positive, got %v", c.Session.DefaultBudget)
	}
	if t := c.Session.WarningThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("config: session.warning_threshold must be in (0, 1), got %v", t)
	}
	if _, err := domain.ParseModelPreference(c.Session.ModelPreference); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Backend.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if _, err := c.ProviderCredentials(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses backend.timeout. Empty yields zero.
func (b BackendConfig) TimeoutDuration() (time.Duration, error) {
	if b.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid backend.timeout %q: %w", b.Timeout, err)
	}
	return d, nil
}

// SlogLevel parses log.level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: invalid log.level %q", l.Level)
	}
	return level, nil
}

// ProviderCredentials converts the credentials section, rejecting unknown providers.
func (c *Config) ProviderCredentials() (domain.Credentials, error) {
	out := make(domain.Credentials, len(c.Credentials))
	for name, key := range c.Credentials {
		p, err := domain.ParseProvider(name)
		if err != nil {
			return nil, fmt.Errorf("config: credentials: %w", err)
		}
		out[p] = key
	}
	return out.Filtered(), nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
