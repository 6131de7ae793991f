// Package config loads formstage settings from a YAML file, .env files and
// FORMSTAGE_* environment variables, in increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/davidroman0O/formstage"
	"github.com/davidroman0O/formstage/store"
)

// Supported storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// EnvConfigPath names the variable holding the config file path when none is given.
const EnvConfigPath = "FORMSTAGE_CONFIG"

type Config struct {
	Backend           string                   `yaml:"backend"`
	SQLite            SQLiteConfig             `yaml:"sqlite"`
	Redis             RedisConfig              `yaml:"redis"`
	Log               LogConfig                `yaml:"log"`
	Publisher         string                   `yaml:"publisher"`
	AuditLog          string                   `yaml:"auditLog"`
	DefaultCategories []formstage.CategorySeed `yaml:"defaultCategories"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{Path: "./data/formstage.db"},
		Redis:   RedisConfig{URL: "redis://localhost:6379/0", Prefix: "formstage:"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or $FORMSTAGE_CONFIG),
// then environment variables. .env.local and .env are loaded first without overriding
// variables that are already set.
func Load(path string) (Config, error) {
	LoadDotEnv()

	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files with priority: .env.local > .env
// godotenv.Load does not overwrite variables that are already set,
// so the process environment always wins.
// Returns the files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

func (c *Config) applyEnv() {
	c.Backend = getenv("FORMSTAGE_BACKEND", c.Backend)
	c.SQLite.Path = getenv("FORMSTAGE_SQLITE_PATH", c.SQLite.Path)
	c.Redis.URL = getenv("FORMSTAGE_REDIS_URL", c.Redis.URL)
	c.Redis.Prefix = getenv("FORMSTAGE_REDIS_PREFIX", c.Redis.Prefix)
	c.Log.Level = getenv("FORMSTAGE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("FORMSTAGE_LOG_FORMAT", c.Log.Format)
	c.Publisher = getenv("FORMSTAGE_PUBLISHER", c.Publisher)
	c.AuditLog = getenv("FORMSTAGE_AUDIT_LOG", c.AuditLog)
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			errs = append(errs, errors.New("sqlite.path is required for the sqlite backend"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.URL) == "" {
			errs = append(errs, errors.New("redis.url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want memory, sqlite or redis)", c.Backend))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want console or json)", c.Log.Format))
	}

	for i, seed := range c.DefaultCategories {
		if strings.TrimSpace(seed.Name) == "" {
			errs = append(errs, fmt.Errorf("defaultCategories[%d].name is required", i))
		}
	}
	return errors.Join(errs...)
}

// OpenBackend opens the configured storage backend.
func (c Config) OpenBackend(ctx context.Context) (store.Backend, error) {
	switch strings.ToLower(c.Backend) {
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendSQLite:
		s, err := store.OpenSQLite(ctx, c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := store.NewRedisStore(c.Redis.URL, c.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
