// Package config loads the intake service configuration from a TOML file,
// an optional .env file and INTAKE_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Provider backends.
const (
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
	ProviderNone   = "none"
)

type ServerConfig struct {
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
	Schema  string `toml:"schema"`
}

type StoreConfig struct {
	Backend  string   `toml:"backend"`
	Dir      string   `toml:"dir"` // file backend
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Prefix   string   `toml:"prefix"`
	TTL      Duration `toml:"ttl"`
	LockTTL  Duration `toml:"lock_ttl"`
}

type ProviderConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	// Seed loads the bundled sample patients into the backend.
	Seed bool `toml:"seed"`
	// LookupTimeout is how long an in-flight lookup blocks another one.
	LookupTimeout Duration `toml:"lookup_timeout"`
}

type CacheConfig struct {
	Enabled  bool     `toml:"enabled"`
	Capacity int      `toml:"capacity"`
	TTL      Duration `toml:"ttl"`
}

type EncryptionConfig struct {
	// Key is a base64 encoded 32 byte AES key. Empty disables encryption.
	Key          string   `toml:"key"`
	FallbackKeys []string `toml:"fallback_keys"`
	// MaskSlots lists slot name patterns masked before persistence.
	MaskSlots []string `toml:"mask_slots"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Provider   ProviderConfig   `toml:"provider"`
	Cache      CacheConfig      `toml:"cache"`
	Encryption EncryptionConfig `toml:"encryption"`
	Log        LogConfig        `toml:"log"`
}

// Duration decodes TOML strings such as "30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Metrics: true},
		Store: StoreConfig{
			Backend: StoreMemory,
			Addr:    "localhost:6379",
			Prefix:  "intake:",
			TTL:     Duration{24 * time.Hour},
			LockTTL: Duration{30 * time.Second},
		},
		Provider: ProviderConfig{Backend: ProviderMemory, Seed: true, LookupTimeout: Duration{time.Minute}},
		Cache:    CacheConfig{Enabled: true, Capacity: 1024, TTL: Duration{5 * time.Minute}},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults. An empty path skips the file.
// A .env file in the working directory is loaded when present; variables
// already set in the environment win over it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and numeric ranges.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreRedis:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	switch c.Provider.Backend {
	case ProviderMemory, ProviderNone:
	case ProviderSQLite:
		if c.Provider.Path == "" {
			return errors.New("provider.path: required for the sqlite backend")
		}
	default:
		return fmt.Errorf("provider.backend: unknown backend %q", c.Provider.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	if c.Provider.LookupTimeout.Duration < 0 {
		return errors.New("provider.lookup_timeout: must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Capacity <= 0 {
		return errors.New("cache.capacity: must be positive when the cache is enabled")
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(name); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok {
			*dst = splitList(v)
		}
	}

	num("INTAKE_PORT", &c.Server.Port)
	flag("INTAKE_METRICS", &c.Server.Metrics)
	str("INTAKE_SCHEMA", &c.Server.Schema)

	str("INTAKE_STORE", &c.Store.Backend)
	str("INTAKE_STORE_DIR", &c.Store.Dir)
	str("INTAKE_REDIS_ADDR", &c.Store.Addr)
	str("INTAKE_REDIS_PASSWORD", &c.Store.Password)
	num("INTAKE_REDIS_DB", &c.Store.DB)
	str("INTAKE_REDIS_PREFIX", &c.Store.Prefix)
	dur("INTAKE_SESSION_TTL", &c.Store.TTL)
	dur("INTAKE_LOCK_TTL", &c.Store.LockTTL)

	str("INTAKE_PROVIDER", &c.Provider.Backend)
	str("INTAKE_PROVIDER_PATH", &c.Provider.Path)
	flag("INTAKE_PROVIDER_SEED", &c.Provider.Seed)
	dur("INTAKE_LOOKUP_TIMEOUT", &c.Provider.LookupTimeout)

	flag("INTAKE_CACHE", &c.Cache.Enabled)
	num("INTAKE_CACHE_CAPACITY", &c.Cache.Capacity)
	dur("INTAKE_CACHE_TTL", &c.Cache.TTL)

	str("INTAKE_ENCRYPTION_KEY", &c.Encryption.Key)
	list("INTAKE_ENCRYPTION_FALLBACK_KEYS", &c.Encryption.FallbackKeys)
	list("INTAKE_MASK_SLOTS", &c.Encryption.MaskSlots)

	str("INTAKE_LOG_LEVEL", &c.Log.Level)
	flag("INTAKE_LOG_JSON", &c.Log.JSON)

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
