package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intake.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
metrics = false
schema = "clinic.yaml"

[store]
backend = "redis"
addr = "redis:6379"
ttl = "2h"
lock_ttl = "10s"

[provider]
backend = "sqlite"
path = "patients.db"
lookup_timeout = "90s"

[cache]
enabled = true
capacity = 64
ttl = "1m"

[encryption]
mask_slots = ["^name$", "phone"]

[log]
level = "debug"
json = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Server.Metrics)
	assert.Equal(t, "clinic.yaml", cfg.Server.Schema)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Addr)
	assert.Equal(t, "intake:", cfg.Store.Prefix, "unset keys keep their default")
	assert.Equal(t, 2*time.Hour, cfg.Store.TTL.Duration)
	assert.Equal(t, 10*time.Second, cfg.Store.LockTTL.Duration)
	assert.Equal(t, ProviderSQLite, cfg.Provider.Backend)
	assert.Equal(t, "patients.db", cfg.Provider.Path)
	assert.Equal(t, 90*time.Second, cfg.Provider.LookupTimeout.Duration)
	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.Duration)
	assert.Equal(t, []string{"^name$", "phone"}, cfg.Encryption.MaskSlots)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090
[store]
backend = "memory"
`)
	t.Setenv("INTAKE_PORT", "7000")
	t.Setenv("INTAKE_STORE", "redis")
	t.Setenv("INTAKE_SESSION_TTL", "15m")
	t.Setenv("INTAKE_MASK_SLOTS", " name , , phone")
	t.Setenv("INTAKE_LOG_JSON", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Store.TTL.Duration)
	assert.Equal(t, []string{"name", "phone"}, cfg.Encryption.MaskSlots)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad toml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[server\nport = 1"))
		assert.ErrorContains(t, err, "failed to parse TOML")
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[cache]\nttl = \"soon\""))
		assert.Error(t, err)
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("INTAKE_PORT", "eighty")
		t.Setenv("INTAKE_CACHE", "maybe")
		_, err := Load("")
		assert.ErrorContains(t, err, "INTAKE_PORT")
		assert.ErrorContains(t, err, "INTAKE_CACHE")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown store", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"unknown provider", func(c *Config) { c.Provider.Backend = "ldap" }, "provider.backend"},
		{"sqlite without path", func(c *Config) { c.Provider.Backend = ProviderSQLite }, "provider.path"},
		{"port range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"cache capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"lookup timeout", func(c *Config) { c.Provider.LookupTimeout.Duration = -time.Second }, "provider.lookup_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Cache.Enabled = false
	cfg.Cache.Capacity = 0
	assert.NoError(t, cfg.Validate())
}
