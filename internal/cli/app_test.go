package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/internal/config"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/observability"
)

func build(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := Build(context.Background(), cfg, BuildOptions{LogWriter: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// identify answers the root slots that make up the lookup key.
func identify(t *testing.T, app *App) string {
	t.Helper()
	ctx := context.Background()
	step, err := app.Service.Create(ctx)
	require.NoError(t, err)
	id := step.SessionID
	for _, kv := range [][2]string{
		{"patient_name", "Jane Roe"},
		{"patient_id", "13345"},
		{"patient_dob", "2005-06-15"},
	} {
		_, err := app.Service.Ingest(ctx, id, kv[0], kv[1])
		require.NoError(t, err, kv[0])
	}
	return id
}

func TestBuild_Defaults(t *testing.T) {
	app := build(t, config.Default())
	ctx := context.Background()

	id := identify(t, app)
	step, err := app.Service.Lookup(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, step.Lookup)
	assert.True(t, step.Lookup.Found)
	assert.Equal(t, "Returning Patient", step.Action.Child)

	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.Lookups().WithLabelValues(observability.OutcomeFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(app.Metrics.IntentEntered().WithLabelValues("Returning Patient")))
}

func TestBuild_NoProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.Backend = config.ProviderNone
	app := build(t, cfg)

	id := identify(t, app)
	_, err := app.Service.Lookup(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNoProvider)
}

func TestBuild_RedisSQLiteAudit(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Addr = mr.Addr()
	cfg.Provider.Backend = config.ProviderSQLite
	cfg.Provider.Path = filepath.Join(t.TempDir(), "patients.db")
	cfg.Encryption.MaskSlots = []string{"^patient_name$"}
	app := build(t, cfg)
	ctx := context.Background()

	id := identify(t, app)
	step, err := app.Service.Lookup(ctx, id)
	require.NoError(t, err)
	assert.True(t, step.Lookup.Found, "record seeded into sqlite")

	live, err := mr.Get("intake:session:" + id)
	require.NoError(t, err)
	assert.Contains(t, live, "Jane Roe")

	audit, err := mr.Get("intake:audit:" + id)
	require.NoError(t, err)
	assert.NotContains(t, audit, "Jane Roe")
	assert.Contains(t, audit, "***")

	ids, err := app.Service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestBuild_Encryption(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store.Backend = config.StoreRedis
	cfg.Store.Addr = mr.Addr()
	cfg.Encryption.Key = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	app := build(t, cfg)
	ctx := context.Background()

	id := identify(t, app)

	raw, err := mr.Get("intake:session:" + id)
	require.NoError(t, err)
	assert.NotContains(t, raw, "Jane Roe")

	st, err := app.Service.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", st.Slots["patient_name"].Value)
}

func TestBuild_Errors(t *testing.T) {
	shortKey := base64.StdEncoding.EncodeToString([]byte("short"))

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"schema missing", func(c *config.Config) { c.Server.Schema = filepath.Join(t.TempDir(), "none.yaml") }, "load schema"},
		{"log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"key not base64", func(c *config.Config) { c.Encryption.Key = "%%%" }, "encryption.key"},
		{"key too short", func(c *config.Config) { c.Encryption.Key = shortKey }, "32 bytes"},
		{"mask pattern", func(c *config.Config) { c.Encryption.MaskSlots = []string{"("} }, "encryption.mask_slots"},
		{"sqlite opened before bad key", func(c *config.Config) {
			c.Provider.Backend = config.ProviderSQLite
			c.Provider.Path = filepath.Join(t.TempDir(), "records.db")
			c.Encryption.Key = shortKey
		}, "32 bytes"},
		{"redis down", func(c *config.Config) {
			c.Store.Backend = config.StoreRedis
			c.Store.Addr = "127.0.0.1:1"
		}, "failed to connect to redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			app, err := Build(context.Background(), cfg, BuildOptions{LogWriter: io.Discard})
			assert.Nil(t, app)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApp_CloseNil(t *testing.T) {
	var app *App
	assert.NoError(t, app.Close())
}

func TestBuild_FileStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = config.StoreFile
	cfg.Store.Dir = dir
	cfg.Encryption.MaskSlots = []string{"^patient_(name|id)$"}
	app := build(t, cfg)
	ctx := context.Background()

	id := identify(t, app)

	live, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(live), "Jane Roe")

	audit, err := os.ReadFile(filepath.Join(dir, "audit", id+".json"))
	require.NoError(t, err)
	assert.NotContains(t, string(audit), "Jane Roe")
	assert.NotContains(t, string(audit), "13345")

	ids, err := app.Service.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids, "audit directory is not listed")
}
