// Package cli assembles an intake application from configuration: schema,
// record provider, session store and observability. The cobra commands in
// cmd/intake are thin wrappers around it.
package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/config"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/adapters/cache"
	"github.com/aretw0/intake/pkg/adapters/file"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/adapters/redis"
	"github.com/aretw0/intake/pkg/adapters/sqlite"
	"github.com/aretw0/intake/pkg/demo"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/observability"
	"github.com/aretw0/intake/pkg/persistence/middleware"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/schema"
)

// App is a fully wired intake runtime.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Model    *schema.Model
	Engine   *intake.Engine
	Service  *intake.Service
	Store    ports.SessionStore
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	closers []func() error
}

// BuildOptions carries the per-command inputs that are not part of the config file.
type BuildOptions struct {
	// LogWriter receives logs. Defaults to stderr.
	LogWriter io.Writer
	// Debug forces debug logging and per-event lifecycle logs.
	Debug bool
}

// Build wires an App from cfg. Close must be called on success.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Logger, err = createLogger(cfg.Log, opts)
	if err != nil {
		return nil, err
	}

	app.Model, err = loadModel(cfg.Server.Schema)
	if err != nil {
		return nil, err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = observability.NewMetrics(app.Registry)

	hooks := app.Metrics.Hooks()
	if opts.Debug {
		hooks = hooks.Merge(observability.LogHooks(app.Logger))
	}
	engineOpts := []intake.Option{
		intake.WithLogger(app.Logger),
		intake.WithLifecycleHooks(hooks),
		intake.WithLookupTimeout(cfg.Provider.LookupTimeout.Duration),
	}

	provider, err := app.buildProvider(ctx)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		engineOpts = append(engineOpts, intake.WithProvider(provider))
	}

	app.Engine, err = intake.New(app.Model, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	store, locker, err := app.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = store

	svcOpts := []intake.ServiceOption{intake.WithServiceLogger(app.Logger)}
	if locker != nil {
		svcOpts = append(svcOpts, intake.WithDistributedLocker(locker, cfg.Store.LockTTL.Duration))
	}
	app.Service = intake.NewService(app.Engine, store, svcOpts...)

	app.Logger.Debug("application ready",
		"store", cfg.Store.Backend,
		"provider", cfg.Provider.Backend,
		"cache", cfg.Cache.Enabled,
	)
	return app, nil
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func createLogger(cfg config.LogConfig, opts BuildOptions) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	if opts.Debug {
		level = slog.LevelDebug
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	return logging.NewWithWriter(w, level, cfg.JSON), nil
}

// loadModel reads the schema at path, or the bundled demo schema when path is empty.
func loadModel(path string) (*schema.Model, error) {
	if path == "" {
		return demo.Schema()
	}
	m, err := schema.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	return m, nil
}

func (a *App) buildProvider(ctx context.Context) (ports.RecordProvider, error) {
	cfg := a.Config.Provider
	keySlot := a.Model.Lookup.KeySlot

	var seed map[string]domain.Record
	if cfg.Seed {
		var err error
		if seed, err = demo.Patients(); err != nil {
			return nil, err
		}
	}

	var provider ports.RecordProvider
	switch cfg.Backend {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderMemory:
		provider = memory.NewProvider(seed)
	case config.ProviderSQLite:
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if len(seed) > 0 {
			records := make([]domain.Record, 0, len(seed))
			for _, rec := range seed {
				records = append(records, rec)
			}
			if err := db.Seed(ctx, keySlot, records); err != nil {
				return nil, fmt.Errorf("seed %s: %w", cfg.Path, err)
			}
		}
		provider = db
	default:
		return nil, fmt.Errorf("unknown provider backend %q", cfg.Backend)
	}

	if a.Config.Cache.Enabled {
		cached, err := cache.New(provider, a.Config.Cache.Capacity, a.Config.Cache.TTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("record cache: %w", err)
		}
		a.closers = append(a.closers, func() error { cached.Close(); return nil })
		provider = cached
	}
	return provider, nil
}

func (a *App) buildStore(ctx context.Context) (ports.SessionStore, ports.DistributedLocker, error) {
	cfg := a.Config.Store

	var (
		base, audit ports.SessionStore
		locker      ports.DistributedLocker
	)
	switch cfg.Backend {
	case config.StoreMemory:
		base, audit = memory.NewStore(), memory.NewStore()
	case config.StoreFile:
		dir := cfg.Dir
		if dir == "" {
			dir = file.DefaultDir
		}
		base, audit = file.New(dir), file.New(filepath.Join(dir, "audit"))
	case config.StoreRedis:
		rs, err := redis.New(ctx, cfg.Addr, cfg.Password, cfg.DB, redis.WithPrefix(cfg.Prefix+"session:"), redis.WithTTL(cfg.TTL.Duration))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rs.Client().Close)
		base = rs
		audit = redis.NewFromClient(rs.Client(), redis.WithPrefix(cfg.Prefix+"audit:"))
		locker = redis.NewLocker(rs.Client(), cfg.Prefix+"lock:")
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	var outer, auditChain []middleware.Middleware

	if masks := a.Config.Encryption.MaskSlots; len(masks) > 0 {
		if err := checkPatterns(masks); err != nil {
			return nil, nil, err
		}
		auditChain = append(auditChain, middleware.NewPIIMiddleware(masks))
	}

	if a.Config.Encryption.Key != "" {
		enc, err := encryptionConfig(a.Config.Encryption)
		if err != nil {
			return nil, nil, err
		}
		auditChain = append(auditChain, middleware.NewEncryptionMiddleware(enc))
		outer = append(outer, middleware.NewEncryptionMiddleware(enc))
	}

	if len(a.Config.Encryption.MaskSlots) > 0 {
		outer = append([]middleware.Middleware{middleware.NewMirrorMiddleware(middleware.Chain(audit, auditChain...))}, outer...)
	}
	return middleware.Chain(base, outer...), locker, nil
}

func encryptionConfig(cfg config.EncryptionConfig) (middleware.EncryptionConfig, error) {
	decode := func(name, s string) ([]byte, error) {
		key, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%s: key must decode to 32 bytes, got %d", name, len(key))
		}
		return key, nil
	}

	active, err := decode("encryption.key", cfg.Key)
	if err != nil {
		return middleware.EncryptionConfig{}, err
	}
	out := middleware.EncryptionConfig{ActiveKey: active}
	for i, s := range cfg.FallbackKeys {
		key, err := decode(fmt.Sprintf("encryption.fallback_keys[%d]", i), s)
		if err != nil {
			return middleware.EncryptionConfig{}, err
		}
		out.FallbackKeys = append(out.FallbackKeys, key)
	}
	return out, nil
}

// checkPatterns compiles the mask patterns; the PII middleware panics on invalid ones.
func checkPatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("encryption.mask_slots: %w", err)
		}
	}
	return nil
}
