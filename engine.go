package intake

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/internal/runtime"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/schema"
)

// Engine is the high-level entry point of the library.
// It wraps the internal resolver and planner around one immutable schema and
// works on sessions owned by the caller.
type Engine struct {
	model    *schema.Model
	resolver *runtime.Resolver
	planner  *runtime.Planner
	provider ports.RecordProvider
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	now      func() time.Time
	Name     string

	lookupTimeout time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProvider sets the record provider used by TriggerLookup.
func WithProvider(p ports.RecordProvider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithClock sets the time source for computed date rules and session timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLookupTimeout sets how long a lookup may stay in flight before a new
// lookup treats it as abandoned. It should exceed the longest provider call.
func WithLookupTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lookupTimeout = d
	}
}

// New initializes an Engine for a loaded schema.
func New(m *schema.Model, opts ...Option) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("schema model is required")
	}
	eng := &Engine{model: m, now: time.Now, lookupTimeout: runtime.DefaultLookupTimeout}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("schema", eng.Name)
	}

	eng.resolver = runtime.NewResolver(m,
		runtime.WithClock(eng.now),
		runtime.WithHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithLookupTimeout(eng.lookupTimeout),
	)
	eng.planner = runtime.NewPlanner(eng.resolver)
	return eng, nil
}

// Load reads a YAML or JSON schema file and initializes an Engine for it.
func Load(path string, opts ...Option) (*Engine, error) {
	m, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return New(m, append([]Option{func(e *Engine) { e.Name = name }}, opts...)...)
}

// Model returns the schema the engine was built for.
func (e *Engine) Model() *schema.Model {
	return e.model
}

// Start creates a clean session positioned at the root intent.
func (e *Engine) Start(sessionID string) *domain.Session {
	sess := domain.NewSession(sessionID, e.model.RootIntent)
	now := e.now().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now
	e.logger.Debug("session started", "session_id", sessionID, "intent", e.model.RootIntent)
	return sess
}

// Ingest resolves one slot from user input. A nil input asks the engine to
// derive a computed slot or map an api slot from the cached record.
// On error the session is left unchanged.
func (e *Engine) Ingest(ctx context.Context, sess *domain.Session, slot string, input any) (domain.Resolution, error) {
	res, err := e.resolver.Resolve(ctx, sess, slot, input)
	if err != nil {
		e.logger.Debug("ingest rejected", "session_id", sess.ID, "slot", slot, "err", err)
		return res, err
	}
	return res, nil
}

// TriggerLookup runs the single record lookup of the session through the
// configured provider. A second call returns the cached outcome without
// calling the provider again.
func (e *Engine) TriggerLookup(ctx context.Context, sess *domain.Session) (domain.LookupResult, error) {
	if e.provider == nil {
		return domain.LookupResult{}, domain.ErrNoProvider
	}
	req, err := e.resolver.BeginLookup(sess)
	if err != nil {
		return domain.LookupResult{}, err
	}
	if req.Cached {
		return e.resolver.CompleteLookup(ctx, sess, nil, nil)
	}
	rec, lookupErr := e.fetch(ctx, sess.ID, req)
	return e.resolver.CompleteLookup(ctx, sess, rec, lookupErr)
}

// SkipLookup gives up on the record lookup, usually after a *domain.LookupError.
// The session continues as if no record was found and the api slots are asked
// from the user. It needs no provider.
func (e *Engine) SkipLookup(ctx context.Context, sess *domain.Session) (domain.LookupResult, error) {
	return e.resolver.AbandonLookup(sess)
}

// fetch calls the provider and reports the call through the OnLookup hook.
func (e *Engine) fetch(ctx context.Context, sessionID string, req runtime.LookupRequest) (domain.Record, error) {
	start := e.now()
	rec, err := e.provider.Lookup(ctx, req.KeySlot, req.Key)
	elapsed := e.now().Sub(start)

	found := err == nil && rec != nil
	e.logger.Debug("record lookup", "session_id", sessionID, "slot", req.KeySlot, "found", found, "duration", elapsed, "err", err)
	if e.hooks.OnLookup != nil {
		e.hooks.OnLookup(ctx, &domain.LookupEvent{
			EventBase: domain.EventBase{
				Timestamp: e.now().UTC(),
				Type:      domain.EventLookup,
				SessionID: sessionID,
			},
			KeySlot:  req.KeySlot,
			Found:    found,
			Err:      err,
			Duration: elapsed,
		})
	}
	return rec, err
}

// NextAction decides the next step. A Descend is applied to the session
// before it is returned.
func (e *Engine) NextAction(ctx context.Context, sess *domain.Session) (domain.Action, error) {
	return e.planner.NextAction(ctx, sess)
}

// Snapshot returns a read-only view of the session. The session is not modified.
func (e *Engine) Snapshot(ctx context.Context, sess *domain.Session) domain.DialogueState {
	return e.planner.Snapshot(ctx, sess)
}
