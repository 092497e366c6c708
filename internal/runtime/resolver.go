package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/schema"
)

// LookupRequest is the provider call prepared by BeginLookup.
type LookupRequest struct {
	KeySlot string
	Key     domain.Value
	// Cached is set when the session already holds an outcome; no call is needed.
	Cached bool
}

// Resolver turns user input, lookup records and compute rules into resolved slots.
// It holds no session state and is safe for concurrent use.
type Resolver struct {
	model  *schema.Model
	now    func() time.Time
	hooks  domain.LifecycleHooks
	logger *slog.Logger

	lookupTimeout time.Duration
}

// DefaultLookupTimeout is how long an in-flight mark blocks a new lookup.
const DefaultLookupTimeout = time.Minute

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock sets the time source used for computed date rules and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(r *Resolver) {
		r.hooks = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithLookupTimeout sets how old an in-flight lookup mark must be before
// BeginLookup treats the earlier call as abandoned. Zero disables expiry.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.lookupTimeout = d
	}
}

// NewResolver creates a resolver for the model.
func NewResolver(m *schema.Model, opts ...Option) *Resolver {
	r := &Resolver{
		model:         m,
		now:           time.Now,
		logger:        logging.NewNop(),
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model returns the schema the resolver works on.
func (r *Resolver) Model() *schema.Model {
	return r.model
}

// quiet returns a copy that fires no hooks, for previews on cloned sessions.
func (r *Resolver) quiet() *Resolver {
	cp := *r
	cp.hooks = domain.LifecycleHooks{}
	return &cp
}

// Relevance reports the dependency state of a slot visible from the active path.
func (r *Resolver) Relevance(sess *domain.Session, slot string) (Relevance, error) {
	s, ok := lookup(r.model, sess.ActivePath, slot)
	if !ok {
		return Irrelevant, fmt.Errorf("%w: %q", domain.ErrUnknownSlot, slot)
	}
	rel, _ := relevance(r.model, sess, s)
	return rel, nil
}

// Resolve resolves slot from input. Input is required for user slots and for
// api slots the completed lookup could not fill; it is rejected for computed slots.
func (r *Resolver) Resolve(ctx context.Context, sess *domain.Session, slot string, input any) (domain.Resolution, error) {
	s, ok := lookup(r.model, sess.ActivePath, slot)
	if !ok {
		return domain.Resolution{}, fmt.Errorf("%w: %q is not defined on %q", domain.ErrUnknownSlot, slot, sess.Current())
	}

	switch s.def.Source {
	case domain.SourceComputed:
		if input != nil {
			return domain.Resolution{}, fmt.Errorf("%w: %q is computed", domain.ErrNotIngestible, slot)
		}
		return r.derive(ctx, sess, s)

	case domain.SourceAPI:
		if input == nil {
			return r.resolveAPI(ctx, sess, s)
		}
		if sess.Lookup == nil {
			return domain.Resolution{}, fmt.Errorf("%w: %q is filled by the record lookup", domain.ErrNotIngestible, slot)
		}
	}

	if input == nil {
		return domain.Resolution{}, fmt.Errorf("%w: %q", domain.ErrMissingInput, slot)
	}
	return r.ingest(ctx, sess, s, input)
}

func (r *Resolver) ingest(ctx context.Context, sess *domain.Session, s scoped, input any) (domain.Resolution, error) {
	def := s.def
	if prev, ok := sess.Get(def.Name); ok {
		if v, err := Validate(def, input); err == nil && prev.Value.Equal(v) {
			return domain.Resolution{Slot: def.Name, Value: prev.Value, Source: prev.Source}, nil
		}
	}
	if err := r.checkRelevant(sess, s); err != nil {
		return domain.Resolution{}, err
	}

	v, err := Validate(def, input)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			r.fireValidationFailed(ctx, sess, s, verr.Message)
		}
		return domain.Resolution{}, err
	}

	sess.Turn++
	r.store(ctx, sess, s, v, domain.SourceUser)
	res := domain.Resolution{Slot: def.Name, Value: v, Source: domain.SourceUser, Changed: true}
	res.Invalidated = r.invalidate(sess, def.Name)
	if len(res.Invalidated) > 0 {
		r.logger.Debug("slots invalidated", "session_id", sess.ID, "slot", def.Name, "invalidated", res.Invalidated)
	}
	return res, nil
}

func (r *Resolver) checkRelevant(sess *domain.Session, s scoped) error {
	rel, blocker := relevance(r.model, sess, s)
	switch rel {
	case Irrelevant:
		return fmt.Errorf("%w: %q", domain.ErrSlotIrrelevant, s.def.Name)
	case Pending:
		return fmt.Errorf("%w: %q waits for %q", domain.ErrDependencyPending, s.def.Name, blocker.def.Name)
	}
	return nil
}

func (r *Resolver) derive(ctx context.Context, sess *domain.Session, s scoped) (domain.Resolution, error) {
	if err := r.checkRelevant(sess, s); err != nil {
		return domain.Resolution{}, err
	}
	v, missing, err := Compute(s.def, sess, Today(r.now()))
	if err != nil {
		return domain.Resolution{}, err
	}
	if missing != "" {
		return domain.Resolution{Slot: s.def.Name, Source: domain.SourceComputed, Deferred: true}, nil
	}
	if prev, ok := sess.Get(s.def.Name); ok && prev.Value.Equal(v) {
		return domain.Resolution{Slot: s.def.Name, Value: v, Source: domain.SourceComputed}, nil
	}
	r.store(ctx, sess, s, v, domain.SourceComputed)
	return domain.Resolution{
		Slot:        s.def.Name,
		Value:       v,
		Source:      domain.SourceComputed,
		Changed:     true,
		Invalidated: r.invalidate(sess, s.def.Name),
	}, nil
}

func (r *Resolver) resolveAPI(ctx context.Context, sess *domain.Session, s scoped) (domain.Resolution, error) {
	if prev, ok := sess.Get(s.def.Name); ok {
		return domain.Resolution{Slot: s.def.Name, Value: prev.Value, Source: prev.Source}, nil
	}
	if sess.Lookup == nil {
		return domain.Resolution{Slot: s.def.Name, Source: domain.SourceAPI, Deferred: true}, nil
	}
	r.ApplyRecord(ctx, sess)
	if prev, ok := sess.Get(s.def.Name); ok {
		return domain.Resolution{Slot: s.def.Name, Value: prev.Value, Source: prev.Source, Changed: true}, nil
	}
	return domain.Resolution{}, fmt.Errorf("%w: the record has no %q", domain.ErrMissingInput, s.def.Name)
}

func (r *Resolver) store(ctx context.Context, sess *domain.Session, s scoped, v domain.Value, src domain.Source) {
	owner := s.scope[len(s.scope)-1]
	sess.Resolved[s.def.Name] = domain.ResolvedSlot{
		Value:  v,
		Source: src,
		Turn:   sess.Turn,
		Intent: owner,
	}
	sess.UpdatedAt = r.now().UTC()

	r.logger.Debug("slot resolved", "session_id", sess.ID, "intent", owner, "slot", s.def.Name, "source", src)
	if r.hooks.OnSlotResolved != nil {
		r.hooks.OnSlotResolved(ctx, &domain.SlotEvent{
			EventBase: domain.EventBase{Timestamp: r.now(), Type: domain.EventSlotResolved, SessionID: sess.ID},
			Intent:    owner,
			Slot:      s.def.Name,
			Source:    src,
		})
	}
}

func (r *Resolver) fireValidationFailed(ctx context.Context, sess *domain.Session, s scoped, msg string) {
	owner := s.scope[len(s.scope)-1]
	r.logger.Debug("validation failed", "session_id", sess.ID, "intent", owner, "slot", s.def.Name, "reason", msg)
	if r.hooks.OnValidationFailed != nil {
		r.hooks.OnValidationFailed(ctx, &domain.SlotEvent{
			EventBase: domain.EventBase{Timestamp: r.now(), Type: domain.EventValidationFailed, SessionID: sess.ID},
			Intent:    owner,
			Slot:      s.def.Name,
			Source:    s.def.Source,
			Message:   msg,
		})
	}
}

// invalidate drops resolved slots that no longer follow from changed: computed
// slots reading it, directly or through other computed slots, and slots whose
// depends_on stopped holding. Computed slots are derived again on the next plan;
// dropped answers are asked again if they become relevant.
func (r *Resolver) invalidate(sess *domain.Session, changed string) []string {
	dirty := map[string]bool{changed: true}
	var dropped []string
	for progress := true; progress; {
		progress = false
		for name, rs := range sess.Resolved {
			if dirty[name] {
				continue
			}
			s, ok := lookup(r.model, sess.ActivePath, name)
			if !ok || !r.stale(sess, s, rs, dirty) {
				continue
			}
			delete(sess.Resolved, name)
			dirty[name] = true
			dropped = append(dropped, name)
			progress = true
		}
	}
	sort.Strings(dropped)
	return dropped
}

func (r *Resolver) stale(sess *domain.Session, s scoped, rs domain.ResolvedSlot, dirty map[string]bool) bool {
	if rs.Source == domain.SourceComputed {
		if s.def.Compute == nil {
			return false
		}
		for _, in := range s.def.Compute.Inputs() {
			if dirty[in] {
				return true
			}
		}
		return false
	}
	for _, cond := range s.def.DependsOn {
		if dirty[cond.Slot] {
			rel, _ := relevance(r.model, sess, s)
			return rel == Irrelevant
		}
	}
	return false
}

// BeginLookup prepares the single lookup of a session and marks it in flight.
// The caller runs the provider without holding the session and then calls CompleteLookup.
func (r *Resolver) BeginLookup(sess *domain.Session) (LookupRequest, error) {
	key := r.model.Lookup.KeySlot
	if key == "" {
		return LookupRequest{}, fmt.Errorf("%w: the schema configures no database_lookup", domain.ErrNoProvider)
	}
	if sess.Lookup != nil {
		return LookupRequest{KeySlot: key, Cached: true}, nil
	}
	if sess.PendingLookupKey != "" {
		if !r.staleLookup(sess) {
			return LookupRequest{}, domain.ErrLookupInFlight
		}
		r.logger.Warn("stale lookup mark dropped", "session_id", sess.ID, "slot", sess.PendingLookupKey, "started_at", sess.LookupStartedAt)
	}
	rs, ok := sess.Get(key)
	if !ok {
		return LookupRequest{}, fmt.Errorf("%w: %q", domain.ErrLookupKeyUnresolved, key)
	}
	sess.PendingLookupKey = key
	sess.LookupStartedAt = r.now().UTC()
	return LookupRequest{KeySlot: key, Key: rs.Value}, nil
}

// staleLookup reports whether the in-flight mark outlived the lookup timeout,
// which happens when the process running the provider died before completing.
// A mark without a start time is stale.
func (r *Resolver) staleLookup(sess *domain.Session) bool {
	if r.lookupTimeout <= 0 {
		return false
	}
	if sess.LookupStartedAt.IsZero() {
		return true
	}
	return r.now().Sub(sess.LookupStartedAt) >= r.lookupTimeout
}

// AbandonLookup records that the session gives up on the provider, typically
// after a *domain.LookupError. The outcome counts as not found: record_found
// branches evaluate and api slots are asked from the user. An outcome already
// recorded is kept.
func (r *Resolver) AbandonLookup(sess *domain.Session) (domain.LookupResult, error) {
	key := r.model.Lookup.KeySlot
	if key == "" {
		return domain.LookupResult{}, fmt.Errorf("%w: the schema configures no database_lookup", domain.ErrNoProvider)
	}
	if sess.Lookup != nil {
		return domain.LookupResult{KeySlot: key, Found: sess.Lookup.Found, Cached: true, Abandoned: sess.Lookup.Abandoned}, nil
	}
	if sess.PendingLookupKey != "" && !r.staleLookup(sess) {
		return domain.LookupResult{}, domain.ErrLookupInFlight
	}
	sess.PendingLookupKey = ""
	sess.LookupStartedAt = time.Time{}
	sess.Lookup = &domain.LookupOutcome{KeySlot: key, Turn: sess.Turn, Abandoned: true}
	sess.UpdatedAt = r.now().UTC()

	r.logger.Debug("record lookup abandoned", "session_id", sess.ID, "slot", key)
	return domain.LookupResult{KeySlot: key, Abandoned: true}, nil
}

// CompleteLookup records the provider outcome. domain.ErrRecordNotFound is an
// outcome; any other error leaves the session retryable and returns *domain.LookupError.
func (r *Resolver) CompleteLookup(ctx context.Context, sess *domain.Session, rec domain.Record, lookupErr error) (domain.LookupResult, error) {
	key := r.model.Lookup.KeySlot
	sess.PendingLookupKey = ""
	sess.LookupStartedAt = time.Time{}

	if lookupErr != nil && !errors.Is(lookupErr, domain.ErrRecordNotFound) {
		return domain.LookupResult{KeySlot: key}, &domain.LookupError{KeySlot: key, Err: lookupErr}
	}
	if sess.Lookup != nil {
		return domain.LookupResult{KeySlot: key, Found: sess.Lookup.Found, Cached: true, Abandoned: sess.Lookup.Abandoned}, nil
	}

	found := lookupErr == nil && rec != nil
	outcome := &domain.LookupOutcome{KeySlot: key, Found: found, Turn: sess.Turn}
	if found {
		outcome.Record = make(domain.Record)
		for _, f := range r.model.Lookup.APIFields {
			if v, ok := rec[f]; ok && v != nil {
				outcome.Record[f] = v
			}
		}
	}
	sess.Lookup = outcome
	sess.UpdatedAt = r.now().UTC()

	return domain.LookupResult{KeySlot: key, Found: found, Filled: r.ApplyRecord(ctx, sess)}, nil
}

// ApplyRecord maps the cached record onto the unresolved api slots visible from
// the active path in one batch. Resolved slots are never overwritten.
func (r *Resolver) ApplyRecord(ctx context.Context, sess *domain.Session) []string {
	if sess.Lookup == nil || !sess.Lookup.Found {
		return nil
	}
	var filled []string
	for _, s := range r.visible(sess.ActivePath) {
		def := s.def
		if def.Source != domain.SourceAPI || sess.IsResolved(def.Name) {
			continue
		}
		raw, ok := sess.Lookup.Record[def.Name]
		if !ok {
			continue
		}
		v, err := Validate(def, raw)
		if err != nil {
			r.logger.Warn("record field rejected", "session_id", sess.ID, "slot", def.Name, "err", err)
			continue
		}
		r.store(ctx, sess, s, v, domain.SourceAPI)
		filled = append(filled, def.Name)
	}
	for _, name := range filled {
		r.invalidate(sess, name)
	}
	return filled
}

// visible lists the definitions in scope at the end of path, nearest first,
// in declared order within each intent.
func (r *Resolver) visible(path []string) []scoped {
	seen := make(map[string]bool)
	var out []scoped
	for i := len(path) - 1; i >= 0; i-- {
		n, ok := r.model.Node(path[i])
		if !ok {
			continue
		}
		for _, def := range n.Slots {
			if seen[def.Name] {
				continue
			}
			seen[def.Name] = true
			out = append(out, scoped{def: def, scope: path[:i+1]})
		}
	}
	return out
}
