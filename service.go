package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/intake/internal/runtime"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/session"
)

// Service serves sessions by ID on top of an Engine and a session store.
// Every operation is a load-mutate-save cycle serialised per session.
type Service struct {
	engine   *Engine
	sessions *session.Manager
	newID    func() string
	logger   *slog.Logger

	locker  ports.DistributedLocker
	lockTTL time.Duration
}

var _ ports.IntakeService = (*Service)(nil)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDistributedLocker serialises sessions across processes.
func WithDistributedLocker(l ports.DistributedLocker, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.locker = l
		s.lockTTL = ttl
	}
}

// WithIDGenerator replaces the random session ID generator.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		s.newID = fn
	}
}

// WithServiceLogger sets the logger of the service and its session manager.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a Service persisting sessions in store.
func NewService(eng *Engine, store ports.SessionStore, opts ...ServiceOption) *Service {
	s := &Service{
		engine: eng,
		newID:  uuid.NewString,
		logger: eng.logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mopts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		mopts = append(mopts, session.WithLocker(s.locker))
		if s.lockTTL > 0 {
			mopts = append(mopts, session.WithLockTTL(s.lockTTL))
		}
	}
	s.sessions = session.NewManager(store, mopts...)
	return s
}

// Engine returns the engine the service drives.
func (s *Service) Engine() *Engine {
	return s.engine
}

// Create starts a session and returns its first action.
func (s *Service) Create(ctx context.Context) (*domain.Step, error) {
	sess := s.engine.Start(s.newID())
	step, err := s.plan(ctx, nil, sess)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session created", "session_id", sess.ID)
	return step, nil
}

// Ingest resolves a slot from user input and plans the next action.
func (s *Service) Ingest(ctx context.Context, sessionID, slot string, input any) (*domain.Step, error) {
	var step *domain.Step
	err := s.sessions.Update(ctx, sessionID, func(ctx context.Context, sess *domain.Session) error {
		before := sess.Clone()
		res, err := s.engine.Ingest(ctx, sess, slot, input)
		if err != nil {
			return err
		}
		step, err = s.plan(ctx, before, sess)
		if err != nil {
			return err
		}
		step.Resolution = &res
		return nil
	})
	return step, err
}

// Lookup runs the record lookup of a session and plans the next action.
// The session lock is not held while the provider runs; the session is marked
// in flight instead so a concurrent Lookup fails with domain.ErrLookupInFlight.
func (s *Service) Lookup(ctx context.Context, sessionID string) (*domain.Step, error) {
	if s.engine.provider == nil {
		return nil, domain.ErrNoProvider
	}

	var req runtime.LookupRequest
	err := s.sessions.Update(ctx, sessionID, func(_ context.Context, sess *domain.Session) error {
		var err error
		req, err = s.engine.resolver.BeginLookup(sess)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		rec       domain.Record
		lookupErr error
	)
	if !req.Cached {
		rec, lookupErr = s.engine.fetch(ctx, sessionID, req)
	}

	// The outcome is merged even when ctx was cancelled so the in-flight mark is cleared.
	var (
		step          *domain.Step
		lookupFailure error
	)
	err = s.sessions.Update(context.WithoutCancel(ctx), sessionID, func(ctx context.Context, sess *domain.Session) error {
		before := sess.Clone()
		res, err := s.engine.resolver.CompleteLookup(ctx, sess, rec, lookupErr)
		if err != nil {
			lookupFailure = err
			return nil
		}
		step, err = s.plan(ctx, before, sess)
		if err != nil {
			return err
		}
		step.Lookup = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lookupFailure != nil {
		s.logger.Warn("record lookup failed", "session_id", sessionID, "err", lookupFailure)
		return nil, lookupFailure
	}
	return step, nil
}

// SkipLookup abandons the record lookup of a session and plans the next action.
// Fields the provider would have filled are asked from the user instead.
func (s *Service) SkipLookup(ctx context.Context, sessionID string) (*domain.Step, error) {
	var step *domain.Step
	err := s.sessions.Update(ctx, sessionID, func(ctx context.Context, sess *domain.Session) error {
		before := sess.Clone()
		res, err := s.engine.SkipLookup(ctx, sess)
		if err != nil {
			return err
		}
		step, err = s.plan(ctx, before, sess)
		if err != nil {
			return err
		}
		step.Lookup = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("record lookup skipped", "session_id", sessionID)
	return step, nil
}

// Next plans the next action without new input.
func (s *Service) Next(ctx context.Context, sessionID string) (*domain.Step, error) {
	var step *domain.Step
	err := s.sessions.Update(ctx, sessionID, func(ctx context.Context, sess *domain.Session) error {
		var err error
		step, err = s.plan(ctx, sess.Clone(), sess)
		return err
	})
	return step, err
}

// Snapshot returns a read-only view of the session.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (domain.DialogueState, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.DialogueState{}, err
	}
	return s.engine.Snapshot(ctx, sess), nil
}

// Delete discards a session.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}

// List returns the IDs of the stored sessions.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.sessions.List(ctx)
}

// plan decides the next action and reports what changed since before.
func (s *Service) plan(ctx context.Context, before, sess *domain.Session) (*domain.Step, error) {
	action, err := s.engine.NextAction(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("plan next action: %w", err)
	}
	return &domain.Step{
		SessionID: sess.ID,
		Action:    action,
		Diff:      domain.Diff(before, sess),
	}, nil
}
