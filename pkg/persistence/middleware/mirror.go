package middleware

import (
	"context"
	"fmt"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

type mirrorMiddleware struct {
	next  ports.SessionStore
	audit ports.SessionStore
}

// NewMirrorMiddleware copies every saved session to audit after the wrapped
// store accepted it. Reads, deletes and listings only reach the wrapped store,
// so audit copies outlive the sessions they were taken from.
func NewMirrorMiddleware(audit ports.SessionStore) Middleware {
	return func(next ports.SessionStore) ports.SessionStore {
		return &mirrorMiddleware{next: next, audit: audit}
	}
}

func (m *mirrorMiddleware) Save(ctx context.Context, sess *domain.Session) error {
	if err := m.next.Save(ctx, sess); err != nil {
		return err
	}
	if err := m.audit.Save(ctx, sess); err != nil {
		return fmt.Errorf("audit copy of %s: %w", sess.ID, err)
	}
	return nil
}

func (m *mirrorMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *mirrorMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *mirrorMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
