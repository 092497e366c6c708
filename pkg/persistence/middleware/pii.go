package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// Mask replaces the value of every masked slot and record field.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of slots and
// record fields whose names match the patterns.
// Masking is lossy: stores behind it hold audit copies, not resumable sessions.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sess *domain.Session) error {
	// 1. Deep Clone to avoid side effects on the in-memory session used by the Engine.
	cloned := sess.Clone()

	// 2. Mask PII
	for name, rs := range cloned.Resolved {
		if m.matches(name) {
			rs.Value = domain.StringValue(Mask)
			cloned.Resolved[name] = rs
		}
	}
	if cloned.Lookup != nil {
		maskRecord(cloned.Lookup.Record, m.matches)
	}

	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// Helpers

func maskRecord(rec domain.Record, match func(string) bool) {
	for k, v := range rec {
		if match(k) {
			rec[k] = Mask
			continue
		}
		// Nested maps are shared with the caller's session; mask a copy.
		if sub, ok := v.(map[string]any); ok {
			cp := make(domain.Record, len(sub))
			for sk, sv := range sub {
				cp[sk] = sv
			}
			maskRecord(cp, match)
			rec[k] = map[string]any(cp)
		}
	}
}
