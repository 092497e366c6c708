// Package cache decorates a record provider with an in-process cache shared by
// all sessions, so repeated lookups of the same patient skip the backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

type entry struct {
	record domain.Record
	found  bool
}

// Provider caches found records and not-found outcomes. Provider failures are never cached.
type Provider struct {
	next  ports.RecordProvider
	cache otter.Cache[string, entry]
}

// New wraps next with a cache of the given capacity and TTL.
func New(next ports.RecordProvider, capacity int, ttl time.Duration) (*Provider, error) {
	c, err := otter.MustBuilder[string, entry](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build record cache: %w", err)
	}
	return &Provider{next: next, cache: c}, nil
}

func cacheKey(keySlot string, key domain.Value) string {
	return keySlot + "\x00" + key.String()
}

// Lookup implements ports.RecordProvider.
func (p *Provider) Lookup(ctx context.Context, keySlot string, key domain.Value) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := cacheKey(keySlot, key)
	if e, ok := p.cache.Get(k); ok {
		if !e.found {
			return nil, fmt.Errorf("%s %q: %w", keySlot, key, domain.ErrRecordNotFound)
		}
		return copyRecord(e.record), nil
	}

	rec, err := p.next.Lookup(ctx, keySlot, key)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		p.cache.Set(k, entry{})
		return nil, err
	case err != nil:
		return nil, err
	}
	p.cache.Set(k, entry{record: copyRecord(rec), found: true})
	return rec, nil
}

// Invalidate drops the cached outcome for a key.
func (p *Provider) Invalidate(keySlot string, key domain.Value) {
	p.cache.Delete(cacheKey(keySlot, key))
}

// Close stops the cache's background goroutines.
func (p *Provider) Close() {
	p.cache.Close()
}

func copyRecord(rec domain.Record) domain.Record {
	cp := make(domain.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}
