package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/intake/pkg/domain"
)

// Provider implements ports.RecordProvider over a fixed set of records
// keyed by the textual form of the key slot value.
type Provider struct {
	records map[string]domain.Record
}

// NewProvider creates a provider from records keyed by key value (dates as YYYY-MM-DD).
func NewProvider(records map[string]domain.Record) *Provider {
	p := &Provider{records: make(map[string]domain.Record, len(records))}
	for k, rec := range records {
		p.records[k] = copyRecord(rec)
	}
	return p
}

// Lookup returns a copy of the record stored under key.
func (p *Provider) Lookup(ctx context.Context, keySlot string, key domain.Value) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := p.records[key.String()]
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", keySlot, key, domain.ErrRecordNotFound)
	}
	return copyRecord(rec), nil
}

// Len returns the number of records.
func (p *Provider) Len() int {
	return len(p.records)
}

func copyRecord(rec domain.Record) domain.Record {
	cp := make(domain.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}
