package ports

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// RecordProvider looks up an existing patient record.
type RecordProvider interface {
	// Lookup returns the record whose keySlot field holds key.
	// Returns domain.ErrRecordNotFound when no record matches; any other
	// error is a provider failure the caller may retry.
	Lookup(ctx context.Context, keySlot string, key domain.Value) (domain.Record, error)
}
