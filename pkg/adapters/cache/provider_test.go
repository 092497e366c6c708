package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/pkg/adapters/cache"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

type countingProvider struct {
	next  ports.RecordProvider
	calls atomic.Int32
	fail  error
}

func (c *countingProvider) Lookup(ctx context.Context, keySlot string, key domain.Value) (domain.Record, error) {
	c.calls.Add(1)
	if c.fail != nil {
		return nil, c.fail
	}
	return c.next.Lookup(ctx, keySlot, key)
}

var dob = domain.DateValue(time.Date(2005, 6, 15, 0, 0, 0, 0, time.UTC))

func backend() *countingProvider {
	return &countingProvider{next: memory.NewProvider(map[string]domain.Record{
		"2005-06-15": {"patient_dob": "2005-06-15", "insurance": "HealthPlus"},
	})}
}

func TestCacheProvider_Contract(t *testing.T) {
	p, err := cache.New(backend(), 100, time.Minute)
	require.NoError(t, err)
	defer p.Close()
	ports.RunRecordProviderContract(t, p, "patient_dob", dob, "HealthPlus")
}

func TestCacheProvider_HitsSkipBackend(t *testing.T) {
	inner := backend()
	p, err := cache.New(inner, 100, time.Minute)
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec, err := p.Lookup(ctx, "patient_dob", dob)
		require.NoError(t, err)
		assert.Equal(t, "HealthPlus", rec["insurance"])
	}
	assert.EqualValues(t, 1, inner.calls.Load())

	missing := domain.StringValue("1900-01-01")
	for i := 0; i < 2; i++ {
		_, err := p.Lookup(ctx, "patient_dob", missing)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	}
	assert.EqualValues(t, 2, inner.calls.Load(), "not found is cached too")

	p.Invalidate("patient_dob", dob)
	_, err = p.Lookup(ctx, "patient_dob", dob)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestCacheProvider_CanceledHit(t *testing.T) {
	p, err := cache.New(backend(), 100, time.Minute)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Lookup(context.Background(), "patient_dob", dob)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Lookup(ctx, "patient_dob", dob)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheProvider_FailuresAreNotCached(t *testing.T) {
	inner := backend()
	inner.fail = errors.New("backend down")
	p, err := cache.New(inner, 100, time.Minute)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Lookup(context.Background(), "patient_dob", dob)
	require.Error(t, err)

	inner.fail = nil
	rec, err := p.Lookup(context.Background(), "patient_dob", dob)
	require.NoError(t, err)
	assert.Equal(t, "HealthPlus", rec["insurance"])
	assert.EqualValues(t, 2, inner.calls.Load())
}
