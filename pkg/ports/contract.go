package ports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/pkg/domain"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		sess := domain.NewSession(sessionID, "Root")
		sess.ActivePath = append(sess.ActivePath, "Child")
		sess.Turn = 2
		sess.Resolved["name"] = domain.ResolvedSlot{Value: domain.StringValue("Jane"), Source: domain.SourceUser, Turn: 1, Intent: "Root"}
		sess.Resolved["dob"] = domain.ResolvedSlot{Value: domain.DateValue(time.Date(2005, 6, 15, 0, 0, 0, 0, time.UTC)), Source: domain.SourceUser, Turn: 2, Intent: "Root"}
		sess.Resolved["tests"] = domain.ResolvedSlot{Value: domain.ArrayValue(domain.StringValue("MRI")), Source: domain.SourceAPI, Turn: 2, Intent: "Child"}
		sess.Lookup = &domain.LookupOutcome{KeySlot: "dob", Found: true, Record: domain.Record{"insurance": "HealthPlus"}, Turn: 2}

		require.NoError(t, store.Save(ctx, sess), "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sess.ActivePath, loaded.ActivePath)
		assert.Equal(t, 2, loaded.Turn)
		require.Len(t, loaded.Resolved, 3)
		for name, want := range sess.Resolved {
			got := loaded.Resolved[name]
			assert.True(t, want.Value.Equal(got.Value), "slot %s: got %v, want %v", name, got.Value, want.Value)
			assert.Equal(t, want.Source, got.Source)
			assert.Equal(t, want.Intent, got.Intent)
		}
		require.NotNil(t, loaded.Lookup)
		assert.True(t, loaded.Lookup.Found)
		assert.Equal(t, "HealthPlus", loaded.Lookup.Record["insurance"])
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Resolved["name"] = domain.ResolvedSlot{Value: domain.StringValue("mutated")}
		loaded.ActivePath = append(loaded.ActivePath, "Elsewhere")

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.True(t, again.Resolved["name"].Value.Equal(domain.StringValue("Jane")))
		assert.Len(t, again.ActivePath, 2)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(sessionID, "Root")))

		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, domain.NewSession(id1, "Root"))
		_ = store.Save(ctx, domain.NewSession(id2, "Root"))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}

// RunRecordProviderContract verifies a RecordProvider seeded with the record
// {keySlot: key, "insurance": insurance}.
func RunRecordProviderContract(t *testing.T, p RecordProvider, keySlot string, key domain.Value, insurance string) {
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		rec, err := p.Lookup(ctx, keySlot, key)
		require.NoError(t, err)
		assert.Equal(t, insurance, rec["insurance"])
	})

	t.Run("Found twice", func(t *testing.T) {
		first, err := p.Lookup(ctx, keySlot, key)
		require.NoError(t, err)
		first["insurance"] = "mutated"

		second, err := p.Lookup(ctx, keySlot, key)
		require.NoError(t, err)
		assert.Equal(t, insurance, second["insurance"], "callers must not share records")
	})

	t.Run("Not Found", func(t *testing.T) {
		_, err := p.Lookup(ctx, keySlot, domain.StringValue("no-such-key"))
		assert.True(t, errors.Is(err, domain.ErrRecordNotFound), "got %v", err)
	})

	t.Run("Canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Lookup(cctx, keySlot, key)
		require.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrRecordNotFound), "cancellation is a failure, not an outcome")
	})
}
