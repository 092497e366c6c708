package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/intake/pkg/adapters/file"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

var _ ports.SessionStore = (*file.Store)(nil)

func TestStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.New(t.TempDir()))
}

func TestStore_Files(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sessions")
	store := file.New(dir)
	ctx := context.Background()

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "missing directory lists nothing")

	require.NoError(t, store.Save(ctx, domain.NewSession("b", "Root")))
	require.NoError(t, store.Save(ctx, domain.NewSession("a", "Root")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-c-123.json"), []byte("{"), 0o600))

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	// Overwrite keeps a single file.
	sess := domain.NewSession("a", "Root")
	sess.Turn = 3
	require.NoError(t, store.Save(ctx, sess))
	loaded, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Turn)

	assert.NoError(t, store.Delete(ctx, "never-saved"))
}

func TestStore_RejectsUnsafeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "..", "../escape", `a\b`, "tmp-x"} {
		assert.ErrorIs(t, store.Save(ctx, domain.NewSession(id, "Root")), file.ErrInvalidID, id)
		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, file.ErrInvalidID, id)
	}
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600))

	_, err := file.New(dir).Load(context.Background(), "bad")
	assert.ErrorContains(t, err, "failed to unmarshal session bad")
}
