package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("Missing Key Returns Nil", func(t *testing.T) {
		value, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Set Then Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte("v1")))
		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), value)

		require.NoError(t, store.Set(ctx, "k", []byte("v2")))
		value, err = store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), value)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", []byte("x")))
		require.NoError(t, store.Delete(ctx, "gone"))
		value, err := store.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, value)

		// Deleting an absent key is fine.
		require.NoError(t, store.Delete(ctx, "never-existed"))
	})
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	dbPath := filepath.Join(t.TempDir(), "store.db")
	store, err := NewSQLiteStore(logger, dbPath)
	require.NoError(t, err)
	defer store.Close()

	t.Run("Round Trip", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", []byte(`{"a":1}`)))
		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(value))
	})

	t.Run("Survives Reopen", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "persisted", []byte("still-here")))
		require.NoError(t, store.Close())

		reopened, err := NewSQLiteStore(logger, dbPath)
		require.NoError(t, err)
		defer reopened.Close()

		value, err := reopened.Get(ctx, "persisted")
		require.NoError(t, err)
		assert.Equal(t, []byte("still-here"), value)
	})
}

func TestGetWithMigration(t *testing.T) {
	ctx := context.Background()

	t.Run("Migrates Legacy Key On First Read", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, LegacyKeyTasks, []byte("legacy-data")))

		value, err := GetWithMigration(ctx, store, KeyTasks, LegacyKeyTasks)
		require.NoError(t, err)
		assert.Equal(t, []byte("legacy-data"), value)

		// New key now holds the data, legacy key is gone.
		migrated, err := store.Get(ctx, KeyTasks)
		require.NoError(t, err)
		assert.Equal(t, []byte("legacy-data"), migrated)

		legacy, err := store.Get(ctx, LegacyKeyTasks)
		require.NoError(t, err)
		assert.Nil(t, legacy)
	})

	t.Run("Prefers Current Key", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Set(ctx, KeyTasks, []byte("current")))
		require.NoError(t, store.Set(ctx, LegacyKeyTasks, []byte("stale")))

		value, err := GetWithMigration(ctx, store, KeyTasks, LegacyKeyTasks)
		require.NoError(t, err)
		assert.Equal(t, []byte("current"), value)
	})

	t.Run("Nil When Neither Exists", func(t *testing.T) {
		store := NewMemoryStore()
		value, err := GetWithMigration(ctx, store, KeyTasks, LegacyKeyTasks)
		require.NoError(t, err)
		assert.Nil(t, value)
	})
}
