package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestDB_State(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("LoadMissing", func(t *testing.T) {
		val, found, err := db.Load(ctx, "cart")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)
	})

	t.Run("SaveAndOverwrite", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, "cart", []byte(`[{"name":"Banho"}]`)))
		require.NoError(t, db.Save(ctx, "cart", []byte(`[]`)))

		val, found, err := db.Load(ctx, "cart")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `[]`, string(val))
	})

	t.Run("SaveEmpty", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, "user_name", nil))
		_, found, err := db.Load(ctx, "user_name")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, db.Save(ctx, "token", []byte("tok")))
		require.NoError(t, db.Save(ctx, "user_id", []byte("1")))

		require.NoError(t, db.Clear(ctx, "token", "user_id"))
		_, found, _ := db.Load(ctx, "token")
		assert.False(t, found)
		_, found, _ = db.Load(ctx, "user_id")
		assert.False(t, found)

		assert.NoError(t, db.Clear(ctx))
	})
}

func TestDB_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, "cart", []byte(`[1]`)))
	require.NoError(t, db.Close())

	reopened, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer reopened.Close()

	val, found, err := reopened.Load(ctx, "cart")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1]`, string(val))
}
