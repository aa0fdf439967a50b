package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewRedisStore(client, 0)
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		payload := []byte(`[{"id":"1","name":"Banho","price":80,"quantity":3}]`)
		require.NoError(t, repo.Save(ctx, "cart", payload))

		got, found, err := repo.Load(ctx, "cart")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, payload, got)
		assert.True(t, s.Exists("petshop:state:cart"))
	})

	t.Run("LoadMissing", func(t *testing.T) {
		got, found, err := repo.Load(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "token", []byte("tok")))
		require.NoError(t, repo.Save(ctx, "user_id", []byte("7")))

		require.NoError(t, repo.Clear(ctx, "token", "user_id"))
		assert.False(t, s.Exists("petshop:state:token"))
		assert.False(t, s.Exists("petshop:state:user_id"))

		assert.NoError(t, repo.Clear(ctx))
	})

	t.Run("TTL", func(t *testing.T) {
		ttlRepo := NewRedisStore(client, time.Minute)
		require.NoError(t, ttlRepo.Save(ctx, "short", []byte("v")))

		s.FastForward(time.Minute + time.Second)
		_, found, err := ttlRepo.Load(ctx, "short")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStore(nil, 0)
		_, _, err := repo.Load(ctx, "cart")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("Close", func(t *testing.T) {
		c := redis.NewClient(&redis.Options{Addr: s.Addr()})
		assert.NoError(t, Close(c))
		assert.NoError(t, Close(nil))
	})
}
