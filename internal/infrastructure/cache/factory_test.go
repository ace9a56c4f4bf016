package cache

import (
	"context"
	"strconv"
	"testing"

	"github.com/adamj-ops/everyday-properties/internal/infrastructure/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStoreFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("memory store by default", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(config.RedisConfig{}, config.WebhookConfig{Store: "memory"})
		store, err := f.CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("redis store when configured", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		f := NewIdempotencyStoreFactory(config.RedisConfig{Host: mr.Host(), Port: port}, config.WebhookConfig{Store: "redis"})
		store, err := f.CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &RedisIdempotencyStore{}, store)
	})

	unreachable := func(t *testing.T) config.RedisConfig {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)
		host := mr.Host()
		mr.Close()
		return config.RedisConfig{Host: host, Port: port}
	}

	t.Run("unreachable redis is an error without fallback", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(unreachable(t), config.WebhookConfig{Store: "redis"})
		_, err := f.CreateStore(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis required")
	})

	t.Run("unreachable redis falls back when allowed", func(t *testing.T) {
		f := NewIdempotencyStoreFactory(unreachable(t), config.WebhookConfig{Store: "redis"}, WithInMemoryFallback(true))
		store, err := f.CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})
}
