package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisIdempotencyStoreWithClient_DefaultPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	store := NewRedisIdempotencyStoreWithClient(client, "")
	defer store.Close()

	assert.Equal(t, DefaultDeliveryKeyPrefix, store.keyPrefix)
}

func TestRedisIdempotencyStore_PingUsesStoreClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewRedisIdempotencyStoreWithClient(client, "test:")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, store.Ping(ctx))

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(ctx), redis.ErrClosed)
}
