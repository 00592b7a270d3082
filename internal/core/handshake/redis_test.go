package handshake_test

import (
	"context"
	"testing"
	"time"

	"github.com/Nzyazin/payagent/internal/core/handshake"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisStore(t *testing.T) (*handshake.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return handshake.NewRedisStore(client), mr
}

func TestRedisStoreTakeConsumesValue(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "transaction:1:pin", "1234", time.Minute))
	assert.True(t, mr.Exists("transaction:1:pin"))

	v, ok, err := store.Take(ctx, "transaction:1:pin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1234", v)
	assert.False(t, mr.Exists("transaction:1:pin"))

	_, ok, err = store.Take(ctx, "transaction:1:pin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreEntriesExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Take(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelayOverRedisAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	publisherClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	waiterClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		publisherClient.Close()
		waiterClient.Close()
	})

	cfg := handshake.Config{PollInterval: 5 * time.Millisecond, Deadline: time.Second}
	publisher := handshake.NewRelay(handshake.NewRedisStore(publisherClient), cfg, zap.NewNop())
	waiter := handshake.NewRelay(handshake.NewRedisStore(waiterClient), cfg, zap.NewNop())
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = publisher.Publish(ctx, 99, "4321")
	}()

	pin, err := waiter.Await(ctx, 99, nil)
	require.NoError(t, err)
	assert.Equal(t, "4321", pin)
}

func TestRelayKeepsPollingThroughStoreErrors(t *testing.T) {
	store, mr := newRedisStore(t)
	relay := handshake.NewRelay(store, handshake.Config{PollInterval: 5 * time.Millisecond, Deadline: time.Second}, zap.NewNop())
	ctx := context.Background()

	mr.SetError("LOADING")
	go func() {
		time.Sleep(30 * time.Millisecond)
		mr.SetError("")
		mr.Set(handshake.Key(8), "2468")
	}()

	pin, err := relay.Await(ctx, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, "2468", pin)
}
