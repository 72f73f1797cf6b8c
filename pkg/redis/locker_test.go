package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorpay/pkg/redis"
)

func connect(t *testing.T) redis.Config {
	t.Helper()

	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	return redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		RetryInterval:  time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

func TestLocker(t *testing.T) {
	cfg := connect(t)
	ctx := context.Background()

	client, err := redis.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	locker := redis.NewLocker(client,
		redis.WithLockPrefix("test:"+uuid.NewString()+":"),
		redis.WithLockTTL(2*time.Second),
		redis.WithLockWait(100*time.Millisecond),
	)

	unlock, err := locker.Lock(ctx, "sub")
	require.NoError(t, err)

	_, err = locker.Lock(ctx, "sub")
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	other, err := locker.Lock(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	relock, err := locker.Lock(ctx, "sub")
	require.NoError(t, err)
	require.NoError(t, relock(ctx))

	// Releasing twice is harmless.
	require.NoError(t, unlock(ctx))
}

func TestConnect_Errors(t *testing.T) {
	t.Parallel()

	_, err := redis.Connect(context.Background(), redis.Config{})
	assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)

	_, err = redis.Connect(context.Background(), redis.Config{ConnectionURL: "://bad", ConnectTimeout: time.Second})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}

func TestNewLocker_NilClient(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { redis.NewLocker(nil) })
}
