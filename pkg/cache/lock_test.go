package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, "test"), server
}

func TestLockerAcquireAndRelease(t *testing.T) {
	locker, server := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, server.Exists("test:tick"))
	assert.Equal(t, time.Minute, server.TTL("test:tick"))

	_, err = locker.Acquire(ctx, "tick", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrLockNotAcquired))

	require.NoError(t, release(ctx))
	assert.False(t, server.Exists("test:tick"))

	_, err = locker.Acquire(ctx, "tick", time.Minute)
	require.NoError(t, err)
}

func TestLockerReleaseKeepsForeignHolder(t *testing.T) {
	locker, server := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "tick", time.Second)
	require.NoError(t, err)
	server.FastForward(2 * time.Second)
	require.NoError(t, server.Set("test:tick", "other"))

	require.NoError(t, release(ctx))
	got, err := server.Get("test:tick")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestNilClientLockerIsNoop(t *testing.T) {
	locker := NewLocker(nil, "")
	release, err := locker.Acquire(context.Background(), "tick", time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}
