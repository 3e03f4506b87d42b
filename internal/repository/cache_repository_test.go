package repository

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

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	repo := NewCacheRepository(client, nil)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, server
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, server := newCacheRepo(t)
	ctx := context.Background()
	key := SummaryCacheKey("sum-1")
	assert.Equal(t, "records:summary:sum-1", key)

	var dest map[string]int
	assert.True(t, errors.Is(repo.Get(ctx, key, &dest), appErrors.ErrCacheMiss))

	require.NoError(t, repo.Set(ctx, key, map[string]int{"student_count": 24}, time.Minute))
	require.NoError(t, repo.Get(ctx, key, &dest))
	assert.Equal(t, 24, dest["student_count"])
	assert.Equal(t, time.Minute, server.TTL(key))

	require.NoError(t, repo.Delete(ctx, key, ClassSummariesCacheKey("class-1")))
	assert.False(t, server.Exists(key))
}

func TestCacheRepositoryDropsCorruptEntries(t *testing.T) {
	repo, server := newCacheRepo(t)
	key := ClassSummariesCacheKey("class-1")
	require.NoError(t, server.Set(key, "{not json"))

	var dest []string
	err := repo.Get(context.Background(), key, &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.False(t, server.Exists(key))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "k", 1, time.Minute))
	var dest int
	assert.True(t, errors.Is(repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss))
	require.NoError(t, repo.Delete(ctx, "k"))
	require.NoError(t, repo.Close())
}
