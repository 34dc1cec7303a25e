package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeopathy-case-engine/internal/domain"
	"github.com/homeopathy-case-engine/internal/repository"
)

type countingStore struct {
	domain.ReferenceStore
	remedyCalls atomic.Int32
}

func (c *countingStore) RemedyByID(ctx context.Context, id string) (*domain.Remedy, error) {
	c.remedyCalls.Add(1)
	return c.ReferenceStore.RemedyByID(ctx, id)
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	logger, _ := test.NewNullLogger()
	seeded, err := repository.NewSeededReferenceStore(logger)
	require.NoError(t, err)
	return &countingStore{ReferenceStore: seeded}
}

func testCacheConfig() domain.CacheConfig {
	return domain.CacheConfig{
		MemoryMaxItems: 16,
		MemoryTTL:      time.Minute,
		DefaultTTL:     time.Minute,
	}
}

func TestReferenceStore_MemoryTier(t *testing.T) {
	logger, _ := test.NewNullLogger()
	backing := newCountingStore(t)
	store := NewReferenceStore(backing, testCacheConfig(), nil, logger)
	ctx := context.Background()

	first, err := store.RemedyByID(ctx, "acon")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Aconitum napellus", first.Name)

	second, err := store.RemedyByID(ctx, "acon")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), backing.remedyCalls.Load())

	stats := store.GetStats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.MemoryMisses)
	assert.Equal(t, int64(1), stats.StoreLookups)
}

func TestReferenceStore_MissingNotCached(t *testing.T) {
	logger, _ := test.NewNullLogger()
	backing := newCountingStore(t)
	store := NewReferenceStore(backing, testCacheConfig(), nil, logger)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		remedy, err := store.RemedyByID(ctx, "does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, remedy)
	}
	assert.Equal(t, int32(2), backing.remedyCalls.Load())
}

func TestReferenceStore_InvalidateRunsHooks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := NewReferenceStore(newCountingStore(t), testCacheConfig(), nil, logger)

	calls := 0
	store.OnInvalidate(func() { calls++ })
	store.OnInvalidate(func() { calls++ })

	require.NoError(t, store.Invalidate(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestReferenceStore_SymptomByCode(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := NewReferenceStore(newCountingStore(t), testCacheConfig(), nil, logger)

	sym, err := store.SymptomByCode(context.Background(), "SYM_ANXIETY")
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, domain.CategoryMental, sym.Category)

	_, err = store.SymptomByCode(context.Background(), "sym_anxiety")
	require.NoError(t, err)
	assert.Equal(t, int64(1), store.GetStats().MemoryHits)
}

func TestReferenceStore_Invalidate(t *testing.T) {
	logger, _ := test.NewNullLogger()
	backing := newCountingStore(t)
	store := NewReferenceStore(backing, testCacheConfig(), nil, logger)
	ctx := context.Background()

	_, err := store.RemedyByID(ctx, "ars")
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx))
	_, err = store.RemedyByID(ctx, "ars")
	require.NoError(t, err)

	assert.Equal(t, int32(2), backing.remedyCalls.Load())
}

func TestReferenceStore_RedisUnavailable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewReferenceStore(newCountingStore(t), testCacheConfig(), NewRedisCacheFromClient(client, time.Minute), logger)
	ctx := context.Background()

	for _, id := range []string{"acon", "ars", "bell"} {
		remedy, err := store.RemedyByID(ctx, id)
		require.NoError(t, err, "lookup must degrade to the backing store")
		require.NotNil(t, remedy)
	}

	assert.Equal(t, "open", store.BreakerState())
	assert.Positive(t, store.GetStats().RedisErrors)
	assert.Equal(t, int64(3), store.GetStats().StoreLookups)
}

func TestReferenceStore_RedisTier(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	cfg := testCacheConfig()
	cfg.RedisURL = url
	rc, err := NewRedisCache(cfg)
	require.NoError(t, err)
	defer rc.Close()

	ctx := context.Background()
	require.NoError(t, rc.Delete(ctx, "remedy:puls"))

	logger, _ := test.NewNullLogger()
	warm := NewReferenceStore(newCountingStore(t), cfg, rc, logger)
	_, err = warm.RemedyByID(ctx, "puls")
	require.NoError(t, err)

	backing := newCountingStore(t)
	cold := NewReferenceStore(backing, cfg, rc, logger)
	remedy, err := cold.RemedyByID(ctx, "puls")
	require.NoError(t, err)
	require.NotNil(t, remedy)
	assert.Equal(t, "puls", remedy.ID)
	assert.Equal(t, int32(0), backing.remedyCalls.Load())
	assert.Equal(t, int64(1), cold.GetStats().RedisHits)
}
