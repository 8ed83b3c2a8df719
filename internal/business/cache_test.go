package business

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) GetBusiness(ctx context.Context, id string) (*Business, error) {
	c.gets++
	return c.MemoryStore.GetBusiness(ctx, id)
}

func newCountingStore() *countingStore {
	mem := NewMemoryStore()
	mem.PutBusiness(Business{ID: "biz-1", Name: "Studio", Timezone: "Asia/Tashkent", Language: "uz"})
	mem.AddService(Service{ID: "svc-1", BusinessID: "biz-1", Name: "Manicure", DurationMinutes: 60, Active: true})
	mem.AddStaff(Staff{ID: "st-1", BusinessID: "biz-1", Name: "Malika", Active: true})
	mem.AddFAQ("biz-1", FAQEntry{Question: "Parking?", Answer: "Yes"})
	return &countingStore{MemoryStore: mem}
}

func TestCachedStoreServesFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	under := newCountingStore()

	cache, err := NewCachedStore(under, rdb)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	b, err := cache.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Studio", b.Name)

	services, err := cache.ListServices(ctx, "biz-1")
	require.NoError(t, err)
	assert.Len(t, services, 1)

	staff, err := cache.ListStaff(ctx, "biz-1")
	require.NoError(t, err)
	assert.Len(t, staff, 1)

	assert.Equal(t, 1, under.gets, "snapshot should be fetched once")
	assert.True(t, mr.Exists("business:snapshot:biz-1"))
}

func TestCachedStoreFallsBackToRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	under := newCountingStore()
	ctx := context.Background()

	first, err := NewCachedStore(under, rdb)
	require.NoError(t, err)
	_, err = first.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	first.Close()

	// A second process has a cold L1 but shares Redis.
	second, err := NewCachedStore(under, rdb)
	require.NoError(t, err)
	defer second.Close()
	_, err = second.ListFAQ(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 1, under.gets)

	require.NoError(t, second.Invalidate(ctx, "biz-1"))
	assert.False(t, mr.Exists("business:snapshot:biz-1"))
	_, err = second.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, under.gets)
}

func TestCachedStoreNotFoundIsNotCached(t *testing.T) {
	under := newCountingStore()
	cache, err := NewCachedStore(under, nil)
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.GetBusiness(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cache.GetBusiness(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, under.gets)
}

func TestCachedStoreSeesUsageRecordedAfterSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := NewMemoryStore()
	mem.PutBusiness(Business{ID: "biz-1", Name: "Studio", Timezone: "Asia/Tashkent", MessageQuota: 2})

	cache, err := NewCachedStore(mem, rdb)
	require.NoError(t, err)
	defer cache.Close()
	ctx := context.Background()

	b, err := cache.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	assert.False(t, b.QuotaExhausted())

	require.NoError(t, cache.IncrementMessagesUsed(ctx, "biz-1"))
	require.NoError(t, cache.IncrementMessagesUsed(ctx, "biz-1"))

	b, err = cache.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.MessagesUsed)
	assert.True(t, b.QuotaExhausted(), "quota gate must not wait for the snapshot to expire")
	assert.Equal(t, "Studio", b.Name)
}
