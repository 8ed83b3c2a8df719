package business

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"

	"github.com/antonbillionaire/staffix/pkg/logging"
)

const (
	defaultLocalTTL  = 30 * time.Second
	defaultRemoteTTL = 5 * time.Minute
	localCacheBytes  = 32 << 20
)

// snapshot is the cacheable part of a tenant: profile, catalogue and FAQ.
// Time-off is not cached; booking writes re-check it anyway.
type snapshot struct {
	Business Business   `json:"business"`
	Services []Service  `json:"services"`
	Staff    []Staff    `json:"staff"`
	FAQ      []FAQEntry `json:"faq"`
}

// CachedStore fronts a Store with an in-process L1 and a Redis L2 cache of
// tenant snapshots. Writes pass straight through.
type CachedStore struct {
	next      Store
	redis     *redis.Client
	local     *ristretto.Cache[string, []byte]
	localTTL  time.Duration
	remoteTTL time.Duration
	logger    *logging.Logger
}

// CacheOption customises a CachedStore.
type CacheOption func(*CachedStore)

// WithCacheTTL overrides the L1 and L2 lifetimes.
func WithCacheTTL(local, remote time.Duration) CacheOption {
	return func(c *CachedStore) {
		if local > 0 {
			c.localTTL = local
		}
		if remote > 0 {
			c.remoteTTL = remote
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *logging.Logger) CacheOption {
	return func(c *CachedStore) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCachedStore wraps next. rdb may be nil, in which case only L1 is used.
func NewCachedStore(next Store, rdb *redis.Client, opts ...CacheOption) (*CachedStore, error) {
	if next == nil {
		panic("business: underlying store required")
	}
	local, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: localCacheBytes / 100 * 10,
		MaxCost:     localCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("business: create local cache: %w", err)
	}
	c := &CachedStore{
		next:      next,
		redis:     rdb,
		local:     local,
		localTTL:  defaultLocalTTL,
		remoteTTL: defaultRemoteTTL,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the L1 cache.
func (c *CachedStore) Close() {
	c.local.Close()
}

// Invalidate drops the cached snapshot for a business from both tiers.
func (c *CachedStore) Invalidate(ctx context.Context, businessID string) error {
	key := snapshotKey(businessID)
	c.local.Del(key)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("business: invalidate cache: %w", err)
	}
	return nil
}

// GetBusiness serves the cached profile with live quota and plan fields, so
// usage recorded since the snapshot was taken is always seen.
func (c *CachedStore) GetBusiness(ctx context.Context, businessID string) (*Business, error) {
	snap, err := c.load(ctx, businessID)
	if err != nil {
		return nil, err
	}
	b := snap.Business
	usage, err := c.next.GetUsage(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("business: live usage: %w", err)
	}
	b.ApplyUsage(usage)
	return &b, nil
}

func (c *CachedStore) ListServices(ctx context.Context, businessID string) ([]Service, error) {
	snap, err := c.load(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return snap.Services, nil
}

func (c *CachedStore) ListStaff(ctx context.Context, businessID string) ([]Staff, error) {
	snap, err := c.load(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return snap.Staff, nil
}

func (c *CachedStore) ListFAQ(ctx context.Context, businessID string) ([]FAQEntry, error) {
	snap, err := c.load(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return snap.FAQ, nil
}

func (c *CachedStore) ListBusinesses(ctx context.Context) ([]Business, error) {
	return c.next.ListBusinesses(ctx)
}

func (c *CachedStore) ListTimeOff(ctx context.Context, businessID string, from, to time.Time) ([]TimeOff, error) {
	return c.next.ListTimeOff(ctx, businessID, from, to)
}

func (c *CachedStore) IncrementMessagesUsed(ctx context.Context, businessID string) error {
	return c.next.IncrementMessagesUsed(ctx, businessID)
}

func (c *CachedStore) GetUsage(ctx context.Context, businessID string) (Usage, error) {
	return c.next.GetUsage(ctx, businessID)
}

func (c *CachedStore) load(ctx context.Context, businessID string) (*snapshot, error) {
	key := snapshotKey(businessID)
	if data, ok := c.local.Get(key); ok {
		if snap, err := decodeSnapshot(data); err == nil {
			return snap, nil
		}
		c.local.Del(key)
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			if snap, decodeErr := decodeSnapshot(data); decodeErr == nil {
				c.setLocal(key, data)
				return snap, nil
			}
		case !errors.Is(err, redis.Nil):
			c.logger.Warn("business cache read failed", "business_id", businessID, "error", err)
		}
	}

	snap, err := c.fetch(ctx, businessID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("business: encode snapshot: %w", err)
	}
	c.setLocal(key, data)
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.remoteTTL).Err(); err != nil {
			c.logger.Warn("business cache write failed", "business_id", businessID, "error", err)
		}
	}
	return snap, nil
}

func (c *CachedStore) fetch(ctx context.Context, businessID string) (*snapshot, error) {
	b, err := c.next.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	services, err := c.next.ListServices(ctx, businessID)
	if err != nil {
		return nil, err
	}
	staff, err := c.next.ListStaff(ctx, businessID)
	if err != nil {
		return nil, err
	}
	faq, err := c.next.ListFAQ(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return &snapshot{Business: *b, Services: services, Staff: staff, FAQ: faq}, nil
}

func (c *CachedStore) setLocal(key string, data []byte) {
	c.local.SetWithTTL(key, data, int64(len(data)), c.localTTL)
	c.local.Wait()
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func snapshotKey(businessID string) string {
	return fmt.Sprintf("business:snapshot:%s", businessID)
}
