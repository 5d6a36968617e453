package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/metrics"
)

// CachedCatalog caches the candidate pool with TTL to avoid a query per
// playlist request. Every other query goes straight to the wrapped catalog.
// Cached rows can outlive their expiry, so callers must re-check liveness.
type CachedCatalog struct {
	app.CatalogRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	rndMu sync.Mutex

	mu      sync.RWMutex
	loaded  bool
	pool    []domain.SponsoredVideo
	expires time.Time
}

func NewCachedCatalog(catalog app.CatalogRepository, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		CatalogRepository: catalog,
		ttl:               ttl,
		clock:             time.Now,
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const candidatesKey = "candidates"

func (c *CachedCatalog) CandidateVideos(ctx context.Context, now time.Time) ([]domain.SponsoredVideo, error) {
	if c.ttl <= 0 {
		return c.CatalogRepository.CandidateVideos(ctx, now)
	}
	if pool, ok := c.cached(); ok {
		metrics.ObserveCache(true)
		return pool, nil
	}

	result, err, _ := c.sf.Do(candidatesKey, func() (interface{}, error) {
		if pool, ok := c.cached(); ok {
			return pool, nil
		}
		metrics.ObserveCache(false)
		pool, err := c.CatalogRepository.CandidateVideos(ctx, now)
		if err != nil {
			return nil, err
		}
		expires := c.clock().Add(c.ttlWithJitter())
		c.mu.Lock()
		c.loaded = true
		c.pool = pool
		c.expires = expires
		c.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.SponsoredVideo), nil
}

// Invalidate drops the cached pool, e.g. after moderation.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.pool = nil
	c.expires = time.Time{}
	c.mu.Unlock()
}

func (c *CachedCatalog) cached() ([]domain.SponsoredVideo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded && c.expires.After(c.clock()) {
		return c.pool, true
	}
	return nil, false
}

func (c *CachedCatalog) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
