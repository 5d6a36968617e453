package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/metrics"
)

// CandidateCache shares the candidate pool across instances through Redis and
// falls back to the wrapped catalog on a miss. Other catalog queries pass
// through untouched.
// The pool is stored as: SET reward:candidates <json array> EX ttl
type CandidateCache struct {
	app.CatalogRepository
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCandidateCache(client *redis.Client, catalog app.CatalogRepository, ttl time.Duration) *CandidateCache {
	return &CandidateCache{
		CatalogRepository: catalog,
		client:            client,
		ttl:               ttl,
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const candidatesKey = "reward:candidates"

func (c *CandidateCache) CandidateVideos(ctx context.Context, now time.Time) ([]domain.SponsoredVideo, error) {
	if pool, ok := c.cached(ctx); ok {
		metrics.ObserveCache(true)
		return pool, nil
	}

	result, err, _ := c.sf.Do(candidatesKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := c.cached(ctx); ok {
			return pool, nil
		}
		metrics.ObserveCache(false)
		pool, err := c.CatalogRepository.CandidateVideos(ctx, now)
		if err != nil {
			return nil, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			if payload, err := json.Marshal(pool); err == nil {
				_ = c.client.Set(ctx, candidatesKey, payload, ttl).Err()
			}
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.SponsoredVideo), nil
}

// Invalidate removes the shared pool so the next request reloads it.
func (c *CandidateCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, candidatesKey).Err()
}

func (c *CandidateCache) cached(ctx context.Context) ([]domain.SponsoredVideo, bool) {
	raw, err := c.client.Get(ctx, candidatesKey).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.SponsoredVideo
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, false
	}
	return pool, true
}

func (c *CandidateCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
