package http

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/infra/memory"
	"dingleup-reward-service/internal/reward"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service *app.RewardService
	ledger  *memory.Ledger
	clock   *testClock
}

func newFixture(t *testing.T, catalog app.CatalogRepository) fixture {
	t.Helper()
	clock := newTestClock()
	if catalog == nil {
		catalog = sampleCatalog(clock.Now())
	}
	ledger := memory.NewLedger()
	service := app.NewRewardServiceWithDeps(catalog, memory.NewSessionStore(), ledger, app.Config{
		StorageBaseURL:  "https://cdn.example.com",
		SegmentDuration: 15 * time.Second,
		Grants:          reward.DefaultPolicy(),
	}, zerolog.Nop(), clock.Now, rand.New(rand.NewSource(7)))
	return fixture{service: service, ledger: ledger, clock: clock}
}

func sampleCatalog(now time.Time) *memory.StaticCatalog {
	expires := now.Add(30 * 24 * time.Hour)
	return memory.NewStaticCatalog().
		AddVideo(domain.SponsoredVideo{ID: "v1", CreatorID: "c1", Platform: domain.PlatformTikTok, AssetPath: "c1/v1.mp4", RedirectURL: "https://tiktok.com/@c1", IsActive: true, ExpiresAt: expires}).
		AddVideo(domain.SponsoredVideo{ID: "v2", CreatorID: "c1", Platform: domain.PlatformYouTube, AssetPath: "c1/v2.mp4", RedirectURL: "https://youtube.com/@c1", IsActive: true, ExpiresAt: expires}).
		SetSubscription("c1", domain.SubscriptionActive)
}

type failingCatalog struct {
	*memory.StaticCatalog
}

func (failingCatalog) CandidateVideos(context.Context, time.Time) ([]domain.SponsoredVideo, error) {
	return nil, errors.New("connection refused")
}
