package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/config"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/infra/memory"
	pginfra "dingleup-reward-service/internal/infra/postgres"
	redisinfra "dingleup-reward-service/internal/infra/redis"
	"dingleup-reward-service/internal/infra/wallet"
	"dingleup-reward-service/internal/log"
	"dingleup-reward-service/internal/retry"
	"dingleup-reward-service/internal/reward"
)

// deps is the wired service plus the resources that must be closed with it.
type deps struct {
	service *app.RewardService
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildService picks the storage backends from cfg. Without Postgres the
// sample catalog is served from memory; without Redis and Postgres sessions
// live in memory; without a wallet URL credits go to an in-memory ledger.
func buildService(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
	}

	var catalog app.CatalogRepository = sampleCatalog(time.Now())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		catalog = pginfra.NewCatalog(pool)
	} else {
		logger.Warn().Msg("postgres not configured, serving the sample catalog")
	}

	cacheTTL := config.TTLDuration(cfg.Catalog.CacheTTL, 30*time.Second)
	if redisClient != nil {
		catalog = redisinfra.NewCandidateCache(redisClient, catalog, cacheTTL)
	} else {
		catalog = memory.NewCachedCatalog(catalog, cacheTTL)
	}

	sessionTTL := config.TTLDuration(cfg.Rewards.SessionTTL, 24*time.Hour)
	var sessions app.SessionRepository
	switch {
	case cfg.Postgres.URL != "":
		db := openBunDB(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = db.Close() })
		sessions = pginfra.NewSessionStore(db)
	case redisClient != nil:
		sessions = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, sessionTTL))
	default:
		sessions = memory.NewSessionStore()
	}

	var w app.Wallet
	if cfg.Wallet.URL != "" {
		policy := retry.DefaultPolicy()
		if cfg.Wallet.Retry.MaxAttempts > 0 {
			policy.MaxAttempts = cfg.Wallet.Retry.MaxAttempts
		}
		policy.BaseDelay = config.TTLDuration(cfg.Wallet.Retry.BaseDelay, policy.BaseDelay)
		policy.MaxDelay = config.TTLDuration(cfg.Wallet.Retry.MaxDelay, policy.MaxDelay)
		w = wallet.NewClient(cfg.Wallet.URL, config.TTLDuration(cfg.Wallet.Timeout, 5*time.Second), policy, log.WithComponent("wallet"))
	} else {
		logger.Warn().Msg("wallet url not configured, crediting an in-memory ledger")
		w = memory.NewLedger()
	}

	grants := reward.DefaultPolicy()
	if cfg.Rewards.RefillLives > 0 || cfg.Rewards.RefillCoins > 0 {
		grants = reward.Policy{RefillLives: cfg.Rewards.RefillLives, RefillCoins: cfg.Rewards.RefillCoins}
	}

	d.service = app.NewRewardService(catalog, sessions, w, app.Config{
		StorageBaseURL:  cfg.Catalog.StorageBaseURL,
		SegmentDuration: cfg.SegmentDuration(),
		SessionTTL:      sessionTTL,
		Grants:          grants,
	}, log.WithComponent("reward"))
	return d, nil
}

// sampleCatalog provides a few creators and videos; swap in the Postgres catalog in production.
func sampleCatalog(now time.Time) *memory.StaticCatalog {
	expires := now.Add(90 * 24 * time.Hour)
	video := func(id, creator string, platform domain.Platform, topics []int, countries []string) domain.SponsoredVideo {
		return domain.SponsoredVideo{
			ID:              id,
			CreatorID:       creator,
			Platform:        platform,
			AssetPath:       creator + "/" + id + ".mp4",
			RedirectURL:     "https://" + string(platform) + ".com/@" + creator,
			DurationSeconds: 15,
			Status:          domain.VideoStatusActive,
			IsActive:        true,
			ExpiresAt:       expires,
			TopicIDs:        topics,
			CountryCodes:    countries,
		}
	}
	return memory.NewStaticCatalog().
		AddVideo(video("sample-tt-1", "chef-anna", domain.PlatformTikTok, []int{3}, []string{"HU"})).
		AddVideo(video("sample-yt-1", "chef-anna", domain.PlatformYouTube, []int{3}, []string{"HU"})).
		AddVideo(video("sample-ig-1", "trail-bence", domain.PlatformInstagram, []int{7}, nil)).
		AddVideo(video("sample-fb-1", "trail-bence", domain.PlatformFacebook, []int{7, 3}, nil)).
		AddVideo(video("sample-tt-2", "quiz-kata", domain.PlatformTikTok, []int{11}, []string{"AT"})).
		SetSubscription("chef-anna", domain.SubscriptionActive).
		SetSubscription("trail-bence", domain.SubscriptionTrial).
		SetSubscription("quiz-kata", domain.SubscriptionCancelAtPeriodEnd)
}
