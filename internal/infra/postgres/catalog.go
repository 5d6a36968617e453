package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"dingleup-reward-service/internal/domain"
)

// Catalog reads sponsored videos, creator subscriptions and user targeting
// data from Postgres. The tables belong to the creator and profile services;
// this service only reads them.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

const candidateVideosSQL = `
SELECT v.id, v.creator_id, COALESCE(v.video_group_id, ''), v.platform, v.asset_path, v.redirect_url,
       v.duration_seconds, COALESCE(v.creator_name, ''), v.status, v.is_active, v.expires_at,
       ARRAY(SELECT t.topic_id FROM creator_video_topics t WHERE t.video_id = v.id ORDER BY t.topic_id),
       ARRAY(SELECT c.country_code FROM creator_video_countries c WHERE c.video_id = v.id ORDER BY c.country_code)
FROM creator_videos v
WHERE v.is_active AND v.expires_at > $1
ORDER BY v.id`

func (c *Catalog) CandidateVideos(ctx context.Context, now time.Time) ([]domain.SponsoredVideo, error) {
	rows, err := c.pool.Query(ctx, candidateVideosSQL, now)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.SponsoredVideo
	for rows.Next() {
		var (
			v        domain.SponsoredVideo
			platform string
			status   string
			topics   []int32
		)
		if err := rows.Scan(&v.ID, &v.CreatorID, &v.VideoGroupID, &platform, &v.AssetPath, &v.RedirectURL,
			&v.DurationSeconds, &v.CreatorName, &status, &v.IsActive, &v.ExpiresAt, &topics, &v.CountryCodes); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		v.Platform = domain.Platform(platform)
		v.Status = domain.VideoStatus(status)
		for _, id := range topics {
			v.TopicIDs = append(v.TopicIDs, int(id))
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return out, nil
}

func (c *Catalog) SubscriptionStatuses(ctx context.Context, creatorIDs []string) (map[string]domain.SubscriptionStatus, error) {
	out := make(map[string]domain.SubscriptionStatus, len(creatorIDs))
	if len(creatorIDs) == 0 {
		return out, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT creator_id, status FROM creator_subscriptions WHERE creator_id = ANY($1)`, creatorIDs)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out[id] = domain.SubscriptionStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	return out, nil
}

// TopicAffinities returns the user's ten strongest topics and the correct
// answer total across all topics.
func (c *Catalog) TopicAffinities(ctx context.Context, userID string) (domain.AffinityProfile, error) {
	profile := domain.AffinityProfile{}
	var total int64
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(SUM(correct_count), 0) FROM user_topic_stats WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return profile, fmt.Errorf("load affinity total: %w", err)
	}
	profile.TotalCorrect = int(total)

	rows, err := c.pool.Query(ctx, `
SELECT topic_id, correct_count FROM user_topic_stats
WHERE user_id = $1
ORDER BY correct_count DESC, topic_id
LIMIT 10`, userID)
	if err != nil {
		return profile, fmt.Errorf("load affinities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var topic domain.TopicAffinity
		if err := rows.Scan(&topic.TopicID, &topic.CorrectCount); err != nil {
			return profile, fmt.Errorf("scan affinity: %w", err)
		}
		profile.Topics = append(profile.Topics, topic)
	}
	if err := rows.Err(); err != nil {
		return profile, fmt.Errorf("load affinities: %w", err)
	}
	return profile, nil
}

func (c *Catalog) CountryTargets(ctx context.Context, countryCode string) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT video_id FROM creator_video_countries WHERE country_code = $1`, countryCode)
	if err != nil {
		return nil, fmt.Errorf("load country targets: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan country target: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load country targets: %w", err)
	}
	return ids, nil
}

func (c *Catalog) UserCountry(ctx context.Context, userID string) (string, error) {
	var country string
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(country_code, '') FROM user_profiles WHERE user_id = $1`, userID).Scan(&country)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load user country: %w", err)
	}
	return country, nil
}
