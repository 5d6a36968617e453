package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dingleup-reward-service/internal/domain"
)

// StaticCatalog is a catalog backed by in-memory maps (useful for tests/demos).
type StaticCatalog struct {
	mu            sync.RWMutex
	videos        []domain.SponsoredVideo
	subscriptions map[string]domain.SubscriptionStatus
	affinities    map[string]map[int]int
	countries     map[string]string
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		subscriptions: make(map[string]domain.SubscriptionStatus),
		affinities:    make(map[string]map[int]int),
		countries:     make(map[string]string),
	}
}

// AddVideo registers a sponsored video.
func (c *StaticCatalog) AddVideo(v domain.SponsoredVideo) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos = append(c.videos, v)
	return c
}

// SetSubscription sets a creator's subscription status.
func (c *StaticCatalog) SetSubscription(creatorID string, status domain.SubscriptionStatus) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[creatorID] = status
	return c
}

// SetAffinity sets a user's correct-answer count for a topic.
func (c *StaticCatalog) SetAffinity(userID string, topicID, correct int) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.affinities[userID] == nil {
		c.affinities[userID] = make(map[int]int)
	}
	c.affinities[userID][topicID] = correct
	return c
}

// SetUserCountry sets a user's country code.
func (c *StaticCatalog) SetUserCountry(userID, country string) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countries[userID] = country
	return c
}

func (c *StaticCatalog) CandidateVideos(_ context.Context, now time.Time) ([]domain.SponsoredVideo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SponsoredVideo, 0, len(c.videos))
	for _, v := range c.videos {
		if v.LiveAt(now) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *StaticCatalog) SubscriptionStatuses(_ context.Context, creatorIDs []string) (map[string]domain.SubscriptionStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.SubscriptionStatus, len(creatorIDs))
	for _, id := range creatorIDs {
		if status, ok := c.subscriptions[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (c *StaticCatalog) TopicAffinities(_ context.Context, userID string) (domain.AffinityProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	profile := domain.AffinityProfile{}
	for topicID, count := range c.affinities[userID] {
		profile.Topics = append(profile.Topics, domain.TopicAffinity{TopicID: topicID, CorrectCount: count})
		profile.TotalCorrect += count
	}
	sort.Slice(profile.Topics, func(i, j int) bool {
		if profile.Topics[i].CorrectCount != profile.Topics[j].CorrectCount {
			return profile.Topics[i].CorrectCount > profile.Topics[j].CorrectCount
		}
		return profile.Topics[i].TopicID < profile.Topics[j].TopicID
	})
	if len(profile.Topics) > 10 {
		profile.Topics = profile.Topics[:10]
	}
	return profile, nil
}

func (c *StaticCatalog) CountryTargets(_ context.Context, countryCode string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for _, v := range c.videos {
		for _, cc := range v.CountryCodes {
			if cc == countryCode {
				ids = append(ids, v.ID)
				break
			}
		}
	}
	return ids, nil
}

func (c *StaticCatalog) UserCountry(_ context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.countries[userID], nil
}
