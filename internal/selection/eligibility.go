// Package selection picks and orders sponsored videos for a reward playlist.
//
// The pipeline is FilterEligible -> Rank -> Sequence. Every step is a pure
// function over its inputs; randomness comes from an injected *rand.Rand.
package selection

import (
	"time"

	"dingleup-reward-service/internal/domain"
)

// ActiveCreators builds the set of creator ids whose subscription allows serving.
func ActiveCreators(statuses map[string]domain.SubscriptionStatus) map[string]struct{} {
	active := make(map[string]struct{}, len(statuses))
	for creatorID, status := range statuses {
		if status.Serving() {
			active[creatorID] = struct{}{}
		}
	}
	return active
}

// FilterEligible returns the candidates that may be served at now.
//
// Activity and expiry are checked again here even though the candidate query
// already filters on them: the pool may come from a cache.
func FilterEligible(candidates []domain.SponsoredVideo, activeCreators map[string]struct{}, exclude map[string]struct{}, now time.Time) []domain.SponsoredVideo {
	out := make([]domain.SponsoredVideo, 0, len(candidates))
	for _, v := range candidates {
		if _, ok := activeCreators[v.CreatorID]; !ok {
			continue
		}
		if v.AssetPath == "" {
			continue
		}
		if _, skip := exclude[v.ID]; skip {
			continue
		}
		if !v.LiveAt(now) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// CreatorIDs returns the distinct creator ids referenced by videos, in first-seen order.
func CreatorIDs(videos []domain.SponsoredVideo) []string {
	seen := make(map[string]struct{}, len(videos))
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		if _, ok := seen[v.CreatorID]; ok {
			continue
		}
		seen[v.CreatorID] = struct{}{}
		ids = append(ids, v.CreatorID)
	}
	return ids
}

// StringSet converts ids into a lookup set.
func StringSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
