package selection

import (
	"sort"

	"dingleup-reward-service/internal/domain"
)

const (
	// MinCorrectForInterests is the total correct-answer count below which topic affinity is ignored.
	MinCorrectForInterests = 100
	// TopInterestCount is how many topics define a viewer's interests.
	TopInterestCount = 3
)

// RankedPool is the candidate pool after targeting and relevance biasing.
type RankedPool struct {
	Videos         []domain.SponsoredVideo
	GlobalFallback bool // no video targeted the viewer's country
	Relevant       bool // pool restricted to the viewer's top topics
}

// TopInterests returns the viewer's top topic ids, or nil when the profile is too sparse.
func TopInterests(profile domain.AffinityProfile) []int {
	if profile.TotalCorrect < MinCorrectForInterests || len(profile.Topics) == 0 {
		return nil
	}
	topics := make([]domain.TopicAffinity, len(profile.Topics))
	copy(topics, profile.Topics)
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].CorrectCount > topics[j].CorrectCount
	})
	n := TopInterestCount
	if len(topics) < n {
		n = len(topics)
	}
	ids := make([]int, 0, n)
	for _, t := range topics[:n] {
		ids = append(ids, t.TopicID)
	}
	return ids
}

// Rank narrows eligible videos by country and biases them toward the viewer's topics.
//
// countryTargets is nil when the viewer has no country; an empty non-nil set
// means nothing targets the country. Both fall back to the global pool, but
// only the latter is reported as a fallback.
func Rank(eligible []domain.SponsoredVideo, countryTargets map[string]struct{}, topTopics []int) RankedPool {
	working := eligible
	fallback := false
	if countryTargets != nil {
		local := make([]domain.SponsoredVideo, 0, len(eligible))
		for _, v := range eligible {
			if _, ok := countryTargets[v.ID]; ok {
				local = append(local, v)
			}
		}
		if len(local) > 0 {
			working = local
		} else {
			fallback = true
		}
	}

	if len(working) <= 1 || len(topTopics) == 0 {
		return RankedPool{
			Videos:         working,
			GlobalFallback: fallback,
			Relevant:       len(working) == 1 && matchesTopics(working[0], topTopics),
		}
	}

	relevant := make([]domain.SponsoredVideo, 0, len(working))
	for _, v := range working {
		if matchesTopics(v, topTopics) {
			relevant = append(relevant, v)
		}
	}
	if len(relevant) == 0 {
		return RankedPool{Videos: working, GlobalFallback: fallback}
	}
	return RankedPool{Videos: relevant, GlobalFallback: fallback, Relevant: true}
}

func matchesTopics(v domain.SponsoredVideo, topics []int) bool {
	for _, want := range topics {
		for _, have := range v.TopicIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}
