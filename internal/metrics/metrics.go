// Package metrics declares the Prometheus collectors of the reward service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dingleup_rewards"

var (
	playlistRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_requests_total",
			Help:      "Reward playlist requests by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	globalFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "country_global_fallback_total",
			Help:      "Playlists served from the global pool because nothing targeted the viewer country.",
		},
	)

	relevantPicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topic_relevant_playlists_total",
			Help:      "Playlists by whether they were restricted to the viewer's top topics.",
		},
		[]string{"relevant"},
	)

	completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_completions_total",
			Help:      "Reward session completion reports by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_exceeded_total",
			Help:      "Playlist requests rejected by the per-user limiter.",
		},
	)

	candidateCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_cache_total",
			Help:      "Candidate pool cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Completion outcomes.
const (
	OutcomeCredited  = "credited"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// ObservePlaylist records one playlist request.
func ObservePlaylist(eventType, outcome string, globalFallback, relevant bool) {
	playlistRequests.WithLabelValues(eventType, outcome).Inc()
	if outcome != "ok" {
		return
	}
	if globalFallback {
		globalFallbacks.Inc()
	}
	if relevant {
		relevantPicks.WithLabelValues("true").Inc()
	} else {
		relevantPicks.WithLabelValues("false").Inc()
	}
}

// ObserveCompletion records one completion report.
func ObserveCompletion(eventType, outcome string) {
	completions.WithLabelValues(eventType, outcome).Inc()
}

// ObserveRateLimited records a rejected request.
func ObserveRateLimited() {
	rateLimited.Inc()
}

// ObserveCache records a candidate cache hit or miss.
func ObserveCache(hit bool) {
	if hit {
		candidateCache.WithLabelValues("hit").Inc()
		return
	}
	candidateCache.WithLabelValues("miss").Inc()
}
