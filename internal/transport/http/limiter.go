package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dingleup-reward-service/internal/metrics"
)

// UserLimiter throttles playlist requests per user. Limiters idle for longer
// than the cleanup interval are dropped.
type UserLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	users       map[string]*userEntry
	lastCleanup time.Time
	cleanup     time.Duration
}

type userEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserLimiter allows perMinute requests per user with the given burst.
// perMinute <= 0 disables limiting.
func NewUserLimiter(perMinute, burst int) *UserLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return &UserLimiter{
		limit:       limit,
		burst:       burst,
		now:         time.Now,
		users:       make(map[string]*userEntry),
		lastCleanup: time.Now(),
		cleanup:     5 * time.Minute,
	}
}

// Allow reports whether userID may make another request now.
func (l *UserLimiter) Allow(userID string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	entry, ok := l.users[userID]
	if !ok {
		entry = &userEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = entry
	}
	entry.lastSeen = now
	l.maybeCleanupLocked(now)
	l.mu.Unlock()

	if !entry.limiter.AllowN(now, 1) {
		metrics.ObserveRateLimited()
		return false
	}
	return true
}

func (l *UserLimiter) maybeCleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cleanup {
		return
	}
	for id, entry := range l.users {
		if now.Sub(entry.lastSeen) > l.cleanup {
			delete(l.users, id)
		}
	}
	l.lastCleanup = now
}
