// Package reward decides what a completed reward session is worth and makes
// sure completion is reported once.
package reward

import "dingleup-reward-service/internal/domain"

// Policy holds the fixed grants of events that do not double an original value.
type Policy struct {
	RefillCoins int
	RefillLives int
}

// DefaultPolicy refills five lives.
func DefaultPolicy() Policy {
	return Policy{RefillLives: 5}
}

// Grant returns the wallet credit owed for event. Daily gifts and game-end
// rewards are doubled, so the extra credit equals the original value.
func (p Policy) Grant(event domain.EventType, originalReward int) domain.Grant {
	switch event {
	case domain.EventRefill:
		return domain.Grant{Coins: p.RefillCoins, Lives: p.RefillLives}
	case domain.EventDailyGift, domain.EventGameEnd:
		if originalReward <= 0 {
			return domain.Grant{}
		}
		return domain.Grant{Coins: originalReward}
	}
	return domain.Grant{}
}

// IdempotencyKey derives the wallet idempotency key of a session.
func IdempotencyKey(sessionID string) string {
	return "reward-session:" + sessionID
}

// WatchedInSession keeps the reported ids that were actually served in s,
// deduplicated, in report order.
func WatchedInSession(s domain.RewardSession, reported []string) []string {
	seen := make(map[string]struct{}, len(reported))
	out := make([]string, 0, len(reported))
	for _, id := range reported {
		if _, dup := seen[id]; dup || !s.Contains(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
