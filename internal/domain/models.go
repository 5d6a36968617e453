package domain

import "time"

// Platform is the social channel a sponsored video was produced for.
type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformTikTok, PlatformYouTube, PlatformInstagram, PlatformFacebook:
		return true
	}
	return false
}

// VideoStatus is the moderation lifecycle of a sponsored video.
type VideoStatus string

const (
	VideoStatusActive   VideoStatus = "active"
	VideoStatusInactive VideoStatus = "inactive"
	VideoStatusExpired  VideoStatus = "expired"
)

// SponsoredVideo is a single creator-submitted video asset.
type SponsoredVideo struct {
	ID              string      `json:"id"`
	CreatorID       string      `json:"creatorId"`
	VideoGroupID    string      `json:"videoGroupId,omitempty"`
	Platform        Platform    `json:"platform"`
	AssetPath       string      `json:"assetPath"`
	RedirectURL     string      `json:"redirectUrl"`
	DurationSeconds int         `json:"durationSeconds"`
	CreatorName     string      `json:"creatorName,omitempty"`
	Status          VideoStatus `json:"status"`
	IsActive        bool        `json:"isActive"`
	ExpiresAt       time.Time   `json:"expiresAt"`
	TopicIDs        []int       `json:"topicIds,omitempty"`
	CountryCodes    []string    `json:"countryCodes,omitempty"`
}

// LiveAt reports whether the video itself (ignoring its creator) may be served at now.
func (v SponsoredVideo) LiveAt(now time.Time) bool {
	return v.IsActive && now.Before(v.ExpiresAt)
}

// SubscriptionStatus is the billing state of a creator.
type SubscriptionStatus string

const (
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrial             SubscriptionStatus = "trial"
	SubscriptionActiveTrial       SubscriptionStatus = "active_trial"
	SubscriptionCancelAtPeriodEnd SubscriptionStatus = "cancel_at_period_end"
	SubscriptionInactive          SubscriptionStatus = "inactive"
)

// Serving reports whether a creator in this status may have videos served.
func (s SubscriptionStatus) Serving() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrial, SubscriptionActiveTrial, SubscriptionCancelAtPeriodEnd:
		return true
	}
	return false
}

// CreatorSubscription is the billing/access state for a creator.
type CreatorSubscription struct {
	CreatorID        string             `json:"creatorId"`
	Status           SubscriptionStatus `json:"status"`
	CurrentPeriodEnd time.Time          `json:"currentPeriodEnd"`
}

// TopicAffinity is one row of a user's interest ranking.
type TopicAffinity struct {
	TopicID      int `json:"topicId"`
	CorrectCount int `json:"correctCount"`
}

// AffinityProfile is the topic affinity query result for one user.
type AffinityProfile struct {
	Topics       []TopicAffinity `json:"topics"` // at most 10, descending by CorrectCount
	TotalCorrect int             `json:"totalCorrect"`
}

// EventType is the UI action that triggered a reward video.
type EventType string

const (
	EventDailyGift EventType = "daily_gift"
	EventGameEnd   EventType = "game_end"
	EventRefill    EventType = "refill"
)

// ParseEventType validates a raw event type.
func ParseEventType(raw string) (EventType, error) {
	switch e := EventType(raw); e {
	case EventDailyGift, EventGameEnd, EventRefill:
		return e, nil
	}
	return "", ErrUnknownEventType
}

// VideosRequired is the number of playback segments the event demands.
func (e EventType) VideosRequired() int {
	if e == EventRefill {
		return 2
	}
	return 1
}

// SessionStatus is the lifecycle state of a reward session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
)

// RewardSession ties a trigger event to the exact playlist served for it.
type RewardSession struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	EventType       EventType     `json:"eventType"`
	VideosRequired  int           `json:"videosRequired"`
	OriginalReward  int           `json:"originalReward"`
	VideoIDs        []string      `json:"videoIds"`
	Status          SessionStatus `json:"status"`
	WatchedVideoIDs []string      `json:"watchedVideoIds,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
}

// Contains reports whether videoID was served in this session.
func (s RewardSession) Contains(videoID string) bool {
	for _, id := range s.VideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}

// PlaylistVideo is a playable descriptor handed to clients.
type PlaylistVideo struct {
	ID         string   `json:"id"`
	VideoURL   string   `json:"videoUrl"`
	ChannelURL string   `json:"channelUrl"`
	Platform   Platform `json:"platform"`
}

// PlaylistRequest asks for a reward playlist for one trigger event.
type PlaylistRequest struct {
	UserID          string
	EventType       EventType
	OriginalReward  int
	ExcludeVideoIDs []string
}

// PlaylistResult is the outcome of a playlist request. Failures are values, not errors.
type PlaylistResult struct {
	Success         bool            `json:"success"`
	Error           string          `json:"error,omitempty"`
	RewardSessionID string          `json:"rewardSessionId,omitempty"`
	Videos          []PlaylistVideo `json:"videos,omitempty"`
	VideosRequired  int             `json:"videosRequired,omitempty"`
	EventType       EventType       `json:"eventType,omitempty"`
	OriginalReward  int             `json:"originalReward,omitempty"`
	GlobalFallback  bool            `json:"-"`
	Relevant        bool            `json:"-"`
}

// Err maps a failed result to ErrNoVideosAvailable or ErrCatalogUnavailable.
func (r PlaylistResult) Err() error {
	switch r.Error {
	case "":
		return nil
	case CodeNoVideosAvailable:
		return ErrNoVideosAvailable
	default:
		return ErrCatalogUnavailable
	}
}

// Grant is the wallet credit owed for a completed session.
type Grant struct {
	Coins int `json:"coins"`
	Lives int `json:"lives"`
}

// IsZero reports whether the grant credits nothing.
func (g Grant) IsZero() bool {
	return g.Coins == 0 && g.Lives == 0
}

// CompletionResult summarizes a completion report for one session.
type CompletionResult struct {
	SessionID        string   `json:"sessionId"`
	Credited         bool     `json:"credited"`
	AlreadyCompleted bool     `json:"alreadyCompleted"`
	WatchedVideoIDs  []string `json:"watchedVideoIds"`
	Grant            Grant    `json:"grant"`
}
