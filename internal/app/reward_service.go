package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/metrics"
	"dingleup-reward-service/internal/reward"
	"dingleup-reward-service/internal/selection"
)

// CatalogRepository answers the read-only queries selection needs. Its data is
// owned by other services.
type CatalogRepository interface {
	// CandidateVideos returns videos with is_active and expires_at > now.
	CandidateVideos(ctx context.Context, now time.Time) ([]domain.SponsoredVideo, error)
	SubscriptionStatuses(ctx context.Context, creatorIDs []string) (map[string]domain.SubscriptionStatus, error)
	TopicAffinities(ctx context.Context, userID string) (domain.AffinityProfile, error)
	CountryTargets(ctx context.Context, countryCode string) ([]string, error)
	// UserCountry returns "" when the user has no country on file.
	UserCountry(ctx context.Context, userID string) (string, error)
}

// SessionRepository persists reward sessions (in-memory, Redis, Postgres).
type SessionRepository interface {
	Create(ctx context.Context, session domain.RewardSession) error
	Get(ctx context.Context, sessionID string) (domain.RewardSession, error)
	// MarkCompleted moves a pending session to completed and reports whether
	// this call performed the transition.
	MarkCompleted(ctx context.Context, sessionID string, watchedVideoIDs []string, at time.Time) (bool, error)
	// PurgeStale deletes pending sessions created before the cutoff.
	PurgeStale(ctx context.Context, before time.Time) (int, error)
}

// CreditRequest is one idempotent wallet credit.
type CreditRequest struct {
	UserID         string `json:"userId"`
	IdempotencyKey string `json:"idempotencyKey"`
	Coins          int    `json:"coins"`
	Lives          int    `json:"lives"`
	Reason         string `json:"reason"`
}

// Wallet credits coins and lives. Implementations must treat a repeated
// idempotency key as a no-op.
type Wallet interface {
	Credit(ctx context.Context, req CreditRequest) error
}

// Config tunes RewardService.
type Config struct {
	StorageBaseURL  string
	SegmentDuration time.Duration
	SessionTTL      time.Duration
	Grants          reward.Policy
}

// RewardService contains the reward-video use cases.
type RewardService struct {
	catalog  CatalogRepository
	sessions SessionRepository
	wallet   Wallet
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	completions singleflight.Group
}

func NewRewardService(catalog CatalogRepository, sessions SessionRepository, wallet Wallet, cfg Config, logger zerolog.Logger) *RewardService {
	return NewRewardServiceWithDeps(catalog, sessions, wallet, cfg, logger, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewRewardServiceWithDeps is test-only for a deterministic clock and random source.
func NewRewardServiceWithDeps(catalog CatalogRepository, sessions SessionRepository, wallet Wallet, cfg Config, logger zerolog.Logger, now func() time.Time, rnd *rand.Rand) *RewardService {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = 15 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &RewardService{
		catalog:  catalog,
		sessions: sessions,
		wallet:   wallet,
		cfg:      cfg,
		logger:   logger,
		now:      now,
		rnd:      rnd,
	}
}

// SegmentDuration is the mandatory watch time per video.
func (s *RewardService) SegmentDuration() time.Duration {
	return s.cfg.SegmentDuration
}

// RequestRewardPlaylist selects, orders and records a playlist for a trigger
// event. Data problems are reported in the result; the error is only set for
// an invalid request.
func (s *RewardService) RequestRewardPlaylist(ctx context.Context, req domain.PlaylistRequest) (domain.PlaylistResult, error) {
	event, err := domain.ParseEventType(string(req.EventType))
	if err != nil {
		return domain.PlaylistResult{}, err
	}
	if req.UserID == "" {
		return domain.PlaylistResult{}, fmt.Errorf("user id required")
	}
	logger := s.logger.With().Str("user_id", req.UserID).Str("event_type", string(event)).Logger()
	now := s.now()

	fail := func(code string, cause error) domain.PlaylistResult {
		outcome := "no_videos"
		if code == domain.CodeDatabaseError {
			outcome = "database_error"
			logger.Error().Err(fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, cause)).Msg("reward playlist lookup failed")
		} else {
			logger.Info().Err(cause).Msg("no sponsored videos available")
		}
		metrics.ObservePlaylist(string(event), outcome, false, false)
		return domain.PlaylistResult{Success: false, Error: code}
	}

	candidates, err := s.catalog.CandidateVideos(ctx, now)
	if err != nil {
		return fail(domain.CodeDatabaseError, err), nil
	}
	if len(candidates) == 0 {
		return fail(domain.CodeNoVideosAvailable, domain.ErrNoVideosAvailable), nil
	}

	statuses, err := s.catalog.SubscriptionStatuses(ctx, selection.CreatorIDs(candidates))
	if err != nil {
		return fail(domain.CodeDatabaseError, err), nil
	}
	eligible := selection.FilterEligible(candidates, selection.ActiveCreators(statuses), selection.StringSet(req.ExcludeVideoIDs), now)
	if len(eligible) == 0 {
		return fail(domain.CodeNoVideosAvailable, domain.ErrNoVideosAvailable), nil
	}

	var (
		country string
		profile domain.AffinityProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		country, err = s.catalog.UserCountry(gctx, req.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		profile, err = s.catalog.TopicAffinities(gctx, req.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(domain.CodeDatabaseError, err), nil
	}

	var targets map[string]struct{}
	if country != "" {
		ids, err := s.catalog.CountryTargets(ctx, country)
		if err != nil {
			return fail(domain.CodeDatabaseError, err), nil
		}
		targets = selection.StringSet(ids)
	}

	ranked := selection.Rank(eligible, targets, selection.TopInterests(profile))
	required := event.VideosRequired()

	s.rndMu.Lock()
	ordered := selection.Sequence(ranked.Videos, required, s.rnd)
	s.rndMu.Unlock()
	playlist := selection.BuildPlaylist(ordered, s.cfg.StorageBaseURL)

	session := domain.RewardSession{
		ID:             newSessionID(req.UserID, event, now),
		UserID:         req.UserID,
		EventType:      event,
		VideosRequired: required,
		OriginalReward: req.OriginalReward,
		VideoIDs:       videoIDs(playlist),
		Status:         domain.SessionPending,
		CreatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		logger.Warn().Err(err).Str("session_id", session.ID).Msg("reward session not persisted")
	}

	if ranked.GlobalFallback {
		logger.Info().Str("country", country).Msg("no country-targeted videos, using global pool")
	}
	logger.Debug().
		Str("session_id", session.ID).
		Bool("global_fallback", ranked.GlobalFallback).
		Bool("relevant", ranked.Relevant).
		Strs("video_ids", session.VideoIDs).
		Msg("reward playlist issued")
	metrics.ObservePlaylist(string(event), "ok", ranked.GlobalFallback, ranked.Relevant)

	return domain.PlaylistResult{
		Success:         true,
		RewardSessionID: session.ID,
		Videos:          playlist,
		VideosRequired:  required,
		EventType:       event,
		OriginalReward:  req.OriginalReward,
		GlobalFallback:  ranked.GlobalFallback,
		Relevant:        ranked.Relevant,
	}, nil
}

// GetSession returns a session owned by userID.
func (s *RewardService) GetSession(ctx context.Context, sessionID, userID string) (domain.RewardSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.RewardSession{}, err
	}
	if session.UserID != userID {
		return domain.RewardSession{}, domain.ErrSessionForbidden
	}
	return session, nil
}

// CompleteSession reconciles a finished watch: it credits the session's grant
// through the wallet, keyed by the session id, and marks the session
// completed. Reports for an already completed session, or concurrent
// duplicates, credit nothing.
func (s *RewardService) CompleteSession(ctx context.Context, sessionID, userID string, watchedVideoIDs []string) (domain.CompletionResult, error) {
	// concurrent reports for one session wait for the first and share its outcome
	leader := false
	v, err, _ := s.completions.Do(sessionID+"\x00"+userID, func() (interface{}, error) {
		leader = true
		return s.completeSession(ctx, sessionID, userID, watchedVideoIDs)
	})
	if err != nil {
		return domain.CompletionResult{}, err
	}
	result := v.(domain.CompletionResult)
	if !leader && result.Credited {
		result.Credited = false
		result.AlreadyCompleted = true
	}
	return result, nil
}

func (s *RewardService) completeSession(ctx context.Context, sessionID, userID string, watchedVideoIDs []string) (domain.CompletionResult, error) {
	session, err := s.GetSession(ctx, sessionID, userID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	logger := s.logger.With().
		Str("session_id", session.ID).
		Str("user_id", session.UserID).
		Str("event_type", string(session.EventType)).
		Logger()

	if session.Status == domain.SessionCompleted {
		metrics.ObserveCompletion(string(session.EventType), metrics.OutcomeDuplicate)
		return domain.CompletionResult{
			SessionID:        session.ID,
			AlreadyCompleted: true,
			WatchedVideoIDs:  session.WatchedVideoIDs,
		}, nil
	}

	now := s.now()
	required := time.Duration(session.VideosRequired) * s.cfg.SegmentDuration
	if now.Sub(session.CreatedAt) < required {
		logger.Warn().Dur("since_issue", now.Sub(session.CreatedAt)).Msg("completion reported before required watch time")
		return domain.CompletionResult{}, domain.ErrGateNotReady
	}

	watched := reward.WatchedInSession(session, watchedVideoIDs)
	if len(watched) == 0 {
		return domain.CompletionResult{}, domain.ErrNothingWatched
	}

	grant := s.cfg.Grants.Grant(session.EventType, session.OriginalReward)
	if !grant.IsZero() {
		err := s.wallet.Credit(ctx, CreditRequest{
			UserID:         session.UserID,
			IdempotencyKey: reward.IdempotencyKey(session.ID),
			Coins:          grant.Coins,
			Lives:          grant.Lives,
			Reason:         "reward_video:" + string(session.EventType),
		})
		if err != nil {
			metrics.ObserveCompletion(string(session.EventType), metrics.OutcomeFailed)
			logger.Error().Err(err).Msg("wallet credit failed")
			if errors.Is(err, domain.ErrCreditRejected) {
				return domain.CompletionResult{}, err
			}
			return domain.CompletionResult{}, fmt.Errorf("%w: %w", domain.ErrWalletUnavailable, err)
		}
	}

	first, err := s.sessions.MarkCompleted(ctx, session.ID, watched, now)
	if err != nil {
		// the credit is idempotent, so a retried report is safe
		logger.Error().Err(err).Msg("mark session completed failed")
		return domain.CompletionResult{}, err
	}
	if !first {
		metrics.ObserveCompletion(string(session.EventType), metrics.OutcomeDuplicate)
		return domain.CompletionResult{SessionID: session.ID, AlreadyCompleted: true, WatchedVideoIDs: watched}, nil
	}

	metrics.ObserveCompletion(string(session.EventType), metrics.OutcomeCredited)
	logger.Info().
		Int("coins", grant.Coins).
		Int("lives", grant.Lives).
		Strs("watched_video_ids", watched).
		Msg("reward session completed")
	return domain.CompletionResult{
		SessionID:       session.ID,
		Credited:        true,
		WatchedVideoIDs: watched,
		Grant:           grant,
	}, nil
}

// PurgeOrphanSessions removes pending sessions older than the session TTL.
func (s *RewardService) PurgeOrphanSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.PurgeStale(ctx, s.now().Add(-s.cfg.SessionTTL))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("purged", n).Msg("purged orphaned reward sessions")
	}
	return n, nil
}

// IsNotFound reports whether err means the session does not exist for the caller.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionForbidden)
}

func newSessionID(userID string, event domain.EventType, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s_%d_%s", userID, event, now.UnixMilli(), suffix)
}

func videoIDs(playlist []domain.PlaylistVideo) []string {
	ids := make([]string, 0, len(playlist))
	for _, v := range playlist {
		ids = append(ids, v.ID)
	}
	return ids
}
