package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"dingleup-reward-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:reward_sessions"`

	ID              string     `bun:"id,pk"`
	UserID          string     `bun:"user_id,notnull"`
	EventType       string     `bun:"event_type,notnull"`
	VideosRequired  int        `bun:"videos_required,notnull"`
	OriginalReward  int        `bun:"original_reward"`
	VideoIDs        []string   `bun:"video_ids,array"`
	Status          string     `bun:"status,notnull"`
	WatchedVideoIDs []string   `bun:"watched_video_ids,array"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	CompletedAt     *time.Time `bun:"completed_at"`
}

func rowFromSession(s domain.RewardSession) sessionRow {
	return sessionRow{
		ID:              s.ID,
		UserID:          s.UserID,
		EventType:       string(s.EventType),
		VideosRequired:  s.VideosRequired,
		OriginalReward:  s.OriginalReward,
		VideoIDs:        s.VideoIDs,
		Status:          string(s.Status),
		WatchedVideoIDs: s.WatchedVideoIDs,
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
	}
}

func (r sessionRow) session() domain.RewardSession {
	return domain.RewardSession{
		ID:              r.ID,
		UserID:          r.UserID,
		EventType:       domain.EventType(r.EventType),
		VideosRequired:  r.VideosRequired,
		OriginalReward:  r.OriginalReward,
		VideoIDs:        r.VideoIDs,
		Status:          domain.SessionStatus(r.Status),
		WatchedVideoIDs: r.WatchedVideoIDs,
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

// SessionStore persists reward sessions in the reward_sessions table.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session domain.RewardSession) error {
	row := rowFromSession(session)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.RewardSession, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RewardSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.RewardSession{}, fmt.Errorf("load session: %w", err)
	}
	return row.session(), nil
}

// MarkCompleted flips a pending row in a single conditional UPDATE, so only
// one caller sees the transition.
func (s *SessionStore) MarkCompleted(ctx context.Context, sessionID string, watchedVideoIDs []string, at time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.SessionCompleted)).
		Set("watched_video_ids = ?", pgdialect.Array(watchedVideoIDs)).
		Set("completed_at = ?", at).
		Where("id = ?", sessionID).
		Where("status = ?", string(domain.SessionPending)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !exists {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

func (s *SessionStore) PurgeStale(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("status = ?", string(domain.SessionPending)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
