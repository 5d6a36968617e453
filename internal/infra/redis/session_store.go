package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dingleup-reward-service/internal/domain"
)

// SessionStore keeps reward sessions in Redis so every instance can
// reconcile a session issued by another one.
// Layout: SET reward:session:{id} <json> EX ttl
// Completion keeps the remaining TTL; pending sessions that are never
// completed simply expire.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Create(ctx context.Context, session domain.RewardSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key(session.ID), payload, s.ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.RewardSession, error) {
	return s.load(ctx, s.client, sessionID)
}

func (s *SessionStore) MarkCompleted(ctx context.Context, sessionID string, watchedVideoIDs []string, at time.Time) (bool, error) {
	key := s.key(sessionID)
	first := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		session, err := s.load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == domain.SessionCompleted {
			return nil
		}
		session.Status = domain.SessionCompleted
		session.WatchedVideoIDs = append([]string(nil), watchedVideoIDs...)
		completedAt := at
		session.CompletedAt = &completedAt
		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			first = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// someone else completed it between WATCH and EXEC
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return first, nil
}

// PurgeStale scans session keys and drops pending sessions issued before the
// cutoff. Key expiry normally gets there first.
func (s *SessionStore) PurgeStale(ctx context.Context, before time.Time) (int, error) {
	purged := 0
	iter := s.client.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return purged, err
		}
		var session domain.RewardSession
		if err := json.Unmarshal(raw, &session); err != nil {
			continue
		}
		if session.Status != domain.SessionPending || !session.CreatedAt.Before(before) {
			continue
		}
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return purged, err
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}
	return purged, nil
}

func (s *SessionStore) load(ctx context.Context, c getter, sessionID string) (domain.RewardSession, error) {
	raw, err := c.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RewardSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.RewardSession{}, err
	}
	var session domain.RewardSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.RewardSession{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return session, nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) key(sessionID string) string {
	return "reward:session:" + sessionID
}
