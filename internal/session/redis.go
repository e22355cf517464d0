package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

const (
	sessionKeyPrefix = "voice:session:"
	defaultTTL       = 24 * time.Hour
	scanBatch        = 100
)

var errCallIDRequired = errors.New("session: call_id required")

// RedisStore keeps sessions in Redis so any API replica can serve a call's
// next webhook. Keys expire after the configured TTL even if eviction never
// runs.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now, logger: logger}
}

// WithClock overrides the clock used for creation timestamps and eviction.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func sessionKey(callID string) string {
	return sessionKeyPrefix + callID
}

// GetOrCreate returns the call's state, creating it with SET NX when absent so
// two replicas racing on the first webhook agree on one session.
func (s *RedisStore) GetOrCreate(ctx context.Context, callID string) (*dialogue.DialogueState, error) {
	if callID == "" {
		return nil, errCallIDRequired
	}
	fresh := dialogue.NewDialogueState(callID, s.now().UTC())
	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}
	created, err := s.rdb.SetNX(ctx, sessionKey(callID), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	if created {
		s.logger.Info("created call session", "call_id", callID, "backend", "redis")
		return fresh, nil
	}
	return s.Get(ctx, callID)
}

// Get returns the call's state or dialogue.ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, callID string) (*dialogue.DialogueState, error) {
	data, err := s.rdb.Get(ctx, sessionKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, dialogue.ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var state dialogue.DialogueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &state, nil
}

// Save overwrites an existing session, keeping its original expiry. A session
// that expired or was removed is reported as dialogue.ErrSessionNotFound.
func (s *RedisStore) Save(ctx context.Context, state *dialogue.DialogueState) error {
	if state == nil || state.CallID == "" {
		return errCallIDRequired
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	err = s.rdb.SetArgs(ctx, sessionKey(state.CallID), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return dialogue.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Remove deletes the call's session.
func (s *RedisStore) Remove(ctx context.Context, callID string) error {
	if err := s.rdb.Del(ctx, sessionKey(callID)).Err(); err != nil {
		return fmt.Errorf("session: remove: %w", err)
	}
	return nil
}

// Exists reports whether the call has a session.
func (s *RedisStore) Exists(ctx context.Context, callID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, sessionKey(callID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: exists: %w", err)
	}
	return n > 0, nil
}

// EvictOlderThan scans all session keys and deletes those created before
// now-maxAge. Undecodable entries are deleted as well.
func (s *RedisStore) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	evicted := 0
	iter := s.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("session: evict get %s: %w", key, err)
		}
		var state dialogue.DialogueState
		if err := json.Unmarshal(data, &state); err == nil && !state.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return evicted, fmt.Errorf("session: evict del %s: %w", key, err)
		}
		evicted++
		s.logger.Info("evicted stale call session", "key", key, "created_at", state.CreatedAt)
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("session: evict scan: %w", err)
	}
	return evicted, nil
}

var _ dialogue.SessionStore = (*RedisStore)(nil)
