package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Key layout. Dated keys carry a 48h TTL so yesterday's state survives a
// midnight-straddling run but nothing accumulates.
const (
	keyDailyPrefix        = "daily"
	keyMemoryEntries      = "memory_entries"
	keyTopPerformers      = "top_performers"
	keyNextPostAt         = "next_post_at"
	keyMentionCursor      = "last_mention_id"
	keyProcessedMentions  = "processed_mentions"
	keyReplyCountPrefix   = "reply_count_daily"
	keyUserPrefix         = "user_interactions"
	keyThreadPrefix       = "thread_replies"
	keyTargets            = "targets"
	keyInteractedPrefix   = "targets_interacted"
	keyQuotedPosts        = "quoted_posts"
	keyScheduledPosts     = "scheduled_posts"
	keyKillSwitch         = "kill_switch"
	keyHealthProbe        = "health_probe"
)

const (
	dailyTTL     = 48 * time.Hour
	processedTTL = 7 * 24 * time.Hour
	timerTTL     = 24 * time.Hour
)

// ErrVerifyFailed means a write appeared to succeed but the read-back did not
// return what was written. Callers treat the store as degraded and refuse to
// take irreversible actions.
var ErrVerifyFailed = errors.New("store: write verification failed")

// Store is the single durable coordination point between invocations. All
// engine state lives in Redis; process memory never outlives a request.
type Store struct {
	client goredis.UniversalClient
	logger logging.Logger
}

func New(client goredis.UniversalClient, logger logging.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func dateKey(prefix string, date time.Time) string {
	return fmt.Sprintf("%s:%s", prefix, date.UTC().Format("2006-01-02"))
}

func (s *Store) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, bytes, ttl).Err()
}

// getJSON unmarshals the value at key into out. Returns false without error
// when the key does not exist.
func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// HealthCheck writes a unique probe value and reads it back. A store that
// accepts writes but serves stale or missing reads is as unusable as one
// that is down, so both fail the check.
func (s *Store) HealthCheck(ctx context.Context) error {
	probe := uuid.New().String()
	if err := s.client.Set(ctx, keyHealthProbe, probe, time.Minute).Err(); err != nil {
		return fmt.Errorf("store: health probe write: %w", err)
	}
	got, err := s.client.Get(ctx, keyHealthProbe).Result()
	if err != nil {
		return fmt.Errorf("store: health probe read: %w", err)
	}
	if got != probe {
		return ErrVerifyFailed
	}
	return nil
}

// SetPaused flips the global pause flag. While paused, posting, replies and
// watchlist cycles all exit without side effects.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	val := "false"
	if paused {
		val = "true"
	}
	return s.client.Set(ctx, keyKillSwitch, val, 0).Err()
}

func (s *Store) Paused(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, keyKillSwitch).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "true", nil
}

// SetNextPostAt persists the scheduler timer. The timer must be durably
// written before the caller acts on a "post now" decision, so the write is
// verified by reading it back.
func (s *Store) SetNextPostAt(ctx context.Context, at time.Time) error {
	ms := at.UnixMilli()
	if err := s.client.Set(ctx, keyNextPostAt, ms, timerTTL).Err(); err != nil {
		return err
	}
	got, err := s.client.Get(ctx, keyNextPostAt).Int64()
	if err != nil {
		return fmt.Errorf("store: timer read-back: %w", err)
	}
	if got != ms {
		return ErrVerifyFailed
	}
	return nil
}

// NextPostAt returns the scheduled next post time, or ok=false when no timer
// is set (first run, or the 24h TTL lapsed).
func (s *Store) NextPostAt(ctx context.Context) (time.Time, bool, error) {
	ms, err := s.client.Get(ctx, keyNextPostAt).Int64()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}
