package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bignetbrands/et-site/internal/platform"
	goredis "github.com/redis/go-redis/v9"
)

// MentionCursor returns the ID of the newest fully handled mention, or ""
// when no cursor has been established.
func (s *Store) MentionCursor(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, keyMentionCursor).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return val, err
}

// AdvanceMentionCursor moves the cursor forward to id. The cursor never
// regresses: an id at or below the current cursor is a no-op. The write is
// verified by reading it back; a failed verification means mentions below id
// may be processed again, which the processed-mention set absorbs.
func (s *Store) AdvanceMentionCursor(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	current, err := s.MentionCursor(ctx)
	if err != nil {
		return err
	}
	if current != "" && platform.CompareIDs(id, current) <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, keyMentionCursor, id, 0).Err(); err != nil {
		return err
	}
	got, err := s.client.Get(ctx, keyMentionCursor).Result()
	if err != nil {
		return fmt.Errorf("store: cursor read-back: %w", err)
	}
	if got != id {
		return ErrVerifyFailed
	}
	return nil
}

// MarkMentionProcessed records a mention as handled, whatever the outcome.
// Membership outlives the cursor by a week so cursor resets cannot cause
// duplicate replies.
func (s *Store) MarkMentionProcessed(ctx context.Context, mentionID string) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, keyProcessedMentions, mentionID)
	pipe.Expire(ctx, keyProcessedMentions, processedTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) MentionProcessed(ctx context.Context, mentionID string) (bool, error) {
	return s.client.SIsMember(ctx, keyProcessedMentions, mentionID).Result()
}

// IncrReplyCount bumps the day's reply counter and returns the new total.
func (s *Store) IncrReplyCount(ctx context.Context, date time.Time) (int, error) {
	key := dateKey(keyReplyCountPrefix, date)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := s.client.Expire(ctx, key, dailyTTL).Err(); err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Store) ReplyCount(ctx context.Context, date time.Time) (int, error) {
	count, err := s.client.Get(ctx, dateKey(keyReplyCountPrefix, date)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return count, err
}

// IncrUserInteractions bumps today's per-user counter and returns the new
// value for that user.
func (s *Store) IncrUserInteractions(ctx context.Context, date time.Time, userID string) (int, error) {
	return s.incrDailyHash(ctx, dateKey(keyUserPrefix, date), userID)
}

func (s *Store) UserInteractions(ctx context.Context, date time.Time, userID string) (int, error) {
	return s.dailyHashCount(ctx, dateKey(keyUserPrefix, date), userID)
}

// IncrThreadReplies bumps today's per-conversation counter.
func (s *Store) IncrThreadReplies(ctx context.Context, date time.Time, conversationID string) (int, error) {
	return s.incrDailyHash(ctx, dateKey(keyThreadPrefix, date), conversationID)
}

func (s *Store) ThreadReplies(ctx context.Context, date time.Time, conversationID string) (int, error) {
	return s.dailyHashCount(ctx, dateKey(keyThreadPrefix, date), conversationID)
}

func (s *Store) incrDailyHash(ctx context.Context, key, field string) (int, error) {
	count, err := s.client.HIncrBy(ctx, key, field, 1).Result()
	if err != nil {
		return 0, err
	}
	if err := s.client.Expire(ctx, key, dailyTTL).Err(); err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *Store) dailyHashCount(ctx context.Context, key, field string) (int, error) {
	count, err := s.client.HGet(ctx, key, field).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return count, err
}
