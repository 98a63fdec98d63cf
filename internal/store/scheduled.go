package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bignetbrands/et-site/internal/persona"
	goredis "github.com/redis/go-redis/v9"
)

// ScheduledPost is a pre-written post queued for a specific publish time.
// The posting cron drains at most one due post per tick before consulting
// the scheduler.
type ScheduledPost struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	Category    persona.Category `json:"category"`
	ImageURL    string           `json:"image_url,omitempty"`
	ScheduledAt time.Time        `json:"scheduled_at"`
}

// SchedulePost queues a post, scored by its due time.
func (s *Store) SchedulePost(ctx context.Context, post ScheduledPost) error {
	bytes, err := json.Marshal(post)
	if err != nil {
		return err
	}
	return s.client.ZAdd(ctx, keyScheduledPosts, goredis.Z{
		Score:  float64(post.ScheduledAt.UnixMilli()),
		Member: bytes,
	}).Err()
}

// PopDueScheduledPost removes and returns the earliest post due at or before
// now, or nil when nothing is due.
func (s *Store) PopDueScheduledPost(ctx context.Context, now time.Time) (*ScheduledPost, error) {
	vals, err := s.client.ZRangeByScore(ctx, keyScheduledPosts, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	if err := s.client.ZRem(ctx, keyScheduledPosts, vals[0]).Err(); err != nil {
		return nil, err
	}
	var post ScheduledPost
	if err := json.Unmarshal([]byte(vals[0]), &post); err != nil {
		return nil, fmt.Errorf("store: decode scheduled post: %w", err)
	}
	return &post, nil
}

// ScheduledPosts lists the queue in due order.
func (s *Store) ScheduledPosts(ctx context.Context) ([]ScheduledPost, error) {
	vals, err := s.client.ZRange(ctx, keyScheduledPosts, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	posts := make([]ScheduledPost, 0, len(vals))
	for _, val := range vals {
		var post ScheduledPost
		if err := json.Unmarshal([]byte(val), &post); err != nil {
			s.logger.WithError(err).Warn("Skipping undecodable scheduled post")
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// RemoveScheduledPost deletes a queued post by ID. Returns false when no
// post with that ID exists.
func (s *Store) RemoveScheduledPost(ctx context.Context, id string) (bool, error) {
	vals, err := s.client.ZRange(ctx, keyScheduledPosts, 0, -1).Result()
	if err != nil {
		return false, err
	}
	for _, val := range vals {
		var post ScheduledPost
		if err := json.Unmarshal([]byte(val), &post); err != nil {
			continue
		}
		if post.ID == id {
			if err := s.client.ZRem(ctx, keyScheduledPosts, val).Err(); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
