package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TargetAccount is a community-submitted account the watchlist sweep visits.
type TargetAccount struct {
	Handle      string    `json:"handle"`
	Votes       int       `json:"votes"`
	SubmittedAt time.Time `json:"submitted_at"`
	LastVotedAt time.Time `json:"last_voted_at"`
	Forced      bool      `json:"forced"`
}

// VoteTarget records a submission or an upvote for a handle. A new handle is
// created with one vote; an existing one gains a vote.
func (s *Store) VoteTarget(ctx context.Context, handle string, now time.Time) (*TargetAccount, error) {
	target, err := s.Target(ctx, handle)
	if err != nil {
		return nil, err
	}
	if target == nil {
		target = &TargetAccount{Handle: handle, SubmittedAt: now}
	}
	target.Votes++
	target.LastVotedAt = now
	if err := s.saveTarget(ctx, target); err != nil {
		return nil, err
	}
	return target, nil
}

// Target returns the account for handle, or nil when unknown.
func (s *Store) Target(ctx context.Context, handle string) (*TargetAccount, error) {
	val, err := s.client.HGet(ctx, keyTargets, handle).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var target TargetAccount
	if err := json.Unmarshal([]byte(val), &target); err != nil {
		return nil, fmt.Errorf("store: decode target %s: %w", handle, err)
	}
	return &target, nil
}

// Targets returns every watchlist account, unordered. Selection order is the
// caller's concern.
func (s *Store) Targets(ctx context.Context) ([]TargetAccount, error) {
	vals, err := s.client.HGetAll(ctx, keyTargets).Result()
	if err != nil {
		return nil, err
	}
	targets := make([]TargetAccount, 0, len(vals))
	for handle, val := range vals {
		var target TargetAccount
		if err := json.Unmarshal([]byte(val), &target); err != nil {
			s.logger.WithError(err).WithField("handle", handle).Warn("Skipping undecodable target")
			continue
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (s *Store) RemoveTarget(ctx context.Context, handle string) error {
	return s.client.HDel(ctx, keyTargets, handle).Err()
}

// SetTargetForced marks or clears the priority flag on a handle. Forcing an
// unknown handle creates it with zero votes.
func (s *Store) SetTargetForced(ctx context.Context, handle string, forced bool, now time.Time) error {
	target, err := s.Target(ctx, handle)
	if err != nil {
		return err
	}
	if target == nil {
		if !forced {
			return nil
		}
		target = &TargetAccount{Handle: handle, SubmittedAt: now}
	}
	target.Forced = forced
	return s.saveTarget(ctx, target)
}

func (s *Store) saveTarget(ctx context.Context, target *TargetAccount) error {
	bytes, err := json.Marshal(target)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, keyTargets, target.Handle, bytes).Err()
}

// MarkTargetInteracted records that the sweep engaged this handle today, so
// the day's later sweeps move on to other targets.
func (s *Store) MarkTargetInteracted(ctx context.Context, date time.Time, handle string) error {
	key := dateKey(keyInteractedPrefix, date)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, handle)
	pipe.Expire(ctx, key, dailyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) TargetInteracted(ctx context.Context, date time.Time, handle string) (bool, error) {
	return s.client.SIsMember(ctx, dateKey(keyInteractedPrefix, date), handle).Result()
}

// MarkQuoted remembers a post the sweep has already quoted so it is never
// quoted twice.
func (s *Store) MarkQuoted(ctx context.Context, postID string) error {
	return s.client.SAdd(ctx, keyQuotedPosts, postID).Err()
}

func (s *Store) WasQuoted(ctx context.Context, postID string) (bool, error) {
	res, err := s.client.SIsMember(ctx, keyQuotedPosts, postID).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	return res, err
}
