// Package budget enforces the interaction caps that keep the account from
// looking automated. Counters live in the store; only the per-run counter is
// process-local, since a run is a single invocation.
package budget

import (
	"context"
	"time"

	"github.com/bignetbrands/et-site/internal/store"
)

type Caps struct {
	Daily  int
	Run    int
	User   int
	Thread int
}

// Tracker answers "may we reply?" questions against the caps. Create one per
// invocation; RecordReply must only be called after a successful post.
type Tracker struct {
	store   *store.Store
	caps    Caps
	runUsed int
}

func NewTracker(s *store.Store, caps Caps) *Tracker {
	return &Tracker{store: s, caps: caps}
}

// DailyExhausted reports whether the account-wide daily reply cap is spent.
func (t *Tracker) DailyExhausted(ctx context.Context, date time.Time) (bool, error) {
	count, err := t.store.ReplyCount(ctx, date)
	if err != nil {
		return false, err
	}
	return count >= t.caps.Daily, nil
}

// RunExhausted reports whether this invocation has used its reply allowance.
func (t *Tracker) RunExhausted() bool {
	return t.runUsed >= t.caps.Run
}

// UserExhausted reports whether the bot has already engaged this user enough
// today.
func (t *Tracker) UserExhausted(ctx context.Context, date time.Time, userID string) (bool, error) {
	count, err := t.store.UserInteractions(ctx, date, userID)
	if err != nil {
		return false, err
	}
	return count >= t.caps.User, nil
}

// ThreadExhausted reports whether this conversation has had its share of
// replies today.
func (t *Tracker) ThreadExhausted(ctx context.Context, date time.Time, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, nil
	}
	count, err := t.store.ThreadReplies(ctx, date, conversationID)
	if err != nil {
		return false, err
	}
	return count >= t.caps.Thread, nil
}

// RecordReply commits a successful reply against every counter. The partial
// failure mode (some counters bumped, some not) only makes the bot slightly
// more conservative, so errors are returned but need not be unwound.
func (t *Tracker) RecordReply(ctx context.Context, date time.Time, userID, conversationID string) error {
	t.runUsed++
	if _, err := t.store.IncrReplyCount(ctx, date); err != nil {
		return err
	}
	if userID != "" {
		if _, err := t.store.IncrUserInteractions(ctx, date, userID); err != nil {
			return err
		}
	}
	if conversationID != "" {
		if _, err := t.store.IncrThreadReplies(ctx, date, conversationID); err != nil {
			return err
		}
	}
	return nil
}
