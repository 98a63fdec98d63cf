package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/bignetbrands/et-site/internal/budget"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/platform"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
)

// A post younger than this gets a direct reply; older unseen posts get a
// quote so followers see the context.
const freshnessWindow = 5 * time.Minute

const targetRecentPosts = 5

// TargetResult summarizes one watchlist sweep.
type TargetResult struct {
	Engaged bool
	Handle  string
	PostID  string
	Outcome string
	Reason  string
}

// RunTargetSweep engages at most one queued account: forced entries first,
// then by votes, then by submission age.
func (o *Orchestrator) RunTargetSweep(ctx context.Context) (TargetResult, error) {
	paused, err := o.store.Paused(ctx)
	if err != nil {
		return TargetResult{Reason: "store unavailable"}, err
	}
	if paused {
		return TargetResult{Reason: "kill switch active"}, nil
	}

	now := o.now().UTC()
	tracker := budget.NewTracker(o.store, budget.Caps{
		Daily:  o.cfg.DailyReplyCap,
		Run:    o.cfg.RunReplyCap,
		User:   o.cfg.UserDailyCap,
		Thread: o.cfg.ThreadDailyCap,
	})
	if exhausted, err := tracker.DailyExhausted(ctx, now); err != nil {
		return TargetResult{Reason: "store unavailable"}, err
	} else if exhausted {
		return TargetResult{Reason: "daily reply cap reached"}, nil
	}

	candidates, err := o.eligibleTargets(ctx, now)
	if err != nil {
		return TargetResult{Reason: "store unavailable"}, err
	}
	if len(candidates) == 0 {
		return TargetResult{Reason: "no eligible targets"}, nil
	}

	for _, target := range candidates {
		if hit, err := tracker.UserExhausted(ctx, now, target.Handle); err != nil || hit {
			continue
		}
		result, ok := o.engageTarget(ctx, tracker, target, now)
		if ok {
			return result, nil
		}
	}
	return TargetResult{Reason: "no target had an engageable post"}, nil
}

// eligibleTargets returns the queue minus accounts already visited today,
// in selection order.
func (o *Orchestrator) eligibleTargets(ctx context.Context, now time.Time) ([]store.TargetAccount, error) {
	targets, err := o.store.Targets(ctx)
	if err != nil {
		return nil, err
	}
	eligible := targets[:0]
	for _, target := range targets {
		visited, err := o.store.TargetInteracted(ctx, now, target.Handle)
		if err != nil {
			return nil, err
		}
		if !visited {
			eligible = append(eligible, target)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Forced != b.Forced {
			return a.Forced
		}
		if a.Votes != b.Votes {
			return a.Votes > b.Votes
		}
		return a.SubmittedAt.Before(b.SubmittedAt)
	})
	return eligible, nil
}

// engageTarget finds the target's newest unseen post and interacts with it.
// Returns ok=false when the target has nothing engageable, letting the sweep
// fall through to the next candidate.
func (o *Orchestrator) engageTarget(ctx context.Context, tracker *budget.Tracker, target store.TargetAccount, now time.Time) (TargetResult, bool) {
	log := o.logger.WithField("target", target.Handle)

	posts, err := o.platform.FetchUserRecent(ctx, target.Handle, targetRecentPosts)
	if err != nil {
		log.WithError(err).Warn("Target timeline fetch failed")
		return TargetResult{}, false
	}

	var candidate *platform.Post
	for i := range posts {
		quoted, err := o.store.WasQuoted(ctx, posts[i].ID)
		if err == nil && !quoted {
			candidate = &posts[i]
			break
		}
	}
	if candidate == nil {
		return TargetResult{}, false
	}

	text, err := o.gen.GenerateReply(ctx, generator.ReplyRequest{
		Text:           candidate.Text,
		AuthorUsername: target.Handle,
	})
	if err != nil || !validLength(text) {
		log.WithError(err).Warn("Target interaction generation failed")
		o.metrics.skip("targets", "generation_failed")
		return TargetResult{}, false
	}

	outcome, postedID, ok := o.postTargetInteraction(ctx, text, candidate.ID, candidate.CreatedAt, now, log)
	if !ok {
		return TargetResult{}, false
	}

	o.finishTargetInteraction(ctx, tracker, target, candidate.ID, now)
	if outcome == "quoted" {
		// A quote lands on the timeline, so it joins the day's record.
		rec := store.PostRecord{ID: postedID, Text: text, Category: persona.CategoryCryptoCommunity, PostedAt: now}
		if err := o.store.RecordPost(ctx, now, rec); err != nil {
			log.WithError(err).Error("Quote posted but daily state record failed")
		}
		if err := o.store.AppendLedgerEntry(ctx, memory.NewEntry(text, persona.CategoryCryptoCommunity)); err != nil {
			log.WithError(err).Error("Quote posted but ledger append failed")
		}
	}
	o.metrics.reply(outcome)
	log.WithFields(logging.Fields{"post_id": candidate.ID, "outcome": outcome}).Info("Target engaged")
	return TargetResult{Engaged: true, Handle: target.Handle, PostID: candidate.ID, Outcome: outcome, Reason: "engaged"}, true
}

func (o *Orchestrator) postTargetInteraction(ctx context.Context, text, postID string, postedAt, now time.Time, log logging.Entry) (outcome, postedID string, ok bool) {
	if now.Sub(postedAt) < freshnessWindow {
		id, err := o.platform.Reply(ctx, text, postID)
		if err != nil {
			log.WithError(err).Warn("Target reply failed")
			return "", "", false
		}
		return "replied", id, true
	}
	id, err := o.platform.Quote(ctx, stripLeadingMentions(text), postID)
	if err != nil {
		log.WithError(err).Warn("Target quote failed")
		return "", "", false
	}
	if err := o.store.MarkQuoted(ctx, postID); err != nil {
		log.WithError(err).Warn("Quote posted but quoted-set update failed")
	}
	return "quoted", id, true
}

// finishTargetInteraction commits the post-success bookkeeping: interacted
// today, forced flag cleared (entry removed when it has no votes), budgets.
func (o *Orchestrator) finishTargetInteraction(ctx context.Context, tracker *budget.Tracker, target store.TargetAccount, postID string, now time.Time) {
	if err := o.store.MarkTargetInteracted(ctx, now, target.Handle); err != nil {
		o.logger.WithError(err).Warn("Failed to mark target interacted")
	}
	if target.Forced {
		if target.Votes == 0 {
			if err := o.store.RemoveTarget(ctx, target.Handle); err != nil {
				o.logger.WithError(err).Warn("Failed to remove zero-vote forced target")
			}
		} else if err := o.store.SetTargetForced(ctx, target.Handle, false, now); err != nil {
			o.logger.WithError(err).Warn("Failed to clear forced flag")
		}
	}
	if err := tracker.RecordReply(ctx, now, target.Handle, ""); err != nil {
		o.logger.WithError(err).Warn("Target engaged but budget increment failed")
	}
}
