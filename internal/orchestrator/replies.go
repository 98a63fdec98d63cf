package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bignetbrands/et-site/internal/budget"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/platform"
	"github.com/bignetbrands/et-site/pkg/logging"
)

// ReplyResult summarizes one mention-processing run.
type ReplyResult struct {
	Fetched  int
	Replied  int
	Skipped  int
	CursorAt string
	Reason   string
}

var leadingMentions = regexp.MustCompile(`^(\s*@\w+\s*)+`)
var anyMention = regexp.MustCompile(`@\w+`)

// minSubstance is the character floor, after stripping @-mentions, below
// which a mention is considered noise.
const minSubstance = 5

// substanceWhitelist holds short messages that are real requests despite
// their length. A bare "ca?" is someone asking for a contract address and
// must never be silently dropped.
var substanceWhitelist = map[string]bool{
	"ca":       true,
	"sc":       true,
	"contract": true,
	"address":  true,
	"link":     true,
	"wen":      true,
}

func hasSubstance(stripped string) bool {
	trimmed := strings.TrimSpace(stripped)
	if len([]rune(trimmed)) >= minSubstance {
		return true
	}
	normalized := strings.ToLower(strings.TrimRight(trimmed, "?!. "))
	return substanceWhitelist[normalized]
}

// stripMentions removes every @-handle from a mention's text, leaving the
// substance to measure and to feed the generator.
func stripMentions(text string) string {
	return strings.TrimSpace(anyMention.ReplaceAllString(text, ""))
}

// stripLeadingMentions removes only the leading @-handles, for non-reply
// fallback posts: a post starting with @ stays out of public timelines.
func stripLeadingMentions(text string) string {
	return strings.TrimSpace(leadingMentions.ReplaceAllString(text, ""))
}

// RunReplyCycle processes inbound mentions. With catchUp set, the cursor is
// ignored for fetching and never advanced, used for manual recovery.
func (o *Orchestrator) RunReplyCycle(ctx context.Context, catchUp bool) (ReplyResult, error) {
	paused, err := o.store.Paused(ctx)
	if err != nil {
		return ReplyResult{Reason: "store unavailable"}, err
	}
	if paused {
		return ReplyResult{Reason: "kill switch active"}, nil
	}

	now := o.now().UTC()
	tracker := budget.NewTracker(o.store, budget.Caps{
		Daily:  o.cfg.DailyReplyCap,
		Run:    o.cfg.RunReplyCap,
		User:   o.cfg.UserDailyCap,
		Thread: o.cfg.ThreadDailyCap,
	})

	exhausted, err := tracker.DailyExhausted(ctx, now)
	if err != nil {
		return ReplyResult{Reason: "store unavailable"}, err
	}
	if exhausted {
		return ReplyResult{Reason: "daily reply cap reached"}, nil
	}

	sinceID := ""
	if !catchUp {
		sinceID, err = o.store.MentionCursor(ctx)
		if err != nil {
			return ReplyResult{Reason: "store unavailable"}, err
		}
	}

	batch, err := o.platform.FetchMentionsSince(ctx, sinceID, o.cfg.MentionPageSize)
	if err != nil {
		return ReplyResult{Reason: "mention fetch failed"}, err
	}
	if len(batch.Items) == 0 {
		return ReplyResult{Reason: "no new mentions"}, nil
	}

	// Oldest first: conversations read top-down.
	mentions := append([]platform.Mention(nil), batch.Items...)
	sort.Slice(mentions, func(i, j int) bool {
		return platform.CompareIDs(mentions[i].ID, mentions[j].ID) < 0
	})

	result := ReplyResult{Fetched: len(mentions)}
	highestIterated := ""

	for _, mention := range mentions {
		if tracker.RunExhausted() {
			result.Reason = "per-run cap reached"
			break
		}
		exhausted, err := tracker.DailyExhausted(ctx, now)
		if err != nil {
			o.logger.WithError(err).Error("Budget check failed mid-run, stopping")
			result.Reason = "store unavailable"
			break
		}
		if exhausted {
			result.Reason = "daily reply cap reached"
			break
		}

		// Everything from here counts as iterated, whatever the outcome.
		if platform.CompareIDs(mention.ID, highestIterated) > 0 {
			highestIterated = mention.ID
		}

		if skip, reason := o.shouldSkipMention(ctx, tracker, mention, now); skip {
			o.markProcessed(ctx, mention.ID, reason)
			o.metrics.skip("replies", reason)
			result.Skipped++
			continue
		}

		text, err := o.generateReply(ctx, mention)
		if err != nil {
			// Never retried automatically: a persistently bad mention
			// would otherwise wedge the pipeline.
			o.markProcessed(ctx, mention.ID, "generation_failed")
			o.metrics.skip("replies", "generation_failed")
			result.Skipped++
			continue
		}

		outcome, err := o.postReplyWithFallback(ctx, text, mention)
		if err != nil {
			o.markProcessed(ctx, mention.ID, "post_failed")
			o.metrics.skip("replies", "post_failed")
			result.Skipped++
			continue
		}

		o.markProcessed(ctx, mention.ID, "")
		if err := tracker.RecordReply(ctx, now, mention.AuthorID, mention.ConversationID); err != nil {
			o.logger.WithError(err).Warn("Reply posted but budget increment failed")
		}
		o.metrics.reply(outcome)
		result.Replied++
		o.sleep(o.cfg.ReplyPacing)
	}

	if !catchUp && highestIterated != "" {
		if err := o.store.AdvanceMentionCursor(ctx, highestIterated); err != nil {
			o.logger.WithError(err).Error("Cursor advance failed, mentions will be reprocessed")
		} else {
			result.CursorAt = highestIterated
		}
	}
	if result.Reason == "" {
		result.Reason = "processed batch"
	}
	return result, nil
}

// shouldSkipMention applies the cheap pre-generation filters, in order.
func (o *Orchestrator) shouldSkipMention(ctx context.Context, tracker *budget.Tracker, mention platform.Mention, now time.Time) (bool, string) {
	processed, err := o.store.MentionProcessed(ctx, mention.ID)
	if err == nil && processed {
		return true, "already_processed"
	}
	if strings.EqualFold(mention.AuthorUsername, o.cfg.BotHandle) {
		return true, "self_mention"
	}
	if !hasSubstance(stripMentions(mention.Text)) {
		return true, "low_substance"
	}
	if hit, err := tracker.UserExhausted(ctx, now, mention.AuthorID); err == nil && hit {
		return true, "user_cap"
	}
	if hit, err := tracker.ThreadExhausted(ctx, now, mention.ConversationID); err == nil && hit {
		return true, "thread_cap"
	}
	return false, ""
}

func (o *Orchestrator) generateReply(ctx context.Context, mention platform.Mention) (string, error) {
	req := generator.ReplyRequest{
		Text:           stripMentions(mention.Text),
		AuthorUsername: mention.AuthorUsername,
	}
	if mention.ParentID != "" {
		if parent, err := o.platform.FetchPost(ctx, mention.ParentID); err == nil && parent != nil {
			req.ParentText = parent.Text
		}
	}
	text, err := o.gen.GenerateReply(ctx, req)
	if err != nil {
		return "", err
	}
	if !validLength(text) {
		return "", fmt.Errorf("reply failed validation (%d chars)", len([]rune(text)))
	}
	return text, nil
}

// postReplyWithFallback walks the fallback chain: threaded reply, then a
// quote on rejection, then a standalone post linking the mention. Leading
// @-handles are stripped for the non-reply forms.
func (o *Orchestrator) postReplyWithFallback(ctx context.Context, text string, mention platform.Mention) (string, error) {
	log := o.logger.WithFields(logging.Fields{"mention_id": mention.ID, "author": mention.AuthorUsername})

	if _, err := o.platform.Reply(ctx, text, mention.ID); err == nil {
		return "replied", nil
	} else if platform.KindOf(err) != platform.KindRejected && platform.KindOf(err) != platform.KindNotFound {
		return "", err
	} else {
		log.WithError(err).Warn("Reply rejected, trying quote")
	}

	detached := stripLeadingMentions(text)
	if _, err := o.platform.Quote(ctx, detached, mention.ID); err == nil {
		return "quoted", nil
	} else if platform.KindOf(err) != platform.KindRejected && platform.KindOf(err) != platform.KindNotFound {
		return "", err
	} else {
		log.WithError(err).Warn("Quote rejected, posting standalone link")
	}

	linked := fmt.Sprintf("%s\n\nhttps://x.com/%s/status/%s", detached, mention.AuthorUsername, mention.ID)
	if _, err := o.platform.Post(ctx, linked); err != nil {
		return "", err
	}
	return "linked", nil
}

func (o *Orchestrator) markProcessed(ctx context.Context, mentionID, skipReason string) {
	if err := o.store.MarkMentionProcessed(ctx, mentionID); err != nil {
		o.logger.WithError(err).WithField("mention_id", mentionID).Error("Failed to mark mention processed")
		return
	}
	if skipReason != "" {
		o.logger.WithFields(logging.Fields{"mention_id": mentionID, "reason": skipReason}).Info("Mention skipped")
	}
}
