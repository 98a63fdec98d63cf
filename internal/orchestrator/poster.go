package orchestrator

import (
	"context"
	"fmt"

	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
)

// trendingQueries are the standing searches a trending-flavored post reacts
// to. They track the account's beats, not the platform's global trends.
var trendingQueries = []string{
	"crypto twitter",
	"uap disclosure",
	"ai agents",
}

// variety context size fed to the generator alongside the exclusions.
const (
	recentContextSize       = 10
	topPerformerContextSize = 5
)

// PostResult reports what a posting cycle did.
type PostResult struct {
	Posted bool
	Record *store.PostRecord
	Reason string
}

// RunPostCycle is one tick of the posting cron: drain a due scheduled post
// if any, otherwise ask the scheduler and publish on a yes.
func (o *Orchestrator) RunPostCycle(ctx context.Context) (PostResult, error) {
	paused, err := o.store.Paused(ctx)
	if err != nil {
		return PostResult{Reason: "store unavailable"}, err
	}
	if paused {
		return PostResult{Reason: "kill switch active"}, nil
	}

	due, err := o.store.PopDueScheduledPost(ctx, o.now())
	if err != nil {
		return PostResult{Reason: "store unavailable"}, err
	}
	if due != nil {
		rec, err := o.publishScheduled(ctx, due)
		if err != nil {
			return PostResult{Reason: "scheduled post failed"}, err
		}
		return PostResult{Posted: true, Record: rec, Reason: "scheduled post published"}, nil
	}

	decision := o.sched.Decide(ctx)
	if !decision.ShouldPost {
		o.metrics.skip("post", "scheduler_no")
		return PostResult{Reason: decision.Reason}, nil
	}

	rec, err := o.ExecutePost(ctx, decision)
	if err != nil {
		return PostResult{Reason: "generation failed"}, err
	}
	return PostResult{Posted: true, Record: rec, Reason: decision.Reason}, nil
}

// ExecutePost runs the full content pipeline for a scheduler decision:
// ledger context, generation with a corrective length retry, the semantic
// dedup pass, the optional image, then publish and record.
func (o *Orchestrator) ExecutePost(ctx context.Context, decision scheduler.Decision) (*store.PostRecord, error) {
	log := o.logger.WithField("category", decision.Category)

	entries, err := o.store.RecentLedgerEntries(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	req := generator.Request{
		Category:   decision.Category,
		Mood:       decision.Mood,
		Exclusions: memory.Summarize(entries),
		UseRiddle:  decision.UseRiddle,
	}
	for i, entry := range entries {
		if i >= recentContextSize {
			break
		}
		req.RecentTexts = append(req.RecentTexts, entry.Text)
	}
	performers, err := o.store.TopPerformers(ctx)
	if err != nil {
		log.WithError(err).Warn("Top performers unavailable, generating without them")
	}
	for i, p := range performers {
		if i >= topPerformerContextSize {
			break
		}
		req.TopPerformers = append(req.TopPerformers, p.Text)
	}
	if decision.UseTrending {
		posts, err := o.platform.SearchTrending(ctx, trendingQueries)
		if err != nil {
			log.WithError(err).Warn("Trending search failed, generating without it")
		}
		for i, post := range posts {
			if i >= 3 {
				break
			}
			req.Trending = append(req.Trending, post.Text)
		}
	}

	text, err := o.generateValidated(ctx, req, log)
	if err != nil {
		o.metrics.skip("post", "generation_failed")
		return nil, err
	}

	text = o.dedupPass(ctx, text, req, entries, log)

	return o.publish(ctx, text, decision.Category)
}

// generateValidated generates once and, on an empty or overlong result,
// retries once with a hard length reminder.
func (o *Orchestrator) generateValidated(ctx context.Context, req generator.Request, log logging.Entry) (string, error) {
	text, err := o.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if validLength(text) {
		return text, nil
	}

	o.metrics.retry("length")
	log.WithField("length", len(text)).Warn("Generated post failed validation, retrying with length nudge")
	req.Nudges = append(req.Nudges, "IMPORTANT: keep it under 280 characters.")
	retry, err := o.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate retry: %w", err)
	}
	if !validLength(retry) {
		return "", fmt.Errorf("generated post failed validation twice (%d chars)", len([]rune(retry)))
	}
	return retry, nil
}

// dedupPass judges the candidate against the recent ledger window and
// regenerates when flagged. A still-flagged retry publishes anyway: the
// account favors availability over perfect novelty.
func (o *Orchestrator) dedupPass(ctx context.Context, text string, req generator.Request, entries []memory.Entry, log logging.Entry) string {
	window := memory.SemanticWindow(entries)
	offender, err := o.gen.JudgeSimilarity(ctx, text, window)
	if err != nil {
		log.WithError(err).Warn("Similarity check errored, treating as not similar")
		return text
	}
	if offender == "" {
		return text
	}

	best := text
	for attempt := 0; attempt < o.cfg.MaxRegenAttempts; attempt++ {
		o.metrics.retry("dedup")
		req.Nudges = append(req.Nudges, fmt.Sprintf("Your draft was too close to this earlier post, say something genuinely different: %q", offender))
		retry, err := o.gen.Generate(ctx, req)
		if err != nil || !validLength(retry) {
			break
		}
		best = retry
		offender, err = o.gen.JudgeSimilarity(ctx, retry, window)
		if err != nil || offender == "" {
			return best
		}
	}
	log.WithField("similar_to", offender).Warn("Publishing best candidate despite similarity flag")
	return best
}

// publish posts the text, with an image when the category supports one, and
// records it into the daily state and the ledger.
func (o *Orchestrator) publish(ctx context.Context, text string, category persona.Category) (*store.PostRecord, error) {
	log := o.logger.WithField("category", category)
	hasMedia := false
	var postID string

	if persona.CategoryConfigs[category].GenerateImage && o.images != nil {
		if id, ok := o.tryPostWithImage(ctx, text, category, log); ok {
			postID = id
			hasMedia = true
		}
	}
	if postID == "" {
		id, err := o.platform.Post(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("post: %w", err)
		}
		postID = id
	}

	rec := store.PostRecord{
		ID:       postID,
		Text:     text,
		Category: category,
		PostedAt: o.now().UTC(),
		HasMedia: hasMedia,
	}
	now := o.now()
	if err := o.store.RecordPost(ctx, now, rec); err != nil {
		log.WithError(err).Error("Post published but daily state record failed")
	}
	if err := o.store.AppendLedgerEntry(ctx, memory.NewEntry(text, category)); err != nil {
		log.WithError(err).Error("Post published but ledger append failed")
	}
	o.metrics.post(string(category), hasMedia)
	log.WithField("post_id", postID).Info("Post published")
	return &rec, nil
}

// tryPostWithImage runs the scene-description, render, download and
// post-with-media chain. Any failure falls back to text-only.
func (o *Orchestrator) tryPostWithImage(ctx context.Context, text string, category persona.Category, log logging.Entry) (string, bool) {
	scene, err := o.gen.DescribeScene(ctx, text, category)
	if err != nil {
		log.WithError(err).Warn("Scene description failed, posting text-only")
		return "", false
	}
	url, err := o.images.Render(ctx, scene)
	if err != nil {
		log.WithError(err).Warn("Image render failed, posting text-only")
		return "", false
	}
	media, err := o.images.Download(ctx, url)
	if err != nil {
		log.WithError(err).Warn("Image download failed, posting text-only")
		return "", false
	}
	id, err := o.platform.PostWithMedia(ctx, text, media)
	if err != nil {
		log.WithError(err).Warn("Post with media failed, posting text-only")
		return "", false
	}
	return id, true
}

// publishScheduled publishes a queued post verbatim, attaching its image
// when one was prepared.
func (o *Orchestrator) publishScheduled(ctx context.Context, post *store.ScheduledPost) (*store.PostRecord, error) {
	log := o.logger.WithField("scheduled_id", post.ID)
	var postID string
	hasMedia := false

	if post.ImageURL != "" && o.images != nil {
		media, err := o.images.Download(ctx, post.ImageURL)
		if err != nil {
			log.WithError(err).Warn("Scheduled image download failed, posting text-only")
		} else if id, err := o.platform.PostWithMedia(ctx, post.Text, media); err != nil {
			log.WithError(err).Warn("Scheduled post with media failed, posting text-only")
		} else {
			postID = id
			hasMedia = true
		}
	}
	if postID == "" {
		id, err := o.platform.Post(ctx, post.Text)
		if err != nil {
			return nil, fmt.Errorf("scheduled post: %w", err)
		}
		postID = id
	}

	rec := store.PostRecord{
		ID:       postID,
		Text:     post.Text,
		Category: post.Category,
		PostedAt: o.now().UTC(),
		HasMedia: hasMedia,
	}
	if err := o.store.RecordPost(ctx, o.now(), rec); err != nil {
		log.WithError(err).Error("Scheduled post published but daily state record failed")
	}
	if err := o.store.AppendLedgerEntry(ctx, memory.NewEntry(post.Text, post.Category)); err != nil {
		log.WithError(err).Error("Scheduled post published but ledger append failed")
	}
	o.metrics.post(string(post.Category), hasMedia)
	return &rec, nil
}
