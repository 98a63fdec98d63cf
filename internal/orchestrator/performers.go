package orchestrator

import (
	"context"
	"sort"

	"github.com/bignetbrands/et-site/internal/store"
)

// resharesWeight is how much a reshare counts relative to a like when
// scoring a post's engagement.
const resharesWeight = 3

// RefreshTopPerformers re-scores the last two days of published posts from
// live platform metrics and merges them into the stored top performer list.
// Posts that cannot be fetched are skipped; the refresh is best effort.
func (o *Orchestrator) RefreshTopPerformers(ctx context.Context) (int, error) {
	now := o.now().UTC()

	existing, err := o.store.TopPerformers(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]store.TopPerformer, len(existing))
	for _, p := range existing {
		byID[p.ID] = p
	}

	scored := 0
	for _, day := range []int{-1, 0} {
		state, err := o.store.DailyState(ctx, now.AddDate(0, 0, day))
		if err != nil {
			return 0, err
		}
		for _, rec := range state.Posts {
			post, err := o.platform.FetchPost(ctx, rec.ID)
			if err != nil || post == nil {
				o.logger.WithField("post_id", rec.ID).Warn("Skipping unfetchable post in performer refresh")
				continue
			}
			score := post.Likes + resharesWeight*post.Reshares
			if score <= 0 {
				continue
			}
			byID[rec.ID] = store.TopPerformer{
				ID:       rec.ID,
				Text:     rec.Text,
				Category: rec.Category,
				Score:    score,
			}
			scored++
		}
	}

	merged := make([]store.TopPerformer, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ID < merged[j].ID
	})

	if err := o.store.SetTopPerformers(ctx, merged); err != nil {
		return 0, err
	}
	return scored, nil
}
