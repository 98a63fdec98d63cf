package store

import (
	"context"
	"time"

	"github.com/bignetbrands/et-site/internal/persona"
)

// PostRecord is one published post as remembered by the daily state and the
// memory ledger. Records are append-only.
type PostRecord struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Category persona.Category `json:"category"`
	PostedAt time.Time        `json:"posted_at"`
	HasMedia bool             `json:"has_media"`
}

// DailyState tracks everything published on one UTC day.
type DailyState struct {
	Date           string                   `json:"date"`
	Posts          []PostRecord             `json:"posts"`
	CategoryCounts map[persona.Category]int `json:"category_counts"`
}

func newDailyState(date time.Time) *DailyState {
	return &DailyState{
		Date:           date.UTC().Format("2006-01-02"),
		CategoryCounts: make(map[persona.Category]int),
	}
}

// DailyState loads the state for the given day, returning a fresh empty state
// when none exists yet. The key is created lazily by the first RecordPost.
func (s *Store) DailyState(ctx context.Context, date time.Time) (*DailyState, error) {
	state := newDailyState(date)
	found, err := s.getJSON(ctx, dateKey(keyDailyPrefix, date), state)
	if err != nil {
		return nil, err
	}
	if found && state.CategoryCounts == nil {
		state.CategoryCounts = make(map[persona.Category]int)
	}
	return state, nil
}

// RecordPost appends a published post to the day's state and bumps its
// category counter. Cron invocations never overlap, so read-modify-write is
// safe here.
func (s *Store) RecordPost(ctx context.Context, date time.Time, rec PostRecord) error {
	state, err := s.DailyState(ctx, date)
	if err != nil {
		return err
	}
	state.Posts = append(state.Posts, rec)
	state.CategoryCounts[rec.Category]++
	return s.setJSON(ctx, dateKey(keyDailyPrefix, date), state, dailyTTL)
}
