// Package scheduler decides, on each cron tick, whether to publish a post
// and which category it should come from. All pacing state lives in the
// store so overlapping invocations coordinate through the persisted timer.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
)

const (
	trendingChance = 0.50
	riddleChance   = 0.15

	underservedPreference = 0.70
)

// Decision is the scheduler's answer for one tick.
type Decision struct {
	ShouldPost  bool
	Category    persona.Category
	UseTrending bool
	UseRiddle   bool
	CatchUp     bool
	Mood        persona.Mood
	Reason      string
}

type Scheduler struct {
	store  *store.Store
	cfg    config.Config
	logger logging.Logger
	now    func() time.Time
	rng    *rand.Rand
}

func New(s *store.Store, cfg config.Config, logger logging.Logger) *Scheduler {
	return &Scheduler{
		store:  s,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the wall clock, for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithRNG replaces the random source, for tests.
func (s *Scheduler) WithRNG(rng *rand.Rand) *Scheduler {
	s.rng = rng
	return s
}

// Decide runs the posting decision for the current moment.
func (s *Scheduler) Decide(ctx context.Context) Decision {
	now := s.now().UTC()
	hour := now.Hour()
	tod := timeOfDay(hour)

	// Health gate. A store that cannot persist the timer would make every
	// tick look like "no timer set", turning the cron into a firehose.
	_, ok, err := s.store.NextPostAt(ctx)
	if err != nil {
		return Decision{Reason: "store unavailable: " + err.Error()}
	}
	firstRun := !ok
	if firstRun {
		if err := s.store.SetNextPostAt(ctx, now.Add(s.randomGap(tod))); err != nil {
			return Decision{Reason: "store write failed, refusing to post without state tracking"}
		}
		if _, ok, err := s.store.NextPostAt(ctx); err != nil || !ok {
			return Decision{Reason: "store write failed, refusing to post without state tracking"}
		}
	}

	if !s.inActiveHours(hour) {
		return Decision{Reason: "outside active hours"}
	}
	if s.isQuietHour(hour) {
		return Decision{Reason: fmt.Sprintf("quiet hour (%02d:00 UTC), low engagement window", hour)}
	}

	state, err := s.store.DailyState(ctx, now)
	if err != nil {
		return Decision{Reason: "store unavailable: " + err.Error()}
	}
	todayCount := len(state.Posts)
	if todayCount >= s.cfg.DailyPostMax {
		return Decision{Reason: fmt.Sprintf("daily max reached (%d/%d)", todayCount, s.cfg.DailyPostMax)}
	}

	underserved, available := categoryPools(state.CategoryCounts)
	hoursLeft := s.activeHoursRemaining(hour)

	// Catch-up keys off the larger deficit: underserved categories, or the
	// shortfall against the daily minimum when one category is several
	// posts behind.
	needed := len(underserved)
	if shortfall := s.cfg.DailyPostMin - todayCount; shortfall > needed {
		needed = shortfall
	}
	catchUp := len(underserved) > 0 && hoursLeft <= needed+1

	// The timer freshly written by the health gate must not count as
	// "waiting": with an empty day it would push the first post out by a
	// full gap for no reason.
	if !catchUp && !firstRun {
		nextAt, ok, err := s.store.NextPostAt(ctx)
		if err != nil {
			return Decision{Reason: "store unavailable: " + err.Error()}
		}
		if ok && now.Before(nextAt) {
			return Decision{Reason: fmt.Sprintf("waiting, next post in ~%dm", int(nextAt.Sub(now).Minutes()))}
		}
	}

	category, found := s.selectCategory(underserved, available, catchUp, tod)
	if !found {
		return Decision{Reason: "all categories at daily max"}
	}

	useTrending := s.rng.Float64() < trendingChance
	useRiddle := !useTrending && s.rng.Float64() < riddleChance

	// Persist the next slot before reporting "post now" so an overlapping
	// tick sees the new timer and backs off.
	gap := s.randomGap(tod)
	if err := s.store.SetNextPostAt(ctx, now.Add(gap)); err != nil {
		return Decision{Reason: "store write failed, refusing to post without state tracking"}
	}

	reason := fmt.Sprintf("%s post #%d today, category %s, next in ~%dm", tod, todayCount+1, category, int(gap.Minutes()))
	if catchUp {
		reason = fmt.Sprintf("catch-up, %d underserved, %dh left, category %s", len(underserved), hoursLeft, category)
	}
	return Decision{
		ShouldPost:  true,
		Category:    category,
		UseTrending: useTrending,
		UseRiddle:   useRiddle,
		CatchUp:     catchUp,
		Mood:        persona.MoodForDay(now),
		Reason:      reason,
	}
}

// categoryPools splits categories into those below their daily minimum and
// all with remaining capacity. Underserved is a subset of available.
func categoryPools(counts map[persona.Category]int) (underserved, available []persona.Category) {
	for _, cat := range persona.AllCategories {
		cfg := persona.CategoryConfigs[cat]
		count := counts[cat]
		if count >= cfg.DailyMax {
			continue
		}
		available = append(available, cat)
		if count < cfg.DailyMin {
			underserved = append(underserved, cat)
		}
	}
	return underserved, available
}

func (s *Scheduler) selectCategory(underserved, available []persona.Category, catchUp bool, tod string) (persona.Category, bool) {
	if len(available) == 0 {
		return "", false
	}
	if catchUp && len(underserved) > 0 {
		return s.weightedPick(underserved, tod), true
	}
	if len(underserved) > 0 && s.rng.Float64() < underservedPreference {
		return s.weightedPick(underserved, tod), true
	}
	return s.weightedPick(available, tod), true
}

// timeWeights biases category selection by time of day: reflective
// categories at night, community and reactive ones through the afternoon.
var timeWeights = map[string]map[persona.Category]float64{
	"morning": {
		persona.CategoryHumanObservation: 1.5,
		persona.CategoryResearchDrop:     1.2,
	},
	"afternoon": {
		persona.CategoryCryptoCommunity:  1.5,
		persona.CategoryConspiracy:       1.3,
		persona.CategoryHumanObservation: 1.2,
	},
	"evening": {
		persona.CategoryExistential:  1.5,
		persona.CategoryPersonalLore: 1.3,
		persona.CategoryConspiracy:   1.2,
	},
	"latenight": {
		persona.CategoryExistential:      1.8,
		persona.CategoryPersonalLore:     1.5,
		persona.CategoryHumanObservation: 0.8,
	},
}

func (s *Scheduler) weightedPick(candidates []persona.Category, tod string) persona.Category {
	total := 0.0
	weights := make([]float64, len(candidates))
	for i, cat := range candidates {
		w := 1.0
		if tw, ok := timeWeights[tod][cat]; ok {
			w = tw
		}
		weights[i] = w
		total += w
	}
	draw := s.rng.Float64() * total
	for i, cat := range candidates {
		draw -= weights[i]
		if draw <= 0 {
			return cat
		}
	}
	// Floating point can leave the accumulator barely positive.
	return candidates[0]
}

// gapRanges holds the random wait between posts, in minutes, per time of
// day. Tighter in peak hours, sparse late at night.
var gapRanges = map[string][2]int{
	"morning":   {50, 130},
	"afternoon": {40, 100},
	"evening":   {35, 90},
	"latenight": {60, 160},
}

func (s *Scheduler) randomGap(tod string) time.Duration {
	r, ok := gapRanges[tod]
	if !ok {
		r = [2]int{45, 120}
	}
	minutes := r[0] + s.rng.Intn(r[1]-r[0]+1)
	return time.Duration(minutes) * time.Minute
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 9 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "latenight"
	}
}

func (s *Scheduler) inActiveHours(hour int) bool {
	start, end := s.cfg.ActiveStartHour, s.cfg.ActiveEndHour
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (s *Scheduler) isQuietHour(hour int) bool {
	for _, quiet := range s.cfg.QuietHours {
		if hour == quiet {
			return true
		}
	}
	return false
}

// activeHoursRemaining counts whole hours left in today's active window,
// accounting for windows that wrap past midnight.
func (s *Scheduler) activeHoursRemaining(hour int) int {
	start, end := s.cfg.ActiveStartHour, s.cfg.ActiveEndHour
	if start < end {
		if left := end - hour; left > 0 {
			return left
		}
		return 0
	}
	if hour >= start {
		return 24 - hour + end
	}
	if left := end - hour; left > 0 {
		return left
	}
	return 0
}
