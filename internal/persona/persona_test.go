package persona

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryPersonalLore.Valid())
	assert.False(t, Category("made_up").Valid())
}

func TestCategoryConfigsCoverAllCategories(t *testing.T) {
	for _, c := range AllCategories {
		cfg, ok := CategoryConfigs[c]
		if !ok {
			t.Fatalf("missing config for category %s", c)
		}
		assert.LessOrEqual(t, cfg.DailyMin, cfg.DailyMax, "category %s", c)
	}
}

func TestMoodForDayIsStableWithinADay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, MoodForDay(morning).Name, MoodForDay(evening).Name)
}

func TestMoodForDayCycles(t *testing.T) {
	seen := map[string]bool{}
	day := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		seen[MoodForDay(day.AddDate(0, 0, i)).Name] = true
	}
	// 15 days at ~2.5 days per mood should walk the whole set
	assert.Len(t, seen, len(moods))
}
