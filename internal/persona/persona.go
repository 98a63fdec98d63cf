package persona

import "time"

// Category is a content pillar the scheduler rotates between. Each category
// carries its own daily min/max target, so the account keeps a deliberate mix
// instead of drifting toward whatever generates easiest.
type Category string

const (
	CategoryHumanObservation Category = "human_observation"
	CategoryResearchDrop     Category = "research_drop"
	CategoryCryptoCommunity  Category = "crypto_community"
	CategoryPersonalLore     Category = "personal_lore"
	CategoryExistential      Category = "existential"
	CategoryConspiracy       Category = "disclosure_conspiracy"
)

// AllCategories lists every category in a stable order.
var AllCategories = []Category{
	CategoryHumanObservation,
	CategoryResearchDrop,
	CategoryCryptoCommunity,
	CategoryPersonalLore,
	CategoryExistential,
	CategoryConspiracy,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CategoryConfig holds per-category posting targets.
type CategoryConfig struct {
	DailyMin      int
	DailyMax      int
	GenerateImage bool
}

// CategoryConfigs mirrors the production pillar targets: 7-10 posts per day
// across all six categories.
var CategoryConfigs = map[Category]CategoryConfig{
	CategoryHumanObservation: {DailyMin: 2, DailyMax: 3, GenerateImage: true},
	CategoryResearchDrop:     {DailyMin: 1, DailyMax: 1},
	CategoryCryptoCommunity:  {DailyMin: 1, DailyMax: 2},
	CategoryPersonalLore:     {DailyMin: 0, DailyMax: 1, GenerateImage: true},
	CategoryExistential:      {DailyMin: 1, DailyMax: 1, GenerateImage: true},
	CategoryConspiracy:       {DailyMin: 1, DailyMax: 2},
}

// Mood is a slow-cycling tone modifier fed into content generation.
type Mood struct {
	Name     string
	Modifier string
}

var moods = []Mood{
	{Name: "warm", Modifier: "gentle, affectionate humor"},
	{Name: "restless", Modifier: "edgier, sharper observations"},
	{Name: "melancholy", Modifier: "wry, self-deprecating, absurd"},
	{Name: "playful", Modifier: "mischievous, chaotic-good energy"},
	{Name: "homesick", Modifier: "distant, fragmentary, processed through humor"},
}

// MoodForDay returns the mood for a given date. The mood shifts roughly every
// two and a half days and is a pure function of the date, so every invocation
// in a day agrees without any stored state.
func MoodForDay(date time.Time) Mood {
	yearStart := time.Date(date.Year(), 1, 1, 0, 0, 0, 0, date.Location())
	dayOfYear := int(date.Sub(yearStart).Hours() / 24)
	index := int(float64(dayOfYear)/2.5) % len(moods)
	return moods[index]
}
