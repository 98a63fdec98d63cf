package memory

import (
	"fmt"
	"testing"

	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/stretchr/testify/assert"
)

func TestOpeningFingerprint(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Your species invented alarm clocks and then the snooze button", "your species invented alarm"},
		{"YOUR species, invented! alarm clocks", "your species invented alarm"},
		{"short one", "short one"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OpeningFingerprint(tt.text), "text: %q", tt.text)
	}
}

func TestClassifyStructure(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"why do humans do this?", StructureQuestion},
		{"the files are open but nobody reads them", StructureContrast},
		{"you people are fascinating", StructureDirectAddress},
		{"i have seen three hundred sunrises this week", StructureFirstPerson},
		{"the moon is a lamp nobody turns off", StructureStatement},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStructure(tt.text), "text: %q", tt.text)
	}
}

func TestExtractTopics(t *testing.T) {
	topics := ExtractTopics("drank coffee while watching the crypto chart rug itself")
	assert.Contains(t, topics, "coffee")
	assert.Contains(t, topics, "crypto")
	assert.NotContains(t, topics, "space")
}

func TestSummarizeOverusedTopics(t *testing.T) {
	var entries []Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, NewEntry(fmt.Sprintf("coffee thought number %d", i), persona.CategoryHumanObservation))
	}
	entries = append(entries, NewEntry("the mothership has no cupholders", persona.CategoryPersonalLore))

	summary := Summarize(entries)
	assert.Equal(t, []string{"coffee"}, summary.OverusedTopics)
}

func TestSummarizeTopicWindowBounded(t *testing.T) {
	// Three coffee mentions, but two fall outside the 50-entry window.
	entries := []Entry{NewEntry("coffee again", persona.CategoryHumanObservation)}
	for i := 0; i < 49; i++ {
		entries = append(entries, NewEntry("the orbit is quiet tonight", persona.CategoryExistential))
	}
	entries = append(entries,
		NewEntry("more coffee", persona.CategoryHumanObservation),
		NewEntry("coffee forever", persona.CategoryHumanObservation),
	)

	summary := Summarize(entries)
	assert.NotContains(t, summary.OverusedTopics, "coffee")
}

func TestSummarizeRecentWindows(t *testing.T) {
	entries := []Entry{
		NewEntry("why is the moon free?", persona.CategoryExistential),
		NewEntry("you people invented lines to stand in", persona.CategoryHumanObservation),
	}
	for i := 0; i < 15; i++ {
		entries = append(entries, NewEntry("the signal is weak today", persona.CategoryConspiracy))
	}

	summary := Summarize(entries)
	assert.Contains(t, summary.RecentStructures, StructureQuestion)
	assert.Contains(t, summary.RecentStructures, StructureDirectAddress)
	assert.Contains(t, summary.RecentOpenings, "why is the moon")
	// The 16th and later entries are outside both windows, and the repeated
	// statement structure appears once.
	assert.Len(t, summary.RecentStructures, 3)
}

func TestSemanticWindowCapped(t *testing.T) {
	var entries []Entry
	for i := 0; i < 12; i++ {
		entries = append(entries, NewEntry(fmt.Sprintf("text %d", i), persona.CategoryExistential))
	}
	window := SemanticWindow(entries)
	assert.Len(t, window, 10)
	assert.Equal(t, "text 0", window[0])
}
