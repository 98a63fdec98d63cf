package memory

import (
	"strings"
	"unicode"

	"github.com/bignetbrands/et-site/internal/persona"
)

// Entry is a ledger record of one published text, enriched with the
// structural fingerprints the deduplication pass compares against.
type Entry struct {
	Text      string           `json:"text"`
	Category  persona.Category `json:"category"`
	Topics    []string         `json:"topics"`
	Opening   string           `json:"opening"`
	Structure string           `json:"structure"`
}

// NewEntry fingerprints a published text.
func NewEntry(text string, category persona.Category) Entry {
	return Entry{
		Text:      text,
		Category:  category,
		Topics:    ExtractTopics(text),
		Opening:   OpeningFingerprint(text),
		Structure: ClassifyStructure(text),
	}
}

// Structure tags form a closed set. Classification picks the first match in
// priority order; everything else is a plain statement.
const (
	StructureQuestion      = "question"
	StructureContrast      = "contrast"
	StructureDirectAddress = "direct-address"
	StructureFirstPerson   = "first-person"
	StructureStatement     = "statement"
)

// topicBank maps topic labels to the keywords that signal them. The bank is
// fixed: topic drift across deploys would make historical exclusions
// meaningless.
var topicBank = map[string][]string{
	"disclosure":  {"disclosure", "declassified", "cover-up", "coverup", "the files", "pentagon"},
	"government":  {"government", "congress", "feds", "agency", "classified"},
	"crypto":      {"crypto", "token", "coin", "chart", "pump", "rug", "wallet", "onchain", "on-chain"},
	"coffee":      {"coffee", "espresso", "caffeine"},
	"phones":      {"phone", "screen", "scrolling", "notification", "wifi", "wi-fi"},
	"space":       {"ship", "orbit", "galaxy", "planet", "lightyear", "light-year", "mothership"},
	"dreams":      {"dream", "sleep", "3am", "3 am", "insomnia"},
	"food":        {"food", "snack", "pizza", "taco", "grocery"},
	"time":        {"time is", "linear time", "timeline", "centuries", "millennia"},
	"human_habit": {"humans", "you people", "your species", "earthlings"},
}

// ExtractTopics returns the topic labels whose keywords appear in text.
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for topic, keywords := range topicBank {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// OpeningFingerprint normalizes the first four words of a text. Two posts
// with the same fingerprint read as the same opening regardless of casing
// or punctuation.
func OpeningFingerprint(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) > 4 {
		words = words[:4]
	}
	for i, word := range words {
		words[i] = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
	}
	return strings.Join(words, " ")
}

// ClassifyStructure tags the rhetorical shape of a text.
func ClassifyStructure(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(text, "?"):
		return StructureQuestion
	case containsAnyWord(lower, "but", "yet", "except", "meanwhile", "however"):
		return StructureContrast
	case strings.HasPrefix(lower, "you ") || strings.HasPrefix(lower, "your "):
		return StructureDirectAddress
	case strings.HasPrefix(lower, "i ") || strings.HasPrefix(lower, "i'"):
		return StructureFirstPerson
	default:
		return StructureStatement
	}
}

func containsAnyWord(lower string, words ...string) bool {
	fields := strings.Fields(lower)
	for _, field := range fields {
		trimmed := strings.Trim(field, ".,!?;:")
		for _, word := range words {
			if trimmed == word {
				return true
			}
		}
	}
	return false
}

// Summary lists what the generator must avoid, derived from recent history.
type Summary struct {
	OverusedTopics   []string
	RecentStructures []string
	RecentOpenings   []string
}

const (
	topicWindow       = 50
	topicThreshold    = 3
	structureWindow   = 15
	openingWindow     = 15
	semanticWindowCap = 10
)

// Summarize derives generator exclusions from the ledger, most recent first:
// topics used at least three times in the last fifty entries, plus every
// structure and opening seen in the last fifteen.
func Summarize(entries []Entry) Summary {
	var summary Summary

	counts := make(map[string]int)
	for i, entry := range entries {
		if i >= topicWindow {
			break
		}
		for _, topic := range entry.Topics {
			counts[topic]++
			if counts[topic] == topicThreshold {
				summary.OverusedTopics = append(summary.OverusedTopics, topic)
			}
		}
	}

	seenStructures := make(map[string]bool)
	seenOpenings := make(map[string]bool)
	for i, entry := range entries {
		if i >= structureWindow && i >= openingWindow {
			break
		}
		if i < structureWindow && entry.Structure != "" && !seenStructures[entry.Structure] {
			seenStructures[entry.Structure] = true
			summary.RecentStructures = append(summary.RecentStructures, entry.Structure)
		}
		if i < openingWindow && entry.Opening != "" && !seenOpenings[entry.Opening] {
			seenOpenings[entry.Opening] = true
			summary.RecentOpenings = append(summary.RecentOpenings, entry.Opening)
		}
	}
	return summary
}

// SemanticWindow returns the texts the similarity judge compares a candidate
// against, capped at the ten most recent entries.
func SemanticWindow(entries []Entry) []string {
	n := len(entries)
	if n > semanticWindowCap {
		n = semanticWindowCap
	}
	texts := make([]string, 0, n)
	for _, entry := range entries[:n] {
		texts = append(texts, entry.Text)
	}
	return texts
}
