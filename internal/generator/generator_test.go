package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bignetbrands/et-site/internal/llm"
	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter returns canned responses and records prompts.
type scriptedCompleter struct {
	responses []string
	err       error
	prompts   []string
	requests  []llm.CompletionRequest
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	c.prompts = append(c.prompts, req.Prompt)
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func newGenerator(completer *scriptedCompleter) *LLMGenerator {
	return New(completer, logging.NewLogger())
}

func timeFixed() time.Time {
	return time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
}

func TestGenerateStripsWrappingQuotes(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{`"the moon again. free. nobody looks up."`}}
	g := newGenerator(completer)

	got, err := g.Generate(context.Background(), Request{
		Category: persona.CategoryExistential,
		Mood:     persona.MoodForDay(timeFixed()),
	})
	require.NoError(t, err)
	assert.Equal(t, "the moon again. free. nobody looks up.", got)
}

func TestGeneratePromptCarriesExclusions(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"ok"}}
	g := newGenerator(completer)

	_, err := g.Generate(context.Background(), Request{
		Category: persona.CategoryHumanObservation,
		Exclusions: memory.Summary{
			OverusedTopics:   []string{"coffee"},
			RecentOpenings:   []string{"your species invented alarm"},
			RecentStructures: []string{memory.StructureQuestion},
		},
		Nudges: []string{"IMPORTANT: keep it under 280 characters."},
	})
	require.NoError(t, err)

	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "coffee")
	assert.Contains(t, prompt, "your species invented alarm")
	assert.Contains(t, prompt, "question")
	assert.Contains(t, prompt, "IMPORTANT: keep it under 280 characters.")
}

func TestJudgeSimilarityVerdicts(t *testing.T) {
	recent := []string{"first text", "second text", "third text"}
	tests := []struct {
		name    string
		verdict string
		want    string
	}{
		{"none", "NONE", ""},
		{"lowercase none", "none", ""},
		{"match", "2", "second text"},
		{"out of range", "9", ""},
		{"garbage", "probably the second one", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &scriptedCompleter{responses: []string{tt.verdict}}
			g := newGenerator(completer)
			got, err := g.JudgeSimilarity(context.Background(), "candidate", recent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJudgeSimilarityUsesZeroTemperature(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"NONE"}}
	g := newGenerator(completer)

	_, err := g.JudgeSimilarity(context.Background(), "candidate", []string{"a"})
	require.NoError(t, err)
	assert.Zero(t, completer.requests[0].Temperature)
}

func TestJudgeSimilarityEmptyWindowSkipsCall(t *testing.T) {
	completer := &scriptedCompleter{}
	g := newGenerator(completer)

	got, err := g.JudgeSimilarity(context.Background(), "candidate", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, completer.prompts, "no completion call for an empty window")
}

func TestJudgeSimilarityPropagatesError(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("provider down")}
	g := newGenerator(completer)

	_, err := g.JudgeSimilarity(context.Background(), "candidate", []string{"a"})
	assert.Error(t, err)
}

func TestGenerateReplyIncludesParentContext(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"a reply"}}
	g := newGenerator(completer)

	_, err := g.GenerateReply(context.Background(), ReplyRequest{
		Text:           "do you even sleep",
		AuthorUsername: "spacewatcher",
		ParentText:     "3am and the orbit is loud tonight",
	})
	require.NoError(t, err)
	assert.Contains(t, completer.prompts[0], "spacewatcher")
	assert.Contains(t, completer.prompts[0], "3am and the orbit is loud tonight")
}
