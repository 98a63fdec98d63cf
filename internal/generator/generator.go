// Package generator produces the account's content through an LLM,
// including the low-temperature similarity judgment the dedup pass uses.
package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bignetbrands/et-site/internal/llm"
	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/pkg/logging"
)

// Request carries everything a post generation needs: the category, the
// day's mood, dedup exclusions, and recent texts as variety context.
type Request struct {
	Category    persona.Category
	Mood        persona.Mood
	Exclusions  memory.Summary
	RecentTexts []string
	Trending    []string
	UseRiddle   bool

	// TopPerformers are past posts that earned outsized engagement, offered
	// as tone reference rather than material to reuse.
	TopPerformers []string

	// Nudges appended to the prompt on corrective retries, such as a hard
	// length reminder or a specific text to steer away from.
	Nudges []string
}

// ReplyRequest describes the mention being answered.
type ReplyRequest struct {
	Text           string
	AuthorUsername string

	// ParentText is the post the mention was replying to, when resolvable.
	// It gives the reply conversational grounding.
	ParentText string
}

// Generator is the content-generation collaborator. Implementations must be
// safe for sequential reuse; the engine never calls them concurrently.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
	// JudgeSimilarity returns the recent text the candidate is too close
	// to, or "" when the candidate passes.
	JudgeSimilarity(ctx context.Context, candidate string, recent []string) (string, error)
	DescribeScene(ctx context.Context, text string, category persona.Category) (string, error)
}

// LLMGenerator implements Generator over a text completer.
type LLMGenerator struct {
	completer llm.Completer
	logger    logging.Logger
}

var _ Generator = (*LLMGenerator)(nil)

func New(completer llm.Completer, logger logging.Logger) *LLMGenerator {
	return &LLMGenerator{completer: completer, logger: logger}
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (string, error) {
	out, err := g.completer.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPostPrompt(req),
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("generate post: %w", err)
	}
	return stripWrappingQuotes(out), nil
}

func (g *LLMGenerator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	out, err := g.completer.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildReplyPrompt(req),
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return stripWrappingQuotes(out), nil
}

// JudgeSimilarity asks the model, at temperature zero, whether the candidate
// restates any of the recent texts. The verdict parser is strict: anything
// that is not a valid index reads as a pass.
func (g *LLMGenerator) JudgeSimilarity(ctx context.Context, candidate string, recent []string) (string, error) {
	if len(recent) == 0 {
		return "", nil
	}
	out, err := g.completer.Complete(ctx, llm.CompletionRequest{
		Prompt:      buildSimilarityPrompt(candidate, recent),
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("similarity check: %w", err)
	}
	verdict := strings.TrimSpace(out)
	if strings.EqualFold(verdict, "NONE") {
		return "", nil
	}
	idx, err := strconv.Atoi(verdict)
	if err != nil || idx < 1 || idx > len(recent) {
		g.logger.WithField("verdict", verdict).Warn("Unparseable similarity verdict, treating as pass")
		return "", nil
	}
	return recent[idx-1], nil
}

func (g *LLMGenerator) DescribeScene(ctx context.Context, text string, category persona.Category) (string, error) {
	out, err := g.completer.Complete(ctx, llm.CompletionRequest{
		Prompt:      buildScenePrompt(text, category),
		MaxTokens:   200,
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("describe scene: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// stripWrappingQuotes removes quotes the model sometimes wraps around its
// output.
func stripWrappingQuotes(text string) string {
	text = strings.TrimSpace(text)
	for len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			text = strings.TrimSpace(text[1 : len(text)-1])
			continue
		}
		break
	}
	return text
}
