package generator

import (
	"fmt"
	"strings"

	"github.com/bignetbrands/et-site/internal/persona"
)

const systemPrompt = `You are ET, an extraterrestrial who has been stranded on Earth
for decades and copes by posting. You observe human habits with genuine, slightly
baffled affection. You are deep in crypto culture but never shill. Lowercase unless
emphasis demands otherwise. No hashtags. No emoji except sparingly. Never explain
the joke. Never break character. Output only the post text, nothing else.`

var categoryBriefs = map[persona.Category]string{
	persona.CategoryHumanObservation: "an observation about a mundane human habit that genuinely puzzles or delights you",
	persona.CategoryResearchDrop:     "a deadpan field-research note, as if filing a report home about Earth",
	persona.CategoryCryptoCommunity:  "a comment on crypto culture from the inside, wry but never promotional",
	persona.CategoryPersonalLore:     "a fragment of your own backstory: the crash, the ship, the decades in hiding",
	persona.CategoryExistential:      "a quiet cosmic thought, melancholy allowed, despair not",
	persona.CategoryConspiracy:       "a knowing nod at disclosure culture, funnier because you actually know",
}

func buildPostPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write one post: %s.\n", categoryBriefs[req.Category])
	fmt.Fprintf(&b, "Current mood: %s (%s).\n", req.Mood.Name, req.Mood.Modifier)

	if req.UseRiddle {
		b.WriteString("Shape it as a riddle or small puzzle your followers can chew on.\n")
	}
	if len(req.Trending) > 0 {
		b.WriteString("React to one of these currently circulating posts, without quoting it directly:\n")
		for _, t := range req.Trending {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(req.RecentTexts) > 0 {
		b.WriteString("Your recent posts, do not repeat yourself:\n")
		for _, t := range req.RecentTexts {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(req.TopPerformers) > 0 {
		b.WriteString("Past posts of yours that landed well, match their energy without reusing their words:\n")
		for _, t := range req.TopPerformers {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(req.Exclusions.OverusedTopics) > 0 {
		fmt.Fprintf(&b, "Topics you have worn out lately, avoid them: %s.\n", strings.Join(req.Exclusions.OverusedTopics, ", "))
	}
	if len(req.Exclusions.RecentOpenings) > 0 {
		fmt.Fprintf(&b, "Do not open with any of these: %s.\n", strings.Join(req.Exclusions.RecentOpenings, "; "))
	}
	if len(req.Exclusions.RecentStructures) > 0 {
		fmt.Fprintf(&b, "Recently used shapes to avoid: %s.\n", strings.Join(req.Exclusions.RecentStructures, ", "))
	}
	for _, nudge := range req.Nudges {
		fmt.Fprintf(&b, "%s\n", nudge)
	}
	b.WriteString("Hard limit: 280 characters.")
	return b.String()
}

func buildReplyPrompt(req ReplyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s said to you: %q\n", req.AuthorUsername, req.Text)
	if req.ParentText != "" {
		fmt.Fprintf(&b, "They were replying to your post: %q\n", req.ParentText)
	}
	b.WriteString("Write your reply. Short, in character, no @-mentions. Hard limit: 280 characters.")
	return b.String()
}

func buildSimilarityPrompt(candidate string, recent []string) string {
	var b strings.Builder
	b.WriteString("You are a strict duplicate detector. Compare the candidate against the numbered posts.\n")
	b.WriteString("Answer with the single number of a post that says essentially the same thing, or NONE.\n")
	b.WriteString("Surface-level shared words are not enough; only flag a real restatement.\n\n")
	for i, text := range recent {
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	fmt.Fprintf(&b, "\nCandidate: %s\n\nAnswer:", candidate)
	return b.String()
}

func buildScenePrompt(text string, category persona.Category) string {
	return fmt.Sprintf(`Describe, in two or three sentences, a photographic scene to
accompany this post by a hiding extraterrestrial: %q

Category: %s. The image must look like an amateur photo taken on an old phone,
slightly off-frame, no text in the image, never showing the alien directly.
Output only the scene description.`, text, category)
}
