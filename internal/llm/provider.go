package llm

import (
	"context"

	pkgconfig "github.com/bignetbrands/et-site/pkg/config"
)

// CompletionRequest is a single-shot text completion. The engine never needs
// streaming or tool use; replies and posts are short.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Completer produces text completions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageRenderer turns a scene description into a downloadable image URL.
type ImageRenderer interface {
	Render(ctx context.Context, description string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Config configures an LLM provider from the environment.
type Config struct {
	APIKey    string
	APIURL    string
	Model     string
	MaxTokens int
}

// LoadTextConfig reads the text-generation provider config.
func LoadTextConfig() Config {
	return Config{
		APIKey:    pkgconfig.GetEnv("ANTHROPIC_API_KEY", ""),
		APIURL:    pkgconfig.GetEnv("ANTHROPIC_API_URL", ""),
		Model:     pkgconfig.GetEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		MaxTokens: pkgconfig.GetEnvInt("ANTHROPIC_MAX_TOKENS", 300),
	}
}

// LoadImageConfig reads the image-generation provider config.
func LoadImageConfig() Config {
	return Config{
		APIKey: pkgconfig.GetEnv("OPENAI_API_KEY", ""),
		APIURL: pkgconfig.GetEnv("OPENAI_API_URL", ""),
		Model:  pkgconfig.GetEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
	}
}
