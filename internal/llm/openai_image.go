package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIImageRenderer implements ImageRenderer against the OpenAI images API.
type OpenAIImageRenderer struct {
	client *http.Client
	apiKey string
	apiURL string
	model  string
}

var _ ImageRenderer = (*OpenAIImageRenderer)(nil)

func NewOpenAIImageRenderer(cfg Config) *OpenAIImageRenderer {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.openai.com"
	}
	model := cfg.Model
	if model == "" {
		model = "dall-e-3"
	}
	return &OpenAIImageRenderer{
		client: &http.Client{Timeout: 120 * time.Second},
		apiKey: cfg.APIKey,
		apiURL: apiURL,
		model:  model,
	}
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Render generates one landscape image and returns its temporary URL.
func (p *OpenAIImageRenderer) Render(ctx context.Context, description string) (string, error) {
	payload, err := json.Marshal(imageRequest{
		Model:   p.model,
		Prompt:  description,
		N:       1,
		Size:    "1792x1024",
		Quality: "hd",
		Style:   "natural",
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("openai: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out imageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", errors.New("openai: no image URL returned")
	}
	return out.Data[0].URL, nil
}

// Download fetches the generated image bytes. Image URLs are temporary, so
// the bytes must be pulled before posting.
func (p *OpenAIImageRenderer) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download image: create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
