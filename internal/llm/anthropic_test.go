package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "sys", req.System)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  a tweet  "}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicCompleter(Config{APIKey: "key", APIURL: srv.URL, Model: "test-model"})
	got, err := p.Complete(context.Background(), CompletionRequest{System: "sys", Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "a tweet", got)
}

func TestAnthropicCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewAnthropicCompleter(Config{APIURL: srv.URL, Model: "m"})
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "go"})
	assert.Error(t, err)
}

func TestAnthropicCompleteRequiresModel(t *testing.T) {
	p := NewAnthropicCompleter(Config{})
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "go"})
	assert.Error(t, err)
}

func TestOpenAIRenderAndDownload(t *testing.T) {
	var imageURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/images/generations":
			_, _ = w.Write([]byte(`{"data":[{"url":"` + imageURL + `"}]}`))
		case "/img.png":
			_, _ = w.Write([]byte("png-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	imageURL = srv.URL + "/img.png"

	p := NewOpenAIImageRenderer(Config{APIKey: "key", APIURL: srv.URL})
	url, err := p.Render(context.Background(), "a foggy landscape")
	require.NoError(t, err)
	assert.Equal(t, imageURL, url)

	data, err := p.Download(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}
