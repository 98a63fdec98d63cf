package x

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/bignetbrands/et-site/internal/platform"
)

const (
	defaultAPIURL    = "https://api.x.com"
	defaultUploadURL = "https://upload.twitter.com"
)

// Config configures the X API client.
type Config struct {
	// AccessToken is the OAuth2 user-context token used for all v2 calls.
	AccessToken string
	// UserID is the bot's own user id, needed for the mentions timeline.
	UserID string
	APIURL    string
	UploadURL string
	HTTPClient *http.Client
	MaxRetries int
}

// Client talks to the X API v2 (plus the v1.1 media upload endpoint, which
// has no v2 equivalent).
type Client struct {
	apiURL    string
	uploadURL string
	token     string
	userID    string
	client    *http.Client
	executor  failsafe.Executor[*http.Response]
}

var _ platform.Client = (*Client)(nil)

// NewClient creates an X API client with retry on transport errors and 5xx.
// 4xx responses are never retried: the caller's fallback chain needs to see
// them immediately.
func NewClient(cfg Config) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	uploadURL := strings.TrimRight(cfg.UploadURL, "/")
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(200*time.Millisecond, 3*time.Second).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		Build()

	return &Client{
		apiURL:    apiURL,
		uploadURL: uploadURL,
		token:     cfg.AccessToken,
		userID:    cfg.UserID,
		client:    httpClient,
		executor:  failsafe.With(retry),
	}
}

func classify(op string, status int, body string) error {
	kind := platform.KindUnknown
	switch {
	case status == http.StatusTooManyRequests:
		kind = platform.KindRateLimited
	case status == http.StatusNotFound:
		kind = platform.KindNotFound
	case status == http.StatusForbidden || status == http.StatusBadRequest:
		kind = platform.KindRejected
	}
	return &platform.Error{
		Kind: kind,
		Op:   op,
		Err:  fmt.Errorf("status %d: %s", status, strings.TrimSpace(body)),
	}
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	return c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		resp, err := c.client.Do(req)
		if err == nil && resp.StatusCode >= 500 {
			// Drain for connection reuse between retries, but keep the
			// bytes: an exhausted final attempt is still classified with
			// its body.
			raw, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(raw))
		}
		return resp, err
	})
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}
	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return &platform.Error{Kind: platform.KindUnknown, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		u := c.apiURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return &platform.Error{Kind: platform.KindUnknown, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type tweetRequest struct {
	Text         string        `json:"text"`
	Reply        *replyTarget  `json:"reply,omitempty"`
	QuoteTweetID string        `json:"quote_tweet_id,omitempty"`
	Media        *mediaPayload `json:"media,omitempty"`
}

type replyTarget struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type mediaPayload struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post publishes a text-only post and returns its id.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	var out tweetResponse
	if err := c.postJSON(ctx, "post", "/2/tweets", tweetRequest{Text: text}, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// PostWithMedia uploads media via v1.1 and publishes a post referencing it.
func (c *Client) PostWithMedia(ctx context.Context, text string, media []byte) (string, error) {
	mediaID, err := c.uploadMedia(ctx, media)
	if err != nil {
		return "", err
	}
	var out tweetResponse
	req := tweetRequest{Text: text, Media: &mediaPayload{MediaIDs: []string{mediaID}}}
	if err := c.postJSON(ctx, "post_with_media", "/2/tweets", req, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// Reply publishes a threaded reply under parentID.
func (c *Client) Reply(ctx context.Context, text, parentID string) (string, error) {
	var out tweetResponse
	req := tweetRequest{Text: text, Reply: &replyTarget{InReplyToTweetID: parentID}}
	if err := c.postJSON(ctx, "reply", "/2/tweets", req, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// ReplyWithMedia publishes a threaded reply carrying media.
func (c *Client) ReplyWithMedia(ctx context.Context, text, parentID string, media []byte) (string, error) {
	mediaID, err := c.uploadMedia(ctx, media)
	if err != nil {
		return "", err
	}
	var out tweetResponse
	req := tweetRequest{
		Text:  text,
		Reply: &replyTarget{InReplyToTweetID: parentID},
		Media: &mediaPayload{MediaIDs: []string{mediaID}},
	}
	if err := c.postJSON(ctx, "reply_with_media", "/2/tweets", req, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// Quote publishes a quote post of sourceID.
func (c *Client) Quote(ctx context.Context, text, sourceID string) (string, error) {
	var out tweetResponse
	req := tweetRequest{Text: text, QuoteTweetID: sourceID}
	if err := c.postJSON(ctx, "quote", "/2/tweets", req, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

type timelineResponse struct {
	Data []tweetData `json:"data"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
	Includes struct {
		Users []userData `json:"users"`
	} `json:"includes"`
}

type tweetData struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	AuthorID         string `json:"author_id"`
	ConversationID   string `json:"conversation_id"`
	CreatedAt        string `json:"created_at"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	PublicMetrics struct {
		Likes    int `json:"like_count"`
		Reshares int `json:"retweet_count"`
	} `json:"public_metrics"`
}

type userData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (t tweetData) parentID() string {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "replied_to" {
			return ref.ID
		}
	}
	return ""
}

func parseCreatedAt(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// FetchMentionsSince returns mentions of the bot newer than sinceID. An empty
// sinceID fetches purely by recency (catch-up mode).
func (c *Client) FetchMentionsSince(ctx context.Context, sinceID string, limit int) (platform.MentionBatch, error) {
	query := url.Values{}
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}
	query.Set("max_results", fmt.Sprintf("%d", limit))
	query.Set("tweet.fields", "author_id,conversation_id,created_at,referenced_tweets")
	query.Set("expansions", "author_id")

	var out timelineResponse
	if err := c.getJSON(ctx, "fetch_mentions", "/2/users/"+c.userID+"/mentions", query, &out); err != nil {
		return platform.MentionBatch{}, err
	}

	usernames := make(map[string]string, len(out.Includes.Users))
	for _, u := range out.Includes.Users {
		usernames[u.ID] = u.Username
	}

	batch := platform.MentionBatch{NewestID: out.Meta.NewestID}
	for _, t := range out.Data {
		batch.Items = append(batch.Items, platform.Mention{
			ID:             t.ID,
			Text:           t.Text,
			AuthorID:       t.AuthorID,
			AuthorUsername: usernames[t.AuthorID],
			ConversationID: t.ConversationID,
			ParentID:       t.parentID(),
			CreatedAt:      parseCreatedAt(t.CreatedAt),
		})
	}
	return batch, nil
}

type singleTweetResponse struct {
	Data     *tweetData `json:"data"`
	Includes struct {
		Users []userData `json:"users"`
	} `json:"includes"`
}

// FetchPost fetches a single post, returning nil when it no longer exists.
func (c *Client) FetchPost(ctx context.Context, id string) (*platform.Post, error) {
	query := url.Values{}
	query.Set("tweet.fields", "author_id,conversation_id,created_at,public_metrics")
	query.Set("expansions", "author_id")

	var out singleTweetResponse
	if err := c.getJSON(ctx, "fetch_post", "/2/tweets/"+id, query, &out); err != nil {
		if platform.KindOf(err) == platform.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	if out.Data == nil {
		return nil, nil
	}
	username := ""
	for _, u := range out.Includes.Users {
		if u.ID == out.Data.AuthorID {
			username = u.Username
		}
	}
	return &platform.Post{
		ID:             out.Data.ID,
		Text:           out.Data.Text,
		AuthorID:       out.Data.AuthorID,
		AuthorUsername: username,
		ConversationID: out.Data.ConversationID,
		CreatedAt:      parseCreatedAt(out.Data.CreatedAt),
		Likes:          out.Data.PublicMetrics.Likes,
		Reshares:       out.Data.PublicMetrics.Reshares,
	}, nil
}

type userLookupResponse struct {
	Data userData `json:"data"`
}

// FetchUserRecent returns a user's most recent original posts, newest first.
func (c *Client) FetchUserRecent(ctx context.Context, handle string, limit int) ([]platform.Post, error) {
	var user userLookupResponse
	if err := c.getJSON(ctx, "lookup_user", "/2/users/by/username/"+handle, nil, &user); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("max_results", fmt.Sprintf("%d", limit))
	query.Set("exclude", "retweets,replies")
	query.Set("tweet.fields", "conversation_id,created_at,public_metrics")

	var out timelineResponse
	if err := c.getJSON(ctx, "fetch_user_recent", "/2/users/"+user.Data.ID+"/tweets", query, &out); err != nil {
		return nil, err
	}

	posts := make([]platform.Post, 0, len(out.Data))
	for _, t := range out.Data {
		posts = append(posts, platform.Post{
			ID:             t.ID,
			Text:           t.Text,
			AuthorID:       user.Data.ID,
			AuthorUsername: handle,
			ConversationID: t.ConversationID,
			CreatedAt:      parseCreatedAt(t.CreatedAt),
			Likes:          t.PublicMetrics.Likes,
			Reshares:       t.PublicMetrics.Reshares,
		})
	}
	return posts, nil
}

// SearchTrending runs recent-search queries and merges the results. A failed
// query is skipped; trending context is an enhancement, not a gate.
func (c *Client) SearchTrending(ctx context.Context, queries []string) ([]platform.Post, error) {
	var merged []platform.Post
	for _, q := range queries {
		query := url.Values{}
		query.Set("query", q)
		query.Set("max_results", "10")
		query.Set("tweet.fields", "author_id,conversation_id,created_at,public_metrics")

		var out timelineResponse
		if err := c.getJSON(ctx, "search_trending", "/2/tweets/search/recent", query, &out); err != nil {
			continue
		}
		for _, t := range out.Data {
			merged = append(merged, platform.Post{
				ID:             t.ID,
				Text:           t.Text,
				AuthorID:       t.AuthorID,
				ConversationID: t.ConversationID,
				CreatedAt:      parseCreatedAt(t.CreatedAt),
				Likes:          t.PublicMetrics.Likes,
				Reshares:       t.PublicMetrics.Reshares,
			})
		}
	}
	return merged, nil
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

func (c *Client) uploadMedia(ctx context.Context, media []byte) (string, error) {
	form := url.Values{}
	form.Set("media_data", base64.StdEncoding.EncodeToString(media))

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost,
			c.uploadURL+"/1.1/media/upload.json", strings.NewReader(form.Encode()))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", &platform.Error{Kind: platform.KindUnknown, Op: "upload_media", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classify("upload_media", resp.StatusCode, string(raw))
	}
	var out mediaUploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("upload_media: decode response: %w", err)
	}
	return out.MediaIDString, nil
}
