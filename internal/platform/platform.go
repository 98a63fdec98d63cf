package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies platform failures so callers can drive the reply
// fallback chain on a stable type instead of probing error shapes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindRejected
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindRejected:
		return "rejected"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error wraps a platform failure with its classification.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from an error chain, defaulting to KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// CompareIDs orders platform post IDs, which are decimal strings of varying
// length. Longer means larger; equal lengths compare lexically.
func CompareIDs(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Post is a published post on the platform.
type Post struct {
	ID             string
	Text           string
	AuthorID       string
	AuthorUsername string
	ConversationID string
	CreatedAt      time.Time
	Likes          int
	Reshares       int
}

// Mention is an inbound mention of the bot.
type Mention struct {
	ID             string
	Text           string
	AuthorID       string
	AuthorUsername string
	ConversationID string
	ParentID       string // post this mention replies to, if any
	CreatedAt      time.Time
}

// MentionBatch is one page of mentions, oldest data first is NOT guaranteed;
// NewestID is the platform's newest ID in the page regardless of order.
type MentionBatch struct {
	Items    []Mention
	NewestID string
}

// Client is the platform surface the engine depends on. Reply and Quote
// failures must be classifiable via KindOf so the fallback chain can react.
type Client interface {
	Post(ctx context.Context, text string) (string, error)
	PostWithMedia(ctx context.Context, text string, media []byte) (string, error)
	Reply(ctx context.Context, text, parentID string) (string, error)
	ReplyWithMedia(ctx context.Context, text, parentID string, media []byte) (string, error)
	Quote(ctx context.Context, text, sourceID string) (string, error)
	FetchMentionsSince(ctx context.Context, sinceID string, limit int) (MentionBatch, error)
	FetchPost(ctx context.Context, id string) (*Post, error)
	FetchUserRecent(ctx context.Context, handle string, limit int) ([]Post, error)
	SearchTrending(ctx context.Context, queries []string) ([]Post, error)
}
