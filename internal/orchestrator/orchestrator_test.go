package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/llm"
	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/platform"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
	goredis "github.com/redis/go-redis/v9"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func entryFor(text string) memory.Entry {
	return memory.NewEntry(text, persona.CategoryExistential)
}

func testConfig() config.Config {
	return config.Config{
		BotHandle:        "etalienx",
		ActiveStartHour:  9,
		ActiveEndHour:    3,
		QuietHours:       []int{11, 12, 19, 20},
		DailyPostMin:     7,
		DailyPostMax:     10,
		DailyReplyCap:    50,
		RunReplyCap:      5,
		UserDailyCap:     2,
		ThreadDailyCap:   2,
		MaxRegenAttempts: 1,
		MentionPageSize:  40,
	}
}

// fakeGenerator returns scripted outputs and records its inputs.
type fakeGenerator struct {
	texts    []string
	genErr   error
	replies  []string
	replyErr error
	verdicts []string
	judgeErr error
	scene    string
	sceneErr error

	genRequests   []generator.Request
	replyRequests []generator.ReplyRequest
	judgeCalls    int
}

func (f *fakeGenerator) next(queue *[]string, fallback string) string {
	if len(*queue) == 0 {
		return fallback
	}
	out := (*queue)[0]
	*queue = (*queue)[1:]
	return out
}

func (f *fakeGenerator) Generate(_ context.Context, req generator.Request) (string, error) {
	f.genRequests = append(f.genRequests, req)
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.next(&f.texts, "a fresh observation about your species"), nil
}

func (f *fakeGenerator) GenerateReply(_ context.Context, req generator.ReplyRequest) (string, error) {
	f.replyRequests = append(f.replyRequests, req)
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.next(&f.replies, "noted. filing this with the mothership."), nil
}

func (f *fakeGenerator) JudgeSimilarity(_ context.Context, _ string, recent []string) (string, error) {
	f.judgeCalls++
	if f.judgeErr != nil {
		return "", f.judgeErr
	}
	if len(recent) == 0 {
		return "", nil
	}
	return f.next(&f.verdicts, ""), nil
}

func (f *fakeGenerator) DescribeScene(_ context.Context, _ string, _ persona.Category) (string, error) {
	if f.sceneErr != nil {
		return "", f.sceneErr
	}
	if f.scene == "" {
		return "a foggy parking lot at dawn", nil
	}
	return f.scene, nil
}

// fakeImages implements llm.ImageRenderer.
type fakeImages struct {
	renderErr   error
	downloadErr error
}

func (f *fakeImages) Render(_ context.Context, _ string) (string, error) {
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return "https://img.example/1.png", nil
}

func (f *fakeImages) Download(_ context.Context, _ string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return []byte("png"), nil
}

var _ llm.ImageRenderer = (*fakeImages)(nil)

type sentPost struct {
	Kind     string // post, media, reply, quote
	Text     string
	TargetID string
}

// fakePlatform records every outbound call and serves scripted data.
type fakePlatform struct {
	nextID int
	sent   []sentPost

	postErr   error
	mediaErr  error
	replyErr  error
	quoteErr  error
	mentions  platform.MentionBatch
	fetchErr  error
	onFetch   func()
	parents   map[string]*platform.Post
	userPosts []platform.Post
	trending  []platform.Post
}

var _ platform.Client = (*fakePlatform)(nil)

func (f *fakePlatform) id() string {
	f.nextID++
	return fmt.Sprintf("posted-%d", f.nextID)
}

func (f *fakePlatform) Post(_ context.Context, text string) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.sent = append(f.sent, sentPost{Kind: "post", Text: text})
	return f.id(), nil
}

func (f *fakePlatform) PostWithMedia(_ context.Context, text string, _ []byte) (string, error) {
	if f.mediaErr != nil {
		return "", f.mediaErr
	}
	f.sent = append(f.sent, sentPost{Kind: "media", Text: text})
	return f.id(), nil
}

func (f *fakePlatform) Reply(_ context.Context, text, parentID string) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.sent = append(f.sent, sentPost{Kind: "reply", Text: text, TargetID: parentID})
	return f.id(), nil
}

func (f *fakePlatform) ReplyWithMedia(_ context.Context, text, parentID string, _ []byte) (string, error) {
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.sent = append(f.sent, sentPost{Kind: "reply_media", Text: text, TargetID: parentID})
	return f.id(), nil
}

func (f *fakePlatform) Quote(_ context.Context, text, sourceID string) (string, error) {
	if f.quoteErr != nil {
		return "", f.quoteErr
	}
	f.sent = append(f.sent, sentPost{Kind: "quote", Text: text, TargetID: sourceID})
	return f.id(), nil
}

func (f *fakePlatform) FetchMentionsSince(_ context.Context, sinceID string, _ int) (platform.MentionBatch, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.fetchErr != nil {
		return platform.MentionBatch{}, f.fetchErr
	}
	batch := platform.MentionBatch{NewestID: f.mentions.NewestID}
	for _, m := range f.mentions.Items {
		if sinceID == "" || platform.CompareIDs(m.ID, sinceID) > 0 {
			batch.Items = append(batch.Items, m)
		}
	}
	return batch, nil
}

func (f *fakePlatform) FetchPost(_ context.Context, id string) (*platform.Post, error) {
	return f.parents[id], nil
}

func (f *fakePlatform) FetchUserRecent(_ context.Context, _ string, _ int) ([]platform.Post, error) {
	return f.userPosts, nil
}

func (f *fakePlatform) SearchTrending(_ context.Context, _ []string) ([]platform.Post, error) {
	return f.trending, nil
}

func (f *fakePlatform) byKind(kind string) []sentPost {
	var out []sentPost
	for _, p := range f.sent {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	orch     *Orchestrator
	store    *store.Store
	gen      *fakeGenerator
	platform *fakePlatform
	images   *fakeImages
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.NewLogger()
	s := store.New(client, logger)
	cfg := testConfig()
	sched := scheduler.New(s, cfg, logger).
		WithClock(func() time.Time { return testNow }).
		WithRNG(rand.New(rand.NewSource(1)))

	gen := &fakeGenerator{}
	fp := &fakePlatform{parents: map[string]*platform.Post{}}
	images := &fakeImages{}

	orch := New(cfg, s, sched, gen, images, fp, logger, nil).
		WithClock(func() time.Time { return testNow }).
		WithSleep(func(time.Duration) {})

	return &fixture{orch: orch, store: s, gen: gen, platform: fp, images: images, redis: mr}
}
