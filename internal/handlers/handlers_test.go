package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/orchestrator"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/platform"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCronSecret  = "cron-secret"
	testAdminSecret = "admin-secret"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req generator.Request) (string, error) {
	return "the gravity here is negotiable and nobody talks about it", nil
}

func (stubGenerator) GenerateReply(ctx context.Context, req generator.ReplyRequest) (string, error) {
	return "noted. filing this with the mothership.", nil
}

func (stubGenerator) JudgeSimilarity(ctx context.Context, candidate string, recent []string) (string, error) {
	return "", nil
}

func (stubGenerator) DescribeScene(ctx context.Context, text string, category persona.Category) (string, error) {
	return "an empty parking lot at dusk", nil
}

type stubPlatform struct {
	posts []string
}

func (p *stubPlatform) Post(ctx context.Context, text string) (string, error) {
	p.posts = append(p.posts, text)
	return "900", nil
}

func (p *stubPlatform) PostWithMedia(ctx context.Context, text string, media []byte) (string, error) {
	p.posts = append(p.posts, text)
	return "901", nil
}

func (p *stubPlatform) Reply(ctx context.Context, text, parentID string) (string, error) {
	return "902", nil
}

func (p *stubPlatform) ReplyWithMedia(ctx context.Context, text, parentID string, media []byte) (string, error) {
	return "903", nil
}

func (p *stubPlatform) Quote(ctx context.Context, text, sourceID string) (string, error) {
	return "904", nil
}

func (p *stubPlatform) FetchMentionsSince(ctx context.Context, sinceID string, limit int) (platform.MentionBatch, error) {
	return platform.MentionBatch{}, nil
}

func (p *stubPlatform) FetchPost(ctx context.Context, id string) (*platform.Post, error) {
	return nil, &platform.Error{Kind: platform.KindNotFound, Op: "fetch_post"}
}

func (p *stubPlatform) FetchUserRecent(ctx context.Context, handle string, limit int) ([]platform.Post, error) {
	return nil, nil
}

func (p *stubPlatform) SearchTrending(ctx context.Context, queries []string) ([]platform.Post, error) {
	return nil, nil
}

type fixture struct {
	router   *gin.Engine
	store    *store.Store
	platform *stubPlatform
	redis    *miniredis.Miniredis
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

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := logging.NewLogger()
	cfg := testConfig()

	s := store.New(client, logger)
	now := func() time.Time {
		return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	}
	sched := scheduler.New(s, cfg, logger).WithClock(now)
	pf := &stubPlatform{}
	orch := orchestrator.New(cfg, s, sched, stubGenerator{}, nil, pf, logger, nil).
		WithClock(now).
		WithSleep(func(time.Duration) {})

	h := New(cfg, s, orch, logger)
	h.now = now
	router := gin.New()
	h.RegisterRoutes(router, testCronSecret, testAdminSecret)

	return &fixture{router: router, store: s, platform: pf, redis: mr}
}

func doJSON(t *testing.T, router *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCronRoutesRequireSecret(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/cron/tweet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, f.router, http.MethodPost, "/cron/tweet", "wrong-secret", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, f.router, http.MethodPost, "/cron/tweet", testCronSecret, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutesRejectCronSecret(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/admin/kill-switch", testCronSecret, gin.H{"paused": true})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronTweetPostsAndReports(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/cron/tweet", testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["posted"])
	require.Len(t, f.platform.posts, 1)
}

func TestCronTweetHonorsKillSwitch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetPaused(context.Background(), true))

	w := doJSON(t, f.router, http.MethodPost, "/cron/tweet", testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["posted"])
	assert.Empty(t, f.platform.posts)
}

func TestCronRepliesWithNoMentions(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/cron/replies", testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(0), body["fetched"])
	assert.Equal(t, float64(0), body["replied"])
}

func TestSubmitTargetNormalizesAndVotes(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/targets", "", gin.H{"handle": "@CoolPerson_1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodPost, "/targets", "", gin.H{"handle": "coolperson_1"})
	require.Equal(t, http.StatusOK, w.Code)

	target, err := f.store.Target(context.Background(), "coolperson_1")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, 2, target.Votes)
}

func TestSubmitTargetRejectsInvalidHandles(t *testing.T) {
	f := newFixture(t)

	for _, handle := range []string{"", "has spaces", "way_too_long_for_any_real_account_name", "semi;colon"} {
		w := doJSON(t, f.router, http.MethodPost, "/targets", "", gin.H{"handle": handle})
		assert.Equal(t, http.StatusBadRequest, w.Code, "handle %q", handle)
	}
}

func TestSubmitTargetRejectsBotItself(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/targets", "", gin.H{"handle": "@EtAlienX"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTargetsSortsForcedThenVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := f.store.VoteTarget(ctx, "popular", base)
		require.NoError(t, err)
	}
	_, err := f.store.VoteTarget(ctx, "quiet", base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, f.store.SetTargetForced(ctx, "pinned", true, base))

	w := doJSON(t, f.router, http.MethodGet, "/targets", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Targets []store.TargetAccount `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Targets, 3)
	assert.Equal(t, "pinned", out.Targets[0].Handle)
	assert.Equal(t, "popular", out.Targets[1].Handle)
	assert.Equal(t, "quiet", out.Targets[2].Handle)
}

func TestAdminTargetActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := doJSON(t, f.router, http.MethodPost, "/targets/admin", testAdminSecret, gin.H{"action": "force", "handle": "vip"})
	require.Equal(t, http.StatusOK, w.Code)
	target, err := f.store.Target(ctx, "vip")
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.True(t, target.Forced)

	w = doJSON(t, f.router, http.MethodPost, "/targets/admin", testAdminSecret, gin.H{"action": "remove", "handle": "vip"})
	require.Equal(t, http.StatusOK, w.Code)
	target, err = f.store.Target(ctx, "vip")
	require.NoError(t, err)
	assert.Nil(t, target)

	w = doJSON(t, f.router, http.MethodPost, "/targets/admin", testAdminSecret, gin.H{"action": "explode", "handle": "vip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKillSwitchRoundTrip(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodGet, "/admin/kill-switch", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["paused"])

	w = doJSON(t, f.router, http.MethodPost, "/admin/kill-switch", testAdminSecret, gin.H{"paused": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodGet, "/admin/kill-switch", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["paused"])
}

func TestManualPostBypassesScheduler(t *testing.T) {
	f := newFixture(t)

	// Exhaust the timer so a scheduled cycle would wait; manual must not.
	w := doJSON(t, f.router, http.MethodPost, "/cron/tweet", testCronSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodPost, "/manual/tweet", testAdminSecret, gin.H{"category": "existential"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.platform.posts, 2)
}

func TestManualPostRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/manual/tweet", testAdminSecret, gin.H{"category": "shitposting"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.platform.posts)
}

func TestScheduledPostLifecycle(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/manual/schedule", testAdminSecret, gin.H{
		"text":         "the moon is a rental",
		"category":     "disclosure_conspiracy",
		"scheduled_at": "2026-03-15T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodGet, "/manual/schedule", testAdminSecret, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Scheduled []store.ScheduledPost `json:"scheduled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Scheduled, 1)

	w = doJSON(t, f.router, http.MethodDelete, "/manual/schedule/"+out.Scheduled[0].ID, testAdminSecret, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, f.router, http.MethodDelete, "/manual/schedule/"+out.Scheduled[0].ID, testAdminSecret, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScheduledPostValidation(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.router, http.MethodPost, "/manual/schedule", testAdminSecret, gin.H{
		"text":         "x",
		"category":     "existential",
		"scheduled_at": "tomorrow-ish",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	long := make([]rune, 281)
	for i := range long {
		long[i] = 'a'
	}
	w = doJSON(t, f.router, http.MethodPost, "/manual/schedule", testAdminSecret, gin.H{
		"text":         string(long),
		"category":     "existential",
		"scheduled_at": "2026-03-15T10:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
