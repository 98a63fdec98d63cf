// Package handlers exposes the engine over HTTP: the cron endpoints the
// platform scheduler hits, the community target routes, and the admin
// surface.
package handlers

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/orchestrator"
	"github.com/bignetbrands/et-site/internal/persona"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/bignetbrands/et-site/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{1,30}$`)

type Handlers struct {
	cfg    config.Config
	store  *store.Store
	orch   *orchestrator.Orchestrator
	logger logging.Logger
	now    func() time.Time
}

func New(cfg config.Config, s *store.Store, orch *orchestrator.Orchestrator, logger logging.Logger) *Handlers {
	return &Handlers{cfg: cfg, store: s, orch: orch, logger: logger, now: time.Now}
}

// RegisterRoutes wires every route onto the router. Cron routes answer GET
// as well as POST because hosted cron schedulers only issue GETs.
func (h *Handlers) RegisterRoutes(router *gin.Engine, cronSecret, adminSecret string) {
	cron := router.Group("/cron", middleware.BearerAuthMiddleware(cronSecret))
	cron.GET("/tweet", h.CronPost)
	cron.POST("/tweet", h.CronPost)
	cron.GET("/replies", h.CronReplies)
	cron.POST("/replies", h.CronReplies)
	cron.GET("/notis", h.CronTargets)
	cron.POST("/notis", h.CronTargets)
	cron.GET("/performers", h.CronPerformers)
	cron.POST("/performers", h.CronPerformers)

	router.GET("/targets", h.ListTargets)
	router.POST("/targets", h.SubmitTarget)

	admin := router.Group("/", middleware.BearerAuthMiddleware(adminSecret))
	admin.POST("/targets/admin", h.AdminTargets)
	admin.GET("/admin/kill-switch", h.GetKillSwitch)
	admin.POST("/admin/kill-switch", h.SetKillSwitch)
	admin.POST("/manual/tweet", h.ManualPost)
	admin.POST("/manual/replies", h.ManualReplies)
	admin.GET("/manual/schedule", h.ListScheduled)
	admin.POST("/manual/schedule", h.SchedulePost)
	admin.DELETE("/manual/schedule/:id", h.RemoveScheduled)
}

func (h *Handlers) CronPost(c *gin.Context) {
	result, err := h.orch.RunPostCycle(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Post cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post cycle failed", "reason": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posted": result.Posted, "reason": result.Reason, "record": result.Record})
}

func (h *Handlers) CronReplies(c *gin.Context) {
	result, err := h.orch.RunReplyCycle(c.Request.Context(), false)
	if err != nil {
		h.logger.WithError(err).Error("Reply cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply cycle failed", "reason": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fetched": result.Fetched,
		"replied": result.Replied,
		"skipped": result.Skipped,
		"cursor":  result.CursorAt,
		"reason":  result.Reason,
	})
}

func (h *Handlers) CronTargets(c *gin.Context) {
	result, err := h.orch.RunTargetSweep(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Target sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "target sweep failed", "reason": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"engaged": result.Engaged,
		"handle":  result.Handle,
		"outcome": result.Outcome,
		"reason":  result.Reason,
	})
}

func (h *Handlers) CronPerformers(c *gin.Context) {
	scored, err := h.orch.RefreshTopPerformers(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Performer refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "performer refresh failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scored": scored})
}

// normalizeHandle lowercases a submitted handle and strips a leading @.
func normalizeHandle(raw string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
}

type targetRequest struct {
	Handle string `json:"handle" binding:"required"`
}

func (h *Handlers) SubmitTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "handle is required"})
		return
	}
	handle := normalizeHandle(req.Handle)
	if !handlePattern.MatchString(handle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
		return
	}
	if strings.EqualFold(handle, h.cfg.BotHandle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot target the bot itself"})
		return
	}

	target, err := h.store.VoteTarget(c.Request.Context(), handle, h.now().UTC())
	if err != nil {
		h.logger.WithError(err).Error("Failed to record target vote")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": target})
}

func (h *Handlers) ListTargets(c *gin.Context) {
	targets, err := h.store.Targets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].Forced != targets[j].Forced {
			return targets[i].Forced
		}
		if targets[i].Votes != targets[j].Votes {
			return targets[i].Votes > targets[j].Votes
		}
		return targets[i].SubmittedAt.Before(targets[j].SubmittedAt)
	})
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

type adminTargetRequest struct {
	Action string `json:"action" binding:"required"`
	Handle string `json:"handle" binding:"required"`
}

func (h *Handlers) AdminTargets(c *gin.Context) {
	var req adminTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action and handle are required"})
		return
	}
	handle := normalizeHandle(req.Handle)
	if !handlePattern.MatchString(handle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case "force":
		if err := h.store.SetTargetForced(ctx, handle, true, h.now().UTC()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"forced": handle})
	case "unforce":
		if err := h.store.SetTargetForced(ctx, handle, false, h.now().UTC()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unforced": handle})
	case "remove":
		if err := h.store.RemoveTarget(ctx, handle); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": handle})
	case "interact":
		// Force the handle to the front, then run a sweep immediately.
		if err := h.store.SetTargetForced(ctx, handle, true, h.now().UTC()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		result, err := h.orch.RunTargetSweep(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed", "reason": result.Reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{"engaged": result.Engaged, "handle": result.Handle, "outcome": result.Outcome, "reason": result.Reason})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
	}
}

type killSwitchRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

func (h *Handlers) SetKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paused is required"})
		return
	}
	if err := h.store.SetPaused(c.Request.Context(), *req.Paused); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Paused})
}

func (h *Handlers) GetKillSwitch(c *gin.Context) {
	paused, err := h.store.Paused(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}

type manualPostRequest struct {
	Category string `json:"category" binding:"required"`
}

// ManualPost publishes one post of the given category immediately,
// bypassing the scheduler's windows and timer.
func (h *Handlers) ManualPost(c *gin.Context) {
	var req manualPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	category := persona.Category(req.Category)
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}

	rec, err := h.orch.ExecutePost(c.Request.Context(), scheduler.Decision{
		ShouldPost: true,
		Category:   category,
		Mood:       persona.MoodForDay(h.now().UTC()),
		Reason:     "manual",
	})
	if err != nil {
		h.logger.WithError(err).Error("Manual post failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "post failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// ManualReplies runs a reply cycle; with ?catchup=true the cursor is
// ignored and left unmoved, for recovering missed mentions.
func (h *Handlers) ManualReplies(c *gin.Context) {
	catchUp := c.Query("catchup") == "true"
	result, err := h.orch.RunReplyCycle(c.Request.Context(), catchUp)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply cycle failed", "reason": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"catchup": catchUp,
		"fetched": result.Fetched,
		"replied": result.Replied,
		"skipped": result.Skipped,
		"cursor":  result.CursorAt,
		"reason":  result.Reason,
	})
}

type schedulePostRequest struct {
	Text        string `json:"text" binding:"required"`
	Category    string `json:"category" binding:"required"`
	ImageURL    string `json:"image_url"`
	ScheduledAt string `json:"scheduled_at" binding:"required"`
}

func (h *Handlers) SchedulePost(c *gin.Context) {
	var req schedulePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text, category and scheduled_at are required"})
		return
	}
	category := persona.Category(req.Category)
	if !category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if len([]rune(req.Text)) > 280 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text exceeds 280 characters"})
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be RFC3339"})
		return
	}

	post := store.ScheduledPost{
		ID:          uuid.New().String(),
		Text:        req.Text,
		Category:    category,
		ImageURL:    req.ImageURL,
		ScheduledAt: at.UTC(),
	}
	if err := h.store.SchedulePost(c.Request.Context(), post); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": post})
}

func (h *Handlers) ListScheduled(c *gin.Context) {
	posts, err := h.store.ScheduledPosts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": posts})
}

func (h *Handlers) RemoveScheduled(c *gin.Context) {
	removed, err := h.store.RemoveScheduledPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scheduled post with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("id")})
}
