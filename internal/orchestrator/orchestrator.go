// Package orchestrator wires the scheduler, generator, store and platform
// client into the three engine cycles: posting, mention replies, and the
// watchlist sweep. Each cycle is one short-lived cron invocation.
package orchestrator

import (
	"time"

	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/llm"
	"github.com/bignetbrands/et-site/internal/platform"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline counters. A nil *Metrics is valid and records
// nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	Posts   *prometheus.CounterVec
	Replies *prometheus.CounterVec
	Skips   *prometheus.CounterVec
	Retries *prometheus.CounterVec
}

func (m *Metrics) post(category string, hasMedia bool) {
	if m == nil {
		return
	}
	media := "false"
	if hasMedia {
		media = "true"
	}
	m.Posts.WithLabelValues(category, media).Inc()
}

func (m *Metrics) reply(outcome string) {
	if m == nil {
		return
	}
	m.Replies.WithLabelValues(outcome).Inc()
}

func (m *Metrics) skip(cycle, reason string) {
	if m == nil {
		return
	}
	m.Skips.WithLabelValues(cycle, reason).Inc()
}

func (m *Metrics) retry(stage string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(stage).Inc()
}

type Orchestrator struct {
	cfg      config.Config
	store    *store.Store
	sched    *scheduler.Scheduler
	gen      generator.Generator
	images   llm.ImageRenderer
	platform platform.Client
	logger   logging.Logger
	metrics  *Metrics

	now   func() time.Time
	sleep func(time.Duration)
}

// New assembles an orchestrator. images may be nil, in which case every post
// goes out text-only.
func New(
	cfg config.Config,
	s *store.Store,
	sched *scheduler.Scheduler,
	gen generator.Generator,
	images llm.ImageRenderer,
	client platform.Client,
	logger logging.Logger,
	metrics *Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    s,
		sched:    sched,
		gen:      gen,
		images:   images,
		platform: client,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// WithClock replaces the wall clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// WithSleep replaces the pacing sleep, for tests.
func (o *Orchestrator) WithSleep(sleep func(time.Duration)) *Orchestrator {
	o.sleep = sleep
	return o
}

const maxPostLength = 280

func validLength(text string) bool {
	return text != "" && len([]rune(text)) <= maxPostLength
}
