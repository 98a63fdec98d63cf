package main

import (
	"context"

	"github.com/bignetbrands/et-site/internal/config"
	"github.com/bignetbrands/et-site/internal/generator"
	"github.com/bignetbrands/et-site/internal/handlers"
	"github.com/bignetbrands/et-site/internal/llm"
	"github.com/bignetbrands/et-site/internal/orchestrator"
	"github.com/bignetbrands/et-site/internal/platform/x"
	"github.com/bignetbrands/et-site/internal/scheduler"
	"github.com/bignetbrands/et-site/internal/store"
	pkgconfig "github.com/bignetbrands/et-site/pkg/config"
	"github.com/bignetbrands/et-site/pkg/logging"
	"github.com/bignetbrands/et-site/pkg/monitoring"
	"github.com/bignetbrands/et-site/pkg/redis"
	"github.com/bignetbrands/et-site/pkg/server"
	"github.com/bignetbrands/et-site/pkg/version"
)

func main() {
	// Initialize logger
	logger := logging.NewLoggerWithService("etbot")

	// Load environment variables
	pkgconfig.LoadEnv(logger)

	logger.WithField("service", "etbot").Info("Starting ET persona engine")

	cfg := config.Load()
	cronSecret := pkgconfig.RequireEnv("CRON_SECRET")
	adminSecret := pkgconfig.RequireEnv("ADMIN_SECRET")
	xToken := pkgconfig.RequireEnv("X_ACCESS_TOKEN")
	xUserID := pkgconfig.RequireEnv("X_USER_ID")

	// Connect to Redis
	redisClient, err := redis.NewClientFromURL(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	st := store.New(redisClient, logger)

	// Text and image providers
	textCfg := llm.LoadTextConfig()
	completer := llm.NewAnthropicCompleter(textCfg)
	gen := generator.New(completer, logger)

	// Image generation is optional; without a key every post goes text-only.
	var images llm.ImageRenderer
	imageCfg := llm.LoadImageConfig()
	if imageCfg.APIKey != "" {
		images = llm.NewOpenAIImageRenderer(imageCfg)
	} else {
		logger.Warn("OPENAI_API_KEY not set, posting without images")
	}

	// Platform client
	platformClient := x.NewClient(x.Config{
		AccessToken: xToken,
		UserID:      xUserID,
	})

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("etbot", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("etbot", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"REDIS_URL":         cfg.RedisURL,
		"ANTHROPIC_API_KEY": textCfg.APIKey,
	}))

	posts, replies, skips, retries := metricsCollector.CreateBotMetrics()
	metrics := &orchestrator.Metrics{
		Posts:   posts,
		Replies: replies,
		Skips:   skips,
		Retries: retries,
	}

	sched := scheduler.New(st, cfg, logger)
	orch := orchestrator.New(cfg, st, sched, gen, images, platformClient, logger, metrics)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "etbot", healthChecker, metricsCollector)
	handlers.New(cfg, st, orch, logger).RegisterRoutes(router, cronSecret, adminSecret)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("etbot", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
