package config

import (
	"time"

	pkgconfig "github.com/bignetbrands/et-site/pkg/config"
)

// Config holds the service configuration. Secrets (CRON_SECRET, ADMIN_SECRET,
// API keys) are read separately with RequireEnv at startup.
type Config struct {
	Port     string
	RedisURL string

	// Identity on the platform; used to refuse self-targeting and to strip
	// self-mentions from reply text.
	BotHandle string

	// Scheduler window (UTC hours; the active window may wrap past midnight).
	ActiveStartHour int
	ActiveEndHour   int
	QuietHours      []int

	DailyPostMin int
	DailyPostMax int

	// Interaction budgets.
	DailyReplyCap  int
	RunReplyCap    int
	UserDailyCap   int
	ThreadDailyCap int

	// How many candidates the dedup layer may burn before publishing the
	// best valid one anyway. 1 matches the original behavior; 0 means a
	// flagged-similar candidate is published without any retry.
	MaxRegenAttempts int

	// Delay between consecutive successful replies within one run.
	ReplyPacing time.Duration

	MentionPageSize int
}

// Load reads configuration from the environment with production defaults.
func Load() Config {
	return Config{
		Port:      pkgconfig.GetEnv("PORT", "19010"),
		RedisURL:  pkgconfig.GetEnv("REDIS_URL", ""),
		BotHandle: pkgconfig.GetEnv("BOT_HANDLE", "etalienx"),

		ActiveStartHour: pkgconfig.GetEnvInt("ACTIVE_START_HOUR", 9),
		ActiveEndHour:   pkgconfig.GetEnvInt("ACTIVE_END_HOUR", 3),
		QuietHours:      pkgconfig.GetEnvInts("QUIET_HOURS", []int{11, 12, 19, 20}),

		DailyPostMin: pkgconfig.GetEnvInt("DAILY_POST_MIN", 7),
		DailyPostMax: pkgconfig.GetEnvInt("DAILY_POST_MAX", 10),

		DailyReplyCap:  pkgconfig.GetEnvInt("DAILY_REPLY_CAP", 50),
		RunReplyCap:    pkgconfig.GetEnvInt("RUN_REPLY_CAP", 5),
		UserDailyCap:   pkgconfig.GetEnvInt("USER_DAILY_CAP", 2),
		ThreadDailyCap: pkgconfig.GetEnvInt("THREAD_DAILY_CAP", 2),

		MaxRegenAttempts: pkgconfig.GetEnvInt("MAX_REGEN_ATTEMPTS", 1),

		ReplyPacing: time.Duration(pkgconfig.GetEnvInt("REPLY_PACING_SECONDS", 2)) * time.Second,

		MentionPageSize: pkgconfig.GetEnvInt("MENTION_PAGE_SIZE", 40),
	}
}
