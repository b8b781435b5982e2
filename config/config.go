// Package config loads server settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/moderation-engine/moderation"
	"go.uber.org/zap"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	// Server
	Port        int
	CORSOrigins []string

	// Storage
	StoreDriver      string
	DBPath           string
	RedisURL         string
	RedisSnapshotKey string

	// Events
	EventsEnabled bool
	EventsChannel string

	// Scheduling
	FlushInterval    time.Duration
	LowPriorityDelay time.Duration
	SweepInterval    time.Duration

	// Approval
	BanApprovalThreshold time.Duration
	AdminsFile           string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnvInt("PORT", 8080),
		CORSOrigins: parseList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),

		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBPath:           getEnv("DB_PATH", "moderation.db"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisSnapshotKey: getEnv("REDIS_SNAPSHOT_KEY", "moderation:actions"),

		EventsEnabled: getEnvBool("EVENTS_ENABLED", false),
		EventsChannel: getEnv("EVENTS_CHANNEL", "moderation.events"),

		FlushInterval:    getEnvDuration("FLUSH_INTERVAL", moderation.DefaultFlushInterval),
		LowPriorityDelay: getEnvDuration("LOW_PRIORITY_DELAY", moderation.DefaultLowPriorityDelay),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Minute),

		BanApprovalThreshold: getEnvDuration("BAN_APPROVAL_THRESHOLD", moderation.DefaultApprovalThreshold),
		AdminsFile:           getEnv("ADMINS_FILE", "admins.json"),
	}
}

func (c *Config) Validate(log *zap.Logger) {
	switch c.StoreDriver {
	case DriverSQLite, DriverRedis, DriverMemory:
	default:
		log.Warn("unknown STORE_DRIVER, falling back to sqlite", zap.String("driver", c.StoreDriver))
		c.StoreDriver = DriverSQLite
	}
	if c.StoreDriver == DriverMemory {
		log.Warn("STORE_DRIVER=memory, actions are lost on restart")
	}
	if c.EventsEnabled && c.RedisURL == "" {
		log.Warn("EVENTS_ENABLED without REDIS_URL, events go to the log")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

// getEnvDuration accepts Go durations ("500ms", "168h"); a bare number is
// read as seconds. Zero and negative values fall back.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if n, aerr := strconv.Atoi(s); aerr == nil {
		d, err = time.Duration(n)*time.Second, nil
	}
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
