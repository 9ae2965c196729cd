package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	AutoMigrate            bool
	RedisURL               string
	NATSURL                string
	EventChannel           string
	JWTSecret              string
	ActivityWindow         time.Duration
	ActivityBatchSize      int
	RecentlyViewedLimit    int
	RecentlyViewedCacheTTL time.Duration
	UntrackedSubjects      []string
	ExportRateLimit        int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CRM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CRM Activity API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("events.channel", "crm")
	v.SetDefault("activity.window", "48h")
	v.SetDefault("activity.batch_size", 200)
	v.SetDefault("recently_viewed.limit", 10)
	v.SetDefault("recently_viewed.cache_ttl", "1m")
	v.SetDefault("recently_viewed.untracked", "task")
	v.SetDefault("export.rate_limit", 10)

	window, err := parseDuration(v.GetString("activity.window"), 48*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("invalid activity window: %w", err)
	}

	cacheTTL, err := parseDuration(v.GetString("recently_viewed.cache_ttl"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid recently viewed cache ttl: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		AutoMigrate:            v.GetBool("database.auto_migrate"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventChannel:           v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		ActivityWindow:         window,
		ActivityBatchSize:      v.GetInt("activity.batch_size"),
		RecentlyViewedLimit:    v.GetInt("recently_viewed.limit"),
		RecentlyViewedCacheTTL: cacheTTL,
		UntrackedSubjects:      splitList(v.GetString("recently_viewed.untracked")),
		ExportRateLimit:        v.GetInt("export.rate_limit"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.RecentlyViewedLimit <= 0 {
		cfg.RecentlyViewedLimit = 10
	}

	if cfg.ActivityBatchSize <= 0 {
		cfg.ActivityBatchSize = 200
	}

	if cfg.ExportRateLimit <= 0 {
		cfg.ExportRateLimit = 10
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
