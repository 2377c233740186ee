package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Platform    PlatformConfig
	Sync        SyncConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL          string
	MaxConns     int32
	MigrateOnUp  bool
	MigrationDir string
}

// PlatformConfig holds credentials and endpoints for both remote APIs.
type PlatformConfig struct {
	RestBaseURL   string
	GraphEndpoint string
	AccessToken   string
	WebhookSecret string
	HTTPTimeout   time.Duration
}

type SyncConfig struct {
	InteractiveTimeout time.Duration
	ValidationHold     time.Duration
	SweepInterval      time.Duration
	SweepWorkers       int
	SweepBatch         int
	MaxPushAttempts    int
	DedupeTTL          time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("shopmirror_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("shopmirror_port", 8080)
	v.SetDefault("shopmirror_shutdown_timeout_s", 15)
	v.SetDefault("database_url", "")
	v.SetDefault("shopmirror_db_max_conns", 10)
	v.SetDefault("shopmirror_db_migrate", true)
	v.SetDefault("shopmirror_migration_dir", "migrations")
	v.SetDefault("platform_rest_base_url", "")
	v.SetDefault("platform_graph_endpoint", "")
	v.SetDefault("platform_access_token", "")
	v.SetDefault("platform_webhook_secret", "")
	v.SetDefault("platform_http_timeout_s", 30)
	v.SetDefault("sync_interactive_timeout_s", 5)
	v.SetDefault("sync_validation_hold_m", 15)
	v.SetDefault("sync_sweep_interval_s", 30)
	v.SetDefault("sync_sweep_workers", 4)
	v.SetDefault("sync_sweep_batch", 100)
	v.SetDefault("sync_max_push_attempts", 5)
	v.SetDefault("sync_dedupe_ttl_h", 48)

	port := v.GetInt("shopmirror_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid SHOPMIRROR_PORT: %d", port)
	}

	workers := v.GetInt("sync_sweep_workers")
	if workers <= 0 {
		workers = 4
	}
	if workers > 64 {
		workers = 64
	}

	batch := v.GetInt("sync_sweep_batch")
	if batch <= 0 {
		batch = 100
	}
	if batch > 1000 {
		batch = 1000
	}

	attempts := v.GetInt("sync_max_push_attempts")
	if attempts <= 0 {
		attempts = 5
	}

	cfg := Config{
		Environment: resolveEnvironment(v),
		Server: ServerConfig{
			Port:            port,
			ShutdownTimeout: time.Duration(v.GetInt("shopmirror_shutdown_timeout_s")) * time.Second,
		},
		Database: DatabaseConfig{
			URL:          strings.TrimSpace(v.GetString("database_url")),
			MaxConns:     int32(v.GetInt("shopmirror_db_max_conns")),
			MigrateOnUp:  v.GetBool("shopmirror_db_migrate"),
			MigrationDir: strings.TrimSpace(v.GetString("shopmirror_migration_dir")),
		},
		Platform: PlatformConfig{
			RestBaseURL:   strings.TrimSpace(v.GetString("platform_rest_base_url")),
			GraphEndpoint: strings.TrimSpace(v.GetString("platform_graph_endpoint")),
			AccessToken:   strings.TrimSpace(v.GetString("platform_access_token")),
			WebhookSecret: strings.TrimSpace(v.GetString("platform_webhook_secret")),
			HTTPTimeout:   time.Duration(v.GetInt("platform_http_timeout_s")) * time.Second,
		},
		Sync: SyncConfig{
			InteractiveTimeout: time.Duration(v.GetInt("sync_interactive_timeout_s")) * time.Second,
			ValidationHold:     time.Duration(v.GetInt("sync_validation_hold_m")) * time.Minute,
			SweepInterval:      time.Duration(v.GetInt("sync_sweep_interval_s")) * time.Second,
			SweepWorkers:       workers,
			SweepBatch:         batch,
			MaxPushAttempts:    attempts,
			DedupeTTL:          time.Duration(v.GetInt("sync_dedupe_ttl_h")) * time.Hour,
		},
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if !cfg.IsLocalDevelopment() {
		if cfg.Platform.AccessToken == "" {
			return Config{}, fmt.Errorf("PLATFORM_ACCESS_TOKEN is required outside local/dev environments")
		}
		if cfg.Platform.WebhookSecret == "" {
			return Config{}, fmt.Errorf("PLATFORM_WEBHOOK_SECRET is required outside local/dev environments")
		}
	}
	if cfg.IsLocalDevelopment() && cfg.Platform.WebhookSecret == "" {
		cfg.Platform.WebhookSecret = "shopmirror-local-dev"
	}

	return cfg, nil
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"shopmirror_env", "app_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
