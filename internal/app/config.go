package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/colonylab/nestfeed/internal/database"
	"github.com/colonylab/nestfeed/internal/feed"
	"github.com/colonylab/nestfeed/internal/graph"
	"github.com/colonylab/nestfeed/pkg/validator"
)

// Config represents the runtime configuration for the nestfeed backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port" json:"port" validate:"gte=1,lte=65535"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GraphConfig points at the indexed event and staking subgraphs.
type GraphConfig struct {
	NotificationsURL string        `mapstructure:"notifications_url" json:"notifications_url" validate:"required,url"`
	EarlyStageURL    string        `mapstructure:"early_stage_url" json:"early_stage_url" validate:"required,url"`
	StakingURL       string        `mapstructure:"staking_url" json:"staking_url" validate:"required,url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

// ChainConfig locates the on-chain state snapshot backing eligibility reads.
type ChainConfig struct {
	FixturePath string `mapstructure:"fixture_path" json:"fixture_path" validate:"required"`
}

// FeedConfig tunes the notification engine.
type FeedConfig struct {
	Epoch         int64         `mapstructure:"epoch" json:"epoch" validate:"gt=0"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	PageSize      int           `mapstructure:"page_size" json:"page_size" validate:"gte=1"`
	StreamLimit   int           `mapstructure:"stream_limit" json:"stream_limit" validate:"gte=1"`
	MarkReadAfter time.Duration `mapstructure:"mark_read_after"`
	AccountLimit  int           `mapstructure:"account_limit" json:"account_limit" validate:"gte=1"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("NESTFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.ValidateStruct(config); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/nestfeed.sqlite")

	v.SetDefault("graph.notifications_url", "https://graph.colony.io/subgraphs/name/notifications")
	v.SetDefault("graph.early_stage_url", "https://graph.colony.io/subgraphs/name/early-stage")
	v.SetDefault("graph.staking_url", "https://graph.colony.io/subgraphs/name/staking-v3")
	v.SetDefault("graph.timeout", "15s")
	v.SetDefault("graph.max_retries", 3)

	v.SetDefault("chain.fixture_path", "./data/chain.json")

	v.SetDefault("feed.epoch", feed.DefaultEpoch)
	v.SetDefault("feed.sync_interval", "60s")
	v.SetDefault("feed.page_size", feed.DefaultStreamPageSize)
	v.SetDefault("feed.stream_limit", feed.DefaultStreamLimit)
	v.SetDefault("feed.mark_read_after", "240h") // 10 days
	v.SetDefault("feed.account_limit", 100)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Build converts the app section into the database package's options.
func (c DatabaseConfig) Build() database.Config {
	return database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
		Postgres: database.AuthConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
			Username: c.Postgres.Username,
			Password: c.Postgres.Password,
		},
		MySQL: database.AuthConfig{
			Host:     c.MySQL.Host,
			Port:     c.MySQL.Port,
			Database: c.MySQL.Database,
			Username: c.MySQL.Username,
			Password: c.MySQL.Password,
		},
	}
}

// Build converts the graph section into the client's options.
func (c GraphConfig) Build() graph.Config {
	return graph.Config{
		NotificationsURL: c.NotificationsURL,
		EarlyStageURL:    c.EarlyStageURL,
		StakingURL:       c.StakingURL,
		Timeout:          c.Timeout,
		MaxRetries:       c.MaxRetries,
	}
}

// StreamOptions converts the feed section into per-stream options.
func (c FeedConfig) StreamOptions() feed.StreamOptions {
	return feed.StreamOptions{
		Limit:         c.StreamLimit,
		MarkReadAfter: c.MarkReadAfter,
		SyncInterval:  c.SyncInterval,
		PageSize:      c.PageSize,
	}
}
