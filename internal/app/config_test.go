package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/colonylab/nestfeed/internal/feed"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)

	require.Equal(t, feed.DefaultEpoch, cfg.Feed.Epoch)
	require.Equal(t, 60*time.Second, cfg.Feed.SyncInterval)
	require.Equal(t, feed.DefaultStreamPageSize, cfg.Feed.PageSize)
	require.Equal(t, feed.DefaultStreamLimit, cfg.Feed.StreamLimit)
	require.Equal(t, 240*time.Hour, cfg.Feed.MarkReadAfter)

	require.Equal(t, 15*time.Second, cfg.Graph.Timeout)
	require.Equal(t, 3, cfg.Graph.MaxRetries)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("NESTFEED_SERVER_PORT", "9100")
	t.Setenv("NESTFEED_FEED_PAGE_SIZE", "8")
	t.Setenv("NESTFEED_GRAPH_MAX_RETRIES", "5")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 8, cfg.Feed.PageSize)
	require.Equal(t, 5, cfg.Graph.MaxRetries)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("NESTFEED_GRAPH_NOTIFICATIONS_URL", "not a url")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "config: validate")
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, `
server:
  port: 9200
feed:
  epoch: 1700000000
  page_size: 6
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, int64(1700000000), cfg.Feed.Epoch)

	opts := cfg.Feed.StreamOptions()
	require.Equal(t, 6, opts.PageSize)
	require.Equal(t, feed.DefaultStreamLimit, opts.Limit)
}
