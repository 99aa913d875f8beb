package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colligo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "https://x.com", cfg.Browser.BaseURL)
	assert.Equal(t, -1, cfg.Harvest.MaxPosts)
	assert.Equal(t, 25, cfg.Harvest.DuplicateThreshold)
	assert.Equal(t, 6, cfg.Harvest.StagnationRounds)
	assert.Equal(t, 3, cfg.Harvest.StabilityRounds)
	assert.Equal(t, 20, cfg.Harvest.SessionRecycleEvery)
	assert.True(t, cfg.Phases.Timeline)
	assert.True(t, cfg.Phases.Conversations)
	assert.False(t, cfg.Phases.Export)
}

func TestLoadFromFiles(t *testing.T) {
	t.Run("File overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
accounts = ["alice", "bob"]

[harvest]
max_posts = 500
duplicate_threshold = 10

[storage.badger]
path = "./data/test"
`)

		cfg, err := LoadFromFiles(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"alice", "bob"}, cfg.Accounts)
		assert.Equal(t, 500, cfg.Harvest.MaxPosts)
		assert.Equal(t, 10, cfg.Harvest.DuplicateThreshold)
		assert.Equal(t, "./data/test", cfg.Storage.Badger.Path)
		assert.Equal(t, 6, cfg.Harvest.StagnationRounds, "untouched defaults survive")
	})

	t.Run("Later files win", func(t *testing.T) {
		first := writeConfig(t, `
accounts = ["alice"]

[harvest]
max_posts = 100
`)
		second := writeConfig(t, `
[harvest]
max_posts = 200
`)

		cfg, err := LoadFromFiles(first, second)
		require.NoError(t, err)
		assert.Equal(t, 200, cfg.Harvest.MaxPosts)
		assert.Equal(t, []string{"alice"}, cfg.Accounts)
	})

	t.Run("Environment beats files", func(t *testing.T) {
		t.Setenv("COLLIGO_ACCOUNTS", "carol, dave")
		t.Setenv("COLLIGO_MAX_POSTS", "50")
		t.Setenv("COLLIGO_HEADLESS", "true")

		path := writeConfig(t, `accounts = ["alice"]`)

		cfg, err := LoadFromFiles(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"carol", "dave"}, cfg.Accounts)
		assert.Equal(t, 50, cfg.Harvest.MaxPosts)
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("Missing accounts fails validation", func(t *testing.T) {
		path := writeConfig(t, `
[harvest]
max_posts = 10
`)
		_, err := LoadFromFiles(path)
		assert.Error(t, err)
	})

	t.Run("Missing file fails", func(t *testing.T) {
		_, err := LoadFromFiles("/nonexistent/colligo.toml")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Accounts = []string{"alice"}
		return cfg
	}

	t.Run("Valid config passes", func(t *testing.T) {
		assert.NoError(t, Validate(base()))
	})

	t.Run("Valid cron schedule passes", func(t *testing.T) {
		cfg := base()
		cfg.Schedule = "0 6 * * *"
		assert.NoError(t, Validate(cfg))
	})

	t.Run("Invalid cron schedule fails", func(t *testing.T) {
		cfg := base()
		cfg.Schedule = "not a schedule"
		assert.Error(t, Validate(cfg))
	})

	t.Run("Non-positive guard values fail", func(t *testing.T) {
		cfg := base()
		cfg.Harvest.StagnationRounds = 0
		assert.Error(t, Validate(cfg))

		cfg = base()
		cfg.Harvest.StabilityRounds = -1
		assert.Error(t, Validate(cfg))

		cfg = base()
		cfg.Harvest.TimelineTimeout = 0
		assert.Error(t, Validate(cfg))
	})

	t.Run("Unknown log level fails", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "loud"
		assert.Error(t, Validate(cfg))
	})
}

func TestDurationsParseFromTOML(t *testing.T) {
	path := writeConfig(t, `
accounts = ["alice"]

[harvest]
timeline_timeout = "45m"
scroll_delay = "2s"
`)

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Harvest.TimelineTimeout)
	assert.Equal(t, 2*time.Second, cfg.Harvest.ScrollDelay)
}
