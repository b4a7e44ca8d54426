package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Twitter.ConsumerKey = "ck"
	cfg.Twitter.ConsumerSecret = "cs"
	cfg.Twitter.AccessToken = "at"
	cfg.Twitter.AccessTokenSecret = "as"
	cfg.Twitter.ScreenName = "keeper"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.twitter.com/1.1", cfg.Twitter.APIBaseURL)
	assert.Equal(t, 3, cfg.Timeline.PageCount)
	assert.Equal(t, 200, cfg.Timeline.Count)
	assert.Equal(t, 300, cfg.Retention.HoldingCount)
	assert.Equal(t, 10, cfg.Quota.UnavailableRetryMax)
	assert.Equal(t, 30*time.Second, cfg.Quota.UnavailableRetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.Notifications.PendingDeleteAfter)
	assert.Equal(t, "auto", cfg.LinkSearch.SessionSource)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing consumer key",
			mutate:  func(c *Config) { c.Twitter.ConsumerKey = "" },
			wantErr: "consumer key",
		},
		{
			name:    "missing screen name",
			mutate:  func(c *Config) { c.Twitter.ScreenName = "" },
			wantErr: "screen name",
		},
		{
			name:    "negative holding count",
			mutate:  func(c *Config) { c.Retention.HoldingCount = -1 },
			wantErr: "holding count",
		},
		{
			name:    "count above upstream maximum",
			mutate:  func(c *Config) { c.Timeline.Count = 201 },
			wantErr: "timeline count",
		},
		{
			name:    "too many downloads",
			mutate:  func(c *Config) { c.Download.ConcurrentDownloads = 11 },
			wantErr: "should not exceed 10",
		},
		{
			name:    "recompress without placeholder",
			mutate:  func(c *Config) { c.Processing.RecompressCommand = []string{"jpegoptim", "--strip-all"} },
			wantErr: "{path}",
		},
		{
			name:   "recompress with placeholder",
			mutate: func(c *Config) { c.Processing.RecompressCommand = []string{"jpegoptim", "{path}"} },
		},
		{
			name:    "bad session source",
			mutate:  func(c *Config) { c.LinkSearch.SessionSource = "cookie-jar" },
			wantErr: "session source",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention.HoldingCount = -5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer key")
	assert.Contains(t, err.Error(), "screen name")
	assert.Contains(t, err.Error(), "holding count")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEDIAKEEPER_CONSUMER_KEY", "env-key")
	t.Setenv("MEDIAKEEPER_HOLDING_COUNT", "42")
	t.Setenv("MEDIAKEEPER_REPLY", "TRUE")
	t.Setenv("MEDIAKEEPER_LINKSEARCH", "false")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-key", cfg.Twitter.ConsumerKey)
	assert.Equal(t, 42, cfg.Retention.HoldingCount)
	assert.True(t, cfg.Notifications.Reply)
	assert.False(t, cfg.LinkSearch.Enabled)
}

func TestLoadFromEnvRejectsBadInteger(t *testing.T) {
	t.Setenv("MEDIAKEEPER_PAGE_COUNT", "three")

	err := DefaultConfig().LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MEDIAKEEPER_PAGE_COUNT")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediakeeper.yaml")
	content := `
twitter:
  screen_name: fromfile
retention:
  holding_count: 50
quota:
  unavailable_retry_delay: 5s
processing:
  recompress_command: ["jpegoptim", "{path}"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "fromfile", cfg.Twitter.ScreenName)
	assert.Equal(t, 50, cfg.Retention.HoldingCount)
	assert.Equal(t, 5*time.Second, cfg.Quota.UnavailableRetryDelay)
	assert.Equal(t, []string{"jpegoptim", "{path}"}, cfg.Processing.RecompressCommand)
	// untouched sections keep defaults
	assert.Equal(t, 200, cfg.Timeline.Count)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := validConfig()
	cfg.Notifications.DiscordWebhookURL = "https://discord.example/hook"

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg.Notifications.DiscordWebhookURL, loaded.Notifications.DiscordWebhookURL)
	assert.Equal(t, cfg.Twitter.ScreenName, loaded.Twitter.ScreenName)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"holding-count": 10,
		"page-count":    0,
		"concurrent":    0,
		"log-level":     "debug",
		"reply":         true,
	})

	assert.Equal(t, 10, cfg.Retention.HoldingCount)
	assert.Equal(t, 0, cfg.Timeline.PageCount)
	assert.Equal(t, 3, cfg.Download.ConcurrentDownloads, "non-positive concurrency is ignored")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Notifications.Reply)
}

func TestSaveDirectory(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.Retention.FavoriteDirectory, cfg.SaveDirectory("favorite"))
	assert.Equal(t, cfg.Retention.RetweetDirectory, cfg.SaveDirectory("retweet"))
}

func TestLoadValidatesButLoadUnvalidatedDoesNot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"MEDIAKEEPER_CONSUMER_KEY", "MEDIAKEEPER_CONSUMER_SECRET", "MEDIAKEEPER_ACCESS_TOKEN", "MEDIAKEEPER_ACCESS_TOKEN_SECRET", "MEDIAKEEPER_SCREEN_NAME"} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "mediakeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention:\n  holding_count: 7\n"), 0644))

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "screen name is required")

	cfg, err := LoadUnvalidated(path, map[string]interface{}{"page-count": 1})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retention.HoldingCount)
	assert.Equal(t, 1, cfg.Timeline.PageCount)
}
