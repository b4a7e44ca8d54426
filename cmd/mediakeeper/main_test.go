package main

import (
	"errors"
	"net/http"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/internal/downloader"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/database"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/twitter"
	"mediakeeper/pkg/ui"
)

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds(nil)
	require.NoError(t, err)
	assert.Equal(t, []database.Kind{database.KindFavorite, database.KindRetweet}, kinds)

	kinds, err = parseKinds([]string{"retweet"})
	require.NoError(t, err)
	assert.Equal(t, []database.Kind{database.KindRetweet}, kinds)

	_, err = parseKinds([]string{"bookmarks"})
	assert.Error(t, err)
}

func TestCommandFlagsOnlyCarriesChangedFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&holdingCount, "holding-count", 0, "")
	cmd.Flags().IntVar(&pageCount, "page-count", 0, "")
	cmd.Flags().IntVar(&concurrent, "concurrent", 3, "")
	cmd.Flags().BoolVar(&reply, "reply", false, "")
	cmd.Flags().BoolVar(&linkSearch, "linksearch", false, "")
	require.NoError(t, cmd.ParseFlags([]string{"--holding-count", "0", "--reply"}))

	flags := commandFlags(cmd)
	assert.Equal(t, 0, flags["holding-count"])
	assert.Equal(t, true, flags["reply"])
	assert.NotContains(t, flags, "page-count")
	assert.NotContains(t, flags, "concurrent")

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)
	assert.Equal(t, 0, cfg.Retention.HoldingCount)
	assert.Equal(t, 3, cfg.Timeline.PageCount)
}

func TestMaskConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Twitter.ConsumerKey = "abcdefghijkl"
	cfg.Twitter.AccessTokenSecret = "short"
	cfg.Notifications.DiscordWebhookURL = "https://discord.com/api/webhooks/1/secret"

	masked := maskConfig(cfg)
	assert.Equal(t, "abcd...ijkl", masked.Twitter.ConsumerKey)
	assert.Equal(t, "***", masked.Twitter.AccessTokenSecret)
	assert.Equal(t, "", masked.Twitter.ConsumerSecret)
	assert.NotContains(t, masked.Notifications.DiscordWebhookURL, "/1/")
	assert.Equal(t, "abcdefghijkl", cfg.Twitter.ConsumerKey, "the original is untouched")
}

func TestCLIProgress(t *testing.T) {
	ui.SetQuietMode(true)
	defer ui.SetQuietMode(false)

	p := &cliProgress{}
	p.Done(downloader.DownloadResult{Added: true})
	p.Start(database.KindFavorite, 2)
	p.Done(downloader.DownloadResult{Added: true, Size: 10})
	p.Done(downloader.DownloadResult{Error: errors.New("boom")})

	added, skipped, failed := p.bar.Counts()
	assert.Equal(t, 1, added)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, failed)

	p.Finish()
	assert.Nil(t, p.bar)
}

func TestSummaryDestroyerFollowsReplySetting(t *testing.T) {
	client := twitter.NewClientWithHTTP(http.DefaultClient, "", config.QuotaConfig{}, logger.NewNopLogger())
	cfg := config.DefaultConfig()

	cfg.Notifications.Reply = false
	assert.Nil(t, summaryDestroyer(cfg, client), "no cleanup when replies are off")

	cfg.Notifications.Reply = true
	assert.NotNil(t, summaryDestroyer(cfg, client))
	assert.Nil(t, summaryDestroyer(cfg, nil))
}
