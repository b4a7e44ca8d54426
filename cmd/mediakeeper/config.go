package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage mediakeeper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (MEDIAKEEPER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'mediakeeper.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration merged from all sources.

Credentials and webhook addresses are masked.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load the configuration from all sources and report every problem found.`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# mediakeeper configuration file
#
# Every option can also be set through environment variables prefixed with
# MEDIAKEEPER_, for example MEDIAKEEPER_CONSUMER_KEY or MEDIAKEEPER_HOLDING_COUNT.

# API credentials and account (required)
twitter:
  consumer_key: "YOUR_CONSUMER_KEY"
  consumer_secret: "YOUR_CONSUMER_SECRET"
  access_token: "YOUR_ACCESS_TOKEN"
  access_token_secret: "YOUR_ACCESS_TOKEN_SECRET"
  # Account whose likes and retweets are collected
  screen_name: "your_account"
  # Account mentioned by the summary reply (optional)
  reply_to: ""

# Listing breadth
timeline:
  # Extra pages listed after the first one
  page_count: 3
  # Posts per page, 1-200
  count: 200

# Local store
retention:
  favorite_directory: "./media/favorite"
  retweet_directory: "./media/retweet"
  # Files kept per collection; 0 keeps everything
  holding_count: 300
  database_path: "./mediakeeper.db"

# Upstream quota handling
quota:
  unavailable_retry_max: 10
  unavailable_retry_delay: 30s
  reset_margin: 10s

# Post-download steps
processing:
  # Command run on every new file; {path} is replaced by the file path
  recompress_command: []
  # Set file times to the post time instead of the listing order
  overwrite_timestamps: false

download:
  concurrent_downloads: 3
  download_timeout: 60s
  retry_attempts: 3
  requests_per_minute: 120
  # http, https or socks5 proxy (optional)
  proxy_url: ""

notifications:
  # Post the summary as a reply; it is deleted again after pending_delete_after
  reply: false
  desktop: false
  discord_webhook_url: ""
  slack_webhook_url: ""
  line_notify_token: ""
  sample_count: 4
  pending_delete_after: 24h

# HTML gallery of recent media
report:
  enabled: true
  output_directory: "./html"
  gallery_count: 300

# Save works linked from collected posts
linksearch:
  enabled: false
  pixiv_base: "./linksearch/pixiv"
  nijie_base: "./linksearch/nijie"
  skeb_base: "./linksearch/skeb"
  concurrency: 2
  pause: 1s
  # Where site sessions are read from: auto, keyring, file or env
  session_source: "auto"

logging:
  # debug, info, warn, error
  level: "info"
  # Log file path (optional)
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "mediakeeper.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file and add your API credentials")
	fmt.Println("2. Run 'mediakeeper config validate' to check the configuration")
	fmt.Println("3. Collect media with 'mediakeeper run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUnvalidated(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(maskConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUnvalidated(configFile, nil)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		ui.PrintError("Configuration has errors")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("  - %s\n", line)
		}
		return fmt.Errorf("configuration is invalid")
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Account: %s\n", cfg.Twitter.ScreenName)
	fmt.Printf("  Holding count: %d\n", cfg.Retention.HoldingCount)
	fmt.Printf("  Pages per run: %d\n", cfg.Timeline.PageCount+1)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Link search: %v\n", cfg.LinkSearch.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// maskConfig returns a copy of cfg safe to print
func maskConfig(cfg *config.Config) *config.Config {
	c := *cfg
	c.Twitter.ConsumerKey = mask(c.Twitter.ConsumerKey)
	c.Twitter.ConsumerSecret = mask(c.Twitter.ConsumerSecret)
	c.Twitter.AccessToken = mask(c.Twitter.AccessToken)
	c.Twitter.AccessTokenSecret = mask(c.Twitter.AccessTokenSecret)
	c.Notifications.DiscordWebhookURL = mask(c.Notifications.DiscordWebhookURL)
	c.Notifications.SlackWebhookURL = mask(c.Notifications.SlackWebhookURL)
	c.Notifications.LineNotifyToken = mask(c.Notifications.LineNotifyToken)
	return &c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}
