package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for mediakeeper
type Config struct {
	Twitter       TwitterConfig      `yaml:"twitter" json:"twitter"`
	Timeline      TimelineConfig     `yaml:"timeline" json:"timeline"`
	Retention     RetentionConfig    `yaml:"retention" json:"retention"`
	Quota         QuotaConfig        `yaml:"quota" json:"quota"`
	Processing    ProcessingConfig   `yaml:"processing" json:"processing"`
	Download      DownloadConfig     `yaml:"download" json:"download"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Report        ReportConfig       `yaml:"report" json:"report"`
	LinkSearch    LinkSearchConfig   `yaml:"linksearch" json:"linksearch"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// TwitterConfig holds the upstream API credentials and account
type TwitterConfig struct {
	ConsumerKey       string `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret" json:"consumer_secret"`
	AccessToken       string `yaml:"access_token" json:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret" json:"access_token_secret"`
	ScreenName        string `yaml:"screen_name" json:"screen_name"`
	APIBaseURL        string `yaml:"api_base_url" json:"api_base_url"`
	// ReplyTo is the screen name mentioned by the summary reply
	ReplyTo string `yaml:"reply_to" json:"reply_to"`
}

// TimelineConfig controls the breadth of each listing stage
type TimelineConfig struct {
	PageCount int `yaml:"page_count" json:"page_count"`
	Count     int `yaml:"count" json:"count"`
}

// RetentionConfig controls the local store and its eviction cutoff
type RetentionConfig struct {
	FavoriteDirectory string `yaml:"favorite_directory" json:"favorite_directory"`
	RetweetDirectory  string `yaml:"retweet_directory" json:"retweet_directory"`
	HoldingCount      int    `yaml:"holding_count" json:"holding_count"`
	DatabasePath      string `yaml:"database_path" json:"database_path"`
}

// QuotaConfig holds the upstream quota and 503 handling parameters
type QuotaConfig struct {
	UnavailableRetryMax   int           `yaml:"unavailable_retry_max" json:"unavailable_retry_max"`
	UnavailableRetryDelay time.Duration `yaml:"unavailable_retry_delay" json:"unavailable_retry_delay"`
	ResetMargin           time.Duration `yaml:"reset_margin" json:"reset_margin"`
}

// ProcessingConfig holds optional post-download steps
type ProcessingConfig struct {
	// RecompressCommand is an argv list; "{path}" is replaced by the saved file
	RecompressCommand   []string `yaml:"recompress_command" json:"recompress_command"`
	OverwriteTimestamps bool     `yaml:"overwrite_timestamps" json:"overwrite_timestamps"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts       int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerMinute   int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	ProxyURL            string        `yaml:"proxy_url" json:"proxy_url"`
}

// NotificationConfig selects the completion report channels
type NotificationConfig struct {
	Reply              bool          `yaml:"reply" json:"reply"`
	Desktop            bool          `yaml:"desktop" json:"desktop"`
	DiscordWebhookURL  string        `yaml:"discord_webhook_url" json:"discord_webhook_url"`
	SlackWebhookURL    string        `yaml:"slack_webhook_url" json:"slack_webhook_url"`
	LineNotifyToken    string        `yaml:"line_notify_token" json:"line_notify_token"`
	SampleCount        int           `yaml:"sample_count" json:"sample_count"`
	PendingDeleteAfter time.Duration `yaml:"pending_delete_after" json:"pending_delete_after"`
}

// ReportConfig controls the static HTML gallery
type ReportConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	OutputDirectory string `yaml:"output_directory" json:"output_directory"`
	GalleryCount    int    `yaml:"gallery_count" json:"gallery_count"`
}

// LinkSearchConfig controls external link dispatch
type LinkSearchConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	PixivBase     string        `yaml:"pixiv_base" json:"pixiv_base"`
	NijieBase     string        `yaml:"nijie_base" json:"nijie_base"`
	SkebBase      string        `yaml:"skeb_base" json:"skeb_base"`
	Concurrency   int           `yaml:"concurrency" json:"concurrency"`
	Pause         time.Duration `yaml:"pause" json:"pause"`
	SessionSource string        `yaml:"session_source" json:"session_source"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			APIBaseURL: "https://api.twitter.com/1.1",
		},
		Timeline: TimelineConfig{
			PageCount: 3,
			Count:     200,
		},
		Retention: RetentionConfig{
			FavoriteDirectory: "./media/favorite",
			RetweetDirectory:  "./media/retweet",
			HoldingCount:      300,
			DatabasePath:      "./mediakeeper.db",
		},
		Quota: QuotaConfig{
			UnavailableRetryMax:   10,
			UnavailableRetryDelay: 30 * time.Second,
			ResetMargin:           10 * time.Second,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     60 * time.Second,
			RetryAttempts:       3,
			RequestsPerMinute:   120,
		},
		Notifications: NotificationConfig{
			SampleCount:        4,
			PendingDeleteAfter: 24 * time.Hour,
		},
		Report: ReportConfig{
			Enabled:         true,
			OutputDirectory: "./html",
			GalleryCount:    300,
		},
		LinkSearch: LinkSearchConfig{
			PixivBase:     "./linksearch/pixiv",
			NijieBase:     "./linksearch/nijie",
			SkebBase:      "./linksearch/skeb",
			Concurrency:   2,
			Pause:         time.Second,
			SessionSource: "auto",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"MEDIAKEEPER_CONSUMER_KEY":        &c.Twitter.ConsumerKey,
		"MEDIAKEEPER_CONSUMER_SECRET":     &c.Twitter.ConsumerSecret,
		"MEDIAKEEPER_ACCESS_TOKEN":        &c.Twitter.AccessToken,
		"MEDIAKEEPER_ACCESS_TOKEN_SECRET": &c.Twitter.AccessTokenSecret,
		"MEDIAKEEPER_SCREEN_NAME":         &c.Twitter.ScreenName,
		"MEDIAKEEPER_DATABASE_PATH":       &c.Retention.DatabasePath,
		"MEDIAKEEPER_DISCORD_WEBHOOK_URL": &c.Notifications.DiscordWebhookURL,
		"MEDIAKEEPER_SLACK_WEBHOOK_URL":   &c.Notifications.SlackWebhookURL,
		"MEDIAKEEPER_LINE_NOTIFY_TOKEN":   &c.Notifications.LineNotifyToken,
		"MEDIAKEEPER_PROXY_URL":           &c.Download.ProxyURL,
		"MEDIAKEEPER_LOG_LEVEL":           &c.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MEDIAKEEPER_HOLDING_COUNT":        &c.Retention.HoldingCount,
		"MEDIAKEEPER_PAGE_COUNT":           &c.Timeline.PageCount,
		"MEDIAKEEPER_CONCURRENT_DOWNLOADS": &c.Download.ConcurrentDownloads,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("MEDIAKEEPER_REPLY"); v != "" {
		c.Notifications.Reply = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("MEDIAKEEPER_LINKSEARCH"); v != "" {
		c.LinkSearch.Enabled = strings.ToLower(v) == "true"
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"mediakeeper.yaml",
		".mediakeeper.yaml",
		filepath.Join(home, ".config", "mediakeeper", "config.yaml"),
		filepath.Join(home, ".mediakeeper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Twitter.ConsumerKey == "" || c.Twitter.ConsumerSecret == "" {
		errs = append(errs, errors.New("twitter consumer key and secret are required"))
	}
	if c.Twitter.AccessToken == "" || c.Twitter.AccessTokenSecret == "" {
		errs = append(errs, errors.New("twitter access token and secret are required"))
	}
	if c.Twitter.ScreenName == "" {
		errs = append(errs, errors.New("twitter screen name is required"))
	}

	if c.Timeline.PageCount < 0 {
		errs = append(errs, errors.New("page count cannot be negative"))
	}
	if c.Timeline.Count <= 0 || c.Timeline.Count > 200 {
		errs = append(errs, errors.New("timeline count must be between 1 and 200"))
	}

	if c.Retention.HoldingCount < 0 {
		errs = append(errs, errors.New("holding count cannot be negative"))
	}
	if c.Retention.FavoriteDirectory == "" || c.Retention.RetweetDirectory == "" {
		errs = append(errs, errors.New("save directories are required"))
	}
	if c.Retention.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	if c.Quota.UnavailableRetryMax < 0 {
		errs = append(errs, errors.New("unavailable retry max cannot be negative"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if len(c.Processing.RecompressCommand) > 0 && !containsPathPlaceholder(c.Processing.RecompressCommand) {
		errs = append(errs, errors.New("recompress command must contain a {path} argument"))
	}

	if c.LinkSearch.Enabled && c.LinkSearch.Concurrency <= 0 {
		errs = append(errs, errors.New("linksearch concurrency must be positive"))
	}
	switch c.LinkSearch.SessionSource {
	case "auto", "keyring", "file", "env":
	default:
		errs = append(errs, fmt.Errorf("invalid session source %q", c.LinkSearch.SessionSource))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func containsPathPlaceholder(argv []string) bool {
	for _, a := range argv {
		if strings.Contains(a, "{path}") {
			return true
		}
	}
	return false
}

// SaveDirectory returns the media directory for a collection kind
func (c *Config) SaveDirectory(kind string) string {
	if kind == "retweet" {
		return c.Retention.RetweetDirectory
	}
	return c.Retention.FavoriteDirectory
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["holding-count"].(int); ok && v >= 0 {
		c.Retention.HoldingCount = v
	}
	if v, ok := flags["page-count"].(int); ok && v >= 0 {
		c.Timeline.PageCount = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["reply"].(bool); ok {
		c.Notifications.Reply = v
	}
	if v, ok := flags["linksearch"].(bool); ok {
		c.LinkSearch.Enabled = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	config, err := LoadUnvalidated(configPath, flags)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// LoadUnvalidated merges the same sources as Load without validating the
// result. Commands that never talk to the API use it.
func LoadUnvalidated(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".mediakeeper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	return config, nil
}
