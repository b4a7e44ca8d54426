package main

import (
	"fmt"
	"time"

	"mediakeeper/internal/downloader"
	"mediakeeper/pkg/auth"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/database"
	"mediakeeper/pkg/httpx"
	"mediakeeper/pkg/linksearch"
	"mediakeeper/pkg/linksearch/nijie"
	"mediakeeper/pkg/linksearch/pixiv"
	"mediakeeper/pkg/linksearch/skeb"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/notify"
	"mediakeeper/pkg/pipeline"
	"mediakeeper/pkg/ratelimit"
	"mediakeeper/pkg/runlog"
	"mediakeeper/pkg/storage"
	"mediakeeper/pkg/twitter"
	"mediakeeper/pkg/ui"
)

const webhookTimeout = 30 * time.Second

// app holds everything a run needs, built once per process
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    *database.Store
	client   *twitter.Client
	pipeline *pipeline.Pipeline
	sources  map[database.Kind]pipeline.Source
}

// newApp wires the collaborators described by cfg
func newApp(cfg *config.Config) (*app, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	store, err := database.Open(cfg.Retention.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	client, err := twitter.NewClient(cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	media := make(map[database.Kind]pipeline.MediaDir)
	for _, kind := range []database.Kind{database.KindFavorite, database.KindRetweet} {
		dir, err := storage.NewManager(cfg.SaveDirectory(string(kind)))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to prepare %s directory: %w", kind, err)
		}
		media[kind] = dir
	}

	opts := httpx.Options{
		Timeout:       cfg.Download.DownloadTimeout,
		ProxyURL:      cfg.Download.ProxyURL,
		RetryAttempts: cfg.Download.RetryAttempts,
		Logger:        log,
	}
	fetcher, err := httpx.New(opts)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create media client: %w", err)
	}

	deps := pipeline.Deps{
		Store:     store,
		Media:     media,
		Fetcher:   fetcher,
		Notifier:  buildNotifier(cfg, client, store, log),
		Destroyer: summaryDestroyer(cfg, client),
		Progress:  &cliProgress{},
		Logger:    log,
	}
	if cfg.Download.RequestsPerMinute > 0 {
		deps.Limiter = ratelimit.NewSlidingWindow(cfg.Download.RequestsPerMinute, time.Minute)
	}
	if r := pipeline.NewCommandRecompressor(cfg.Processing.RecompressCommand); r != nil {
		deps.Recompressor = r
	}
	if runs, err := runlog.NewManager("", log); err != nil {
		log.WithError(err).Warn("Run log disabled")
	} else {
		deps.RunLog = runs
	}
	if cfg.LinkSearch.Enabled {
		resolver, err := buildResolver(cfg, log)
		if err != nil {
			store.Close()
			return nil, err
		}
		deps.Links = resolver
	}

	p, err := pipeline.New(deps, pipeline.Options{
		PageCount:           cfg.Timeline.PageCount,
		HoldingCount:        cfg.Retention.HoldingCount,
		OverwriteTimestamps: cfg.Processing.OverwriteTimestamps,
		Concurrency:         cfg.Download.ConcurrentDownloads,
		SampleCount:         cfg.Notifications.SampleCount,
		PendingDeleteAfter:  cfg.Notifications.PendingDeleteAfter,
		ReportEnabled:       cfg.Report.Enabled,
		ReportDirectory:     cfg.Report.OutputDirectory,
		GalleryCount:        cfg.Report.GalleryCount,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		client:   client,
		pipeline: p,
		sources: map[database.Kind]pipeline.Source{
			database.KindFavorite: &pipeline.FavoriteSource{
				Client:     client,
				Records:    store,
				ScreenName: cfg.Twitter.ScreenName,
				Count:      cfg.Timeline.Count,
			},
			database.KindRetweet: &pipeline.RetweetSource{
				Client:     client,
				Records:    store,
				ScreenName: cfg.Twitter.ScreenName,
				Count:      cfg.Timeline.Count,
			},
		},
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// summaryDestroyer returns the client only when summary replies are on, so
// pending targets from an earlier config are left alone.
func summaryDestroyer(cfg *config.Config, client *twitter.Client) pipeline.Destroyer {
	if !cfg.Notifications.Reply || client == nil {
		return nil
	}
	return client
}

func buildNotifier(cfg *config.Config, client *twitter.Client, store *database.Store, log logger.Logger) *notify.Dispatcher {
	d := notify.NewDispatcher(log)
	n := cfg.Notifications

	if n.Reply {
		d.Add(notify.NewReplyChannel(client, store, cfg.Twitter.ReplyTo))
	}
	if n.Desktop {
		if desktop := notify.NewDesktopChannel(); desktop.Supported() {
			d.Add(desktop)
		} else {
			log.Warn("Desktop notifications are not supported on this platform")
		}
	}

	if n.DiscordWebhookURL == "" && n.SlackWebhookURL == "" && n.LineNotifyToken == "" {
		return d
	}
	hc, err := httpx.NewHTTPClient(cfg.Download.ProxyURL, webhookTimeout)
	if err != nil {
		log.WithError(err).Warn("Webhook notifications disabled")
		return d
	}
	if n.DiscordWebhookURL != "" {
		d.Add(notify.NewDiscordChannel(n.DiscordWebhookURL, hc))
	}
	if n.SlackWebhookURL != "" {
		d.Add(notify.NewSlackChannel(n.SlackWebhookURL, hc))
	}
	if n.LineNotifyToken != "" {
		d.Add(notify.NewLineNotifyChannel("", n.LineNotifyToken, hc))
	}
	return d
}

// buildResolver registers a fetcher per supported site. A site whose
// fetcher cannot be built, usually for lack of a session, is skipped.
func buildResolver(cfg *config.Config, log logger.Logger) (*linksearch.Resolver, error) {
	ls := cfg.LinkSearch

	opts := httpx.Options{
		Timeout:       cfg.Download.DownloadTimeout,
		ProxyURL:      cfg.Download.ProxyURL,
		RetryAttempts: cfg.Download.RetryAttempts,
		Logger:        log,
	}
	if ls.Pause > 0 {
		opts.Limiter = ratelimit.NewTokenBucket(1, ls.Pause)
	}
	hc, err := httpx.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create link search client: %w", err)
	}

	var sessions auth.SessionProvider
	if m, err := auth.NewManager(ls.SessionSource); err != nil {
		log.WithError(err).Warn("Site sessions unavailable")
		sessions = auth.StaticProvider{}
	} else {
		sessions = m
	}

	resolver := linksearch.NewResolver(ls.Concurrency, log)

	if f, err := pixiv.New(pixiv.Options{BaseDir: ls.PixivBase, HTTP: hc, Sessions: sessions, Logger: log}); err != nil {
		log.WithError(err).Warn("pixiv links will not be saved")
	} else {
		resolver.Register(f)
	}
	if f, err := nijie.New(nijie.Options{BaseDir: ls.NijieBase, HTTP: hc, Sessions: sessions, Logger: log}); err != nil {
		log.WithError(err).Warn("nijie links will not be saved")
	} else {
		resolver.Register(f)
	}
	if f, err := skeb.New(skeb.Options{BaseDir: ls.SkebBase, HTTP: hc, Sessions: sessions, Logger: log}); err != nil {
		log.WithError(err).Warn("skeb links will not be saved")
	} else {
		resolver.Register(f)
	}

	log.WithField("fetchers", resolver.Fetchers()).Debug("Link search enabled")
	return resolver, nil
}

// cliProgress draws a bar per download stage
type cliProgress struct {
	bar *ui.DownloadProgress
}

func (c *cliProgress) Start(kind database.Kind, total int) {
	c.bar = ui.NewDownloadProgress(string(kind), total)
}

func (c *cliProgress) Done(res downloader.DownloadResult) {
	if c.bar != nil {
		c.bar.Record(res.Added, res.Skipped, res.Error, res.Size)
	}
}

func (c *cliProgress) Finish() {
	if c.bar != nil {
		c.bar.Finish()
		c.bar = nil
	}
}
