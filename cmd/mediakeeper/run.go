package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/database"
	"mediakeeper/pkg/pipeline"
	"mediakeeper/pkg/ui"
)

var (
	holdingCount int
	pageCount    int
	concurrent   int
	reply        bool
	linkSearch   bool
	interval     time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [favorite|retweet|all]",
	Short: "Collect media from liked and retweeted posts once",
	Long: `Run the collection pipeline once for the given collection.

Each run lists recent posts, downloads media that is not stored yet,
records it in the database, removes the oldest files beyond the holding
count and sends a summary to the configured channels.`,
	Example: `  # Collect both collections
  mediakeeper run

  # Only liked posts, keeping 500 files
  mediakeeper run favorite --holding-count 500

  # Retweets with link search and a summary reply
  mediakeeper run retweet --linksearch --reply`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"favorite", "retweet", "all"},
	RunE:      runCollect,
}

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [favorite|retweet|all]",
	Short: "Run the collection pipeline on an interval",
	Long: `Run the collection pipeline repeatedly until interrupted.

A failed run is reported and the next tick runs again.`,
	Example: `  # Collect every 30 minutes
  mediakeeper watch --interval 30m`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"favorite", "retweet", "all"},
	RunE:      runWatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)

	for _, cmd := range []*cobra.Command{runCmd, watchCmd} {
		cmd.Flags().IntVar(&holdingCount, "holding-count", 0, "number of files to keep per collection (0 keeps everything)")
		cmd.Flags().IntVar(&pageCount, "page-count", 0, "extra listing pages after the first one")
		cmd.Flags().IntVar(&concurrent, "concurrent", 3, "concurrent downloads")
		cmd.Flags().BoolVar(&reply, "reply", false, "post the summary as a reply")
		cmd.Flags().BoolVar(&linkSearch, "linksearch", false, "save works linked from collected posts")
	}
	watchCmd.Flags().DurationVar(&interval, "interval", time.Hour, "time between runs")
}

// commandFlags collects the flags the user actually set
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("holding-count") {
		flags["holding-count"] = holdingCount
	}
	if cmd.Flags().Changed("page-count") {
		flags["page-count"] = pageCount
	}
	if cmd.Flags().Changed("concurrent") {
		flags["concurrent"] = concurrent
	}
	if cmd.Flags().Changed("reply") {
		flags["reply"] = reply
	}
	if cmd.Flags().Changed("linksearch") {
		flags["linksearch"] = linkSearch
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}

// parseKinds maps the collection argument to the kinds to run
func parseKinds(args []string) ([]database.Kind, error) {
	target := "all"
	if len(args) > 0 {
		target = args[0]
	}
	switch target {
	case "favorite":
		return []database.Kind{database.KindFavorite}, nil
	case "retweet":
		return []database.Kind{database.KindRetweet}, nil
	case "all":
		return []database.Kind{database.KindFavorite, database.KindRetweet}, nil
	}
	return nil, fmt.Errorf("unknown collection %q (want favorite, retweet or all)", target)
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func runCollect(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args)
	if err != nil {
		return err
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ui.PrintBanner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.runOnce(ctx, kinds)
}

func runWatch(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ui.PrintBanner()
	ui.PrintInfo("Interval", interval.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.runOnce(ctx, kinds); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ui.PrintError("Run failed", err.Error())
		}
		select {
		case <-ctx.Done():
			ui.PrintWarning("Stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// runOnce runs every kind in order. A failed kind does not stop the next
// one; the first error is returned.
func (a *app) runOnce(ctx context.Context, kinds []database.Kind) error {
	var firstErr error
	for _, kind := range kinds {
		res, err := a.pipeline.Run(ctx, a.sources[kind])
		printResult(kind, res, err)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s run failed: %w", kind, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return firstErr
}

func printResult(kind database.Kind, res *pipeline.Result, err error) {
	if res == nil {
		return
	}
	if err != nil {
		ui.PrintWarning(fmt.Sprintf("%s run stopped while %s", kind.Title(), res.Stage))
		return
	}
	ui.PrintSuccess(fmt.Sprintf("%s run complete", kind.Title()))
	ui.PrintInfo("Posts", fmt.Sprintf("%d (%d media)", res.Posts, res.Candidates))
	ui.PrintInfo("Added", fmt.Sprintf("%d (present %d, failed %d)", res.Added, res.Skipped, res.Failed))
	ui.PrintInfo("Removed", fmt.Sprintf("%d (kept %d)", res.Removed, res.Kept))
	if res.Links.Delegated+res.Links.Failed > 0 {
		ui.PrintInfo("Links", fmt.Sprintf("%d saved, %d failed", res.Links.Delegated, res.Links.Failed))
	}
	if res.GalleryPath != "" {
		ui.PrintInfo("Gallery", res.GalleryPath)
	}
}
