package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"mediakeeper/pkg/config"
	"mediakeeper/pkg/database"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/report"
	"mediakeeper/pkg/ui"
)

var galleryOutput string

// galleryCmd represents the gallery command
var galleryCmd = &cobra.Command{
	Use:   "gallery [favorite|retweet|all]",
	Short: "Regenerate the HTML gallery from the database",
	Long: `Write the gallery page of the most recent media records without
contacting the API.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGallery,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.Flags().StringVarP(&galleryOutput, "output", "o", "", "output directory (default from report.output_directory)")
}

func runGallery(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadUnvalidated(configFile, commandFlags(cmd))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := database.Open(cfg.Retention.DatabasePath, logger.GetLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	dir := cfg.Report.OutputDirectory
	if galleryOutput != "" {
		dir = galleryOutput
	}

	ctx := context.Background()
	for _, kind := range kinds {
		records, err := store.SelectRecent(ctx, kind, cfg.Report.GalleryCount)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, report.GalleryFilename(kind))
		if err := report.WriteGallery(path, kind.Title()+" Media", records); err != nil {
			return fmt.Errorf("failed to write %s gallery: %w", kind, err)
		}
		ui.PrintInfo(kind.Title()+" gallery", fmt.Sprintf("%s (%d records)", path, len(records)))
	}
	return nil
}
