package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mediakeeper/pkg/runlog"
	"mediakeeper/pkg/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last run of each collection",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	runs, err := runlog.NewManager("", nil)
	if err != nil {
		return err
	}
	records, err := runs.LoadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, rec := range records {
		state := ui.Green("ok")
		if !rec.Success {
			state = ui.Red("failed at " + rec.Stage)
		}
		fmt.Printf("%s  %s  %s\n", ui.Cyan(rec.Kind), state, ui.Dim(rec.RunID))
		fmt.Printf("  finished %s (%s ago, took %s)\n",
			rec.FinishedAt.Local().Format(time.DateTime),
			time.Since(rec.FinishedAt).Round(time.Second),
			rec.Duration.Round(time.Millisecond))
		fmt.Printf("  posts %d, media %d, added %d, present %d, failed %d\n",
			rec.Posts, rec.Candidates, rec.Added, rec.Skipped, rec.Failed)
		fmt.Printf("  kept %d, removed %d\n", rec.Kept, rec.Removed)
		if rec.LinksDelegated+rec.LinksFailed+rec.LinksUnmatched > 0 {
			fmt.Printf("  links saved %d, failed %d, unmatched %d\n", rec.LinksDelegated, rec.LinksFailed, rec.LinksUnmatched)
		}
		if rec.Error != "" {
			fmt.Printf("  error: %s\n", ui.Red(rec.Error))
		}
	}
	return nil
}
