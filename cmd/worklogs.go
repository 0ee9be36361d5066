package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var worklogsDays int

var worklogsCmd = &cobra.Command{
	Use:   "worklogs",
	Short: "List recent worklogs",
	Long: `List the worklogs recorded in the timer service over the last days,
with a total, for reconciling tracked time against the tracker.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return worklogsRun(cmd.Context())
	},
}

func init() {
	worklogsCmd.Flags().IntVar(&worklogsDays, "days", 7, "How many days back to fetch")
	rootCmd.AddCommand(worklogsCmd)
}

func worklogsRun(ctx context.Context) error {
	if worklogsDays <= 0 || worklogsDays > 365 {
		return faults.Validationf("days must be in [1, 365], got %d", worklogsDays)
	}

	co, err := getCoordinator()
	if err != nil {
		return err
	}

	to := co.Clock.Now()
	from := to.AddDate(0, 0, -worklogsDays)

	logs, err := co.Timer.Worklogs(ctx, from, to)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		ui.Info("No worklogs in the last %d days.", worklogsDays)
		return nil
	}

	table := ui.Table([]string{"Task", "Duration", "Date", "Comment"})
	var total time.Duration
	for _, wl := range logs {
		total += wl.Logged()
		table.Append([]string{
			fmt.Sprintf("%d", wl.WorkItemID),
			timer.FormatDuration(wl.Logged()),
			wl.Timestamp.Format("2006-01-02 15:04"),
			truncate(wl.Comment, 48),
		})
	}
	table.Render()

	ui.Info("Total: %s (%d entries)", timer.FormatDuration(total), len(logs))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
