package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var logComment string

var logCmd = &cobra.Command{
	Use:   "log <work-item-id> <hours>",
	Short: "Log time against a work item manually",
	Long: `Log a span of time against a work item without running a timer, for
work done away from the desk. Hours may be fractional, e.g. 'ao log 1234 0.5'.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		hours, err := strconv.ParseFloat(args[1], 64)
		if err != nil || hours <= 0 || hours > 24 {
			return faults.Validationf("hours must be a number in (0, 24], got %q", args[1])
		}
		return logRun(cmd.Context(), id, time.Duration(hours*float64(time.Hour)))
	},
}

func init() {
	logCmd.Flags().StringVarP(&logComment, "comment", "c", "", "Worklog comment")
	rootCmd.AddCommand(logCmd)
}

func logRun(ctx context.Context, id int, d time.Duration) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("would log %s against #%d", timer.FormatDuration(d), id)
		return nil
	}

	wl, err := co.Timer.LogManual(ctx, id, d, logComment)
	if err != nil {
		return err
	}
	ui.Success("Logged %s against #%d (worklog %d)", timer.FormatDuration(d), id, wl.ID)
	return nil
}
