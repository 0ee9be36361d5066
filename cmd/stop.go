package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var stopNoLog bool

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active task",
	Long: `Stop the active session. The remote timer is stopped and its elapsed
time logged against the work item unless --no-log is given. If the remote
stop fails, local state is left untouched so the timer can be stopped on
a retry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopRun(cmd.Context())
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopNoLog, "no-log", false, "Discard the tracked time instead of logging it")
	rootCmd.AddCommand(stopCmd)
}

func stopRun(ctx context.Context) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	res, err := co.Stop(ctx, lifecycle.StopOptions{NoLog: stopNoLog, DryRun: dryRun})
	if res != nil {
		reportExpired(res.ExpiredPrior)
	}
	if err != nil {
		return err
	}

	if res.Outcome == lifecycle.OutcomeDryRun {
		ui.DryRunMsg("would stop #%d %q", res.Stopped.WorkItemID, res.Stopped.Title)
		return nil
	}

	ui.Success("Stopped #%d %q", res.Stopped.WorkItemID, res.Stopped.Title)
	if res.Logged > 0 {
		ui.Info("Logged %s.", timer.FormatDuration(res.Logged))
	} else if stopNoLog {
		ui.Info("Tracked time discarded.")
	}
	return nil
}
