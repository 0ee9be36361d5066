package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var (
	switchFocus   bool
	switchNoTimer bool
	switchComment string
)

var switchCmd = &cobra.Command{
	Use:   "switch <work-item-id>",
	Short: "Stop the current task and start another",
	Long: `Switch tasks in one step: the current timer is stopped (best effort)
and a new session starts on the given work item. Both halves run under a
single state lock, so an interrupted switch can never leave two timers
running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		return switchRun(cmd.Context(), id)
	},
}

func init() {
	switchCmd.Flags().BoolVarP(&switchFocus, "focus", "f", false, "Also schedule a Focus Block in the calendar")
	switchCmd.Flags().BoolVar(&switchNoTimer, "no-timer", false, "Skip the remote timer")
	switchCmd.Flags().StringVarP(&switchComment, "comment", "c", "", "Comment attached to the timer")
	rootCmd.AddCommand(switchCmd)
}

func switchRun(ctx context.Context, id int) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	res, err := co.Switch(ctx, id, lifecycle.StartOptions{
		Focus:   switchFocus,
		NoTimer: switchNoTimer,
		DryRun:  dryRun,
		Comment: switchComment,
	})
	if res != nil && res.Start != nil {
		reportExpired(res.Start.ExpiredPrior)
	}
	if err != nil {
		return err
	}

	if res.Start.Outcome == lifecycle.OutcomeDryRun {
		ui.DryRunMsg("would stop #%d and start #%d %q",
			res.Previous.WorkItemID, res.Start.Session.WorkItemID, res.Start.Session.Title)
		return nil
	}

	if res.StopErr != nil {
		ui.Warning("Could not stop the previous timer for #%d: %v", res.Previous.WorkItemID, res.StopErr)
	} else if res.PrevLogged > 0 {
		ui.Info("Logged %s against #%d.", timer.FormatDuration(res.PrevLogged), res.Previous.WorkItemID)
	}

	ui.Success("Switched to #%d %q", res.Start.Session.WorkItemID, res.Start.Session.Title)
	if res.Start.Block != nil {
		ui.Success("Focus block scheduled: %s", formatBlock(*res.Start.Block))
	}
	if res.Start.FocusErr != nil {
		ui.Warning("Focus block could not be scheduled: %v", res.Start.FocusErr)
	}
	return nil
}
