package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
)

var (
	startFocus   bool
	startNoTimer bool
	startComment string
)

var startCmd = &cobra.Command{
	Use:   "start <work-item-id>",
	Short: "Start working on a work item",
	Long: `Start a session on a work item: the remote timer begins tracking and,
with --focus, a Focus Block is placed in the calendar. Fails if another
task is already active; use 'ao switch' instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		return startRun(cmd.Context(), id)
	},
}

func init() {
	startCmd.Flags().BoolVarP(&startFocus, "focus", "f", false, "Also schedule a Focus Block in the calendar")
	startCmd.Flags().BoolVar(&startNoTimer, "no-timer", false, "Skip the remote timer")
	startCmd.Flags().StringVarP(&startComment, "comment", "c", "", "Comment attached to the timer")
	rootCmd.AddCommand(startCmd)
}

func parseItemID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, faults.Validationf("work item id must be a positive integer, got %q", s)
	}
	return id, nil
}

func startRun(ctx context.Context, id int) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	res, err := co.Start(ctx, id, lifecycle.StartOptions{
		Focus:   startFocus,
		NoTimer: startNoTimer,
		DryRun:  dryRun,
		Comment: startComment,
	})
	if res != nil {
		reportExpired(res.ExpiredPrior)
	}
	if err != nil {
		return err
	}

	switch res.Outcome {
	case lifecycle.OutcomeDryRun:
		ui.DryRunMsg("would start #%d %q", res.Session.WorkItemID, res.Session.Title)
		if res.Block != nil {
			ui.DryRunMsg("would schedule focus block %s", formatBlock(*res.Block))
		}
	default:
		ui.Success("Started #%d %q", res.Session.WorkItemID, res.Session.Title)
		if res.TimerReused {
			ui.Info("Timer was already running for this item; adopted it.")
		}
		if res.Block != nil {
			ui.Success("Focus block scheduled: %s", formatBlock(*res.Block))
		}
		if res.FocusErr != nil {
			ui.Warning("Timer started, but the focus block could not be scheduled: %v", res.FocusErr)
		}
		ui.VerboseLog("session expires at %s", res.Session.ExpiresAt.Format("2006-01-02 15:04"))
	}
	return nil
}

