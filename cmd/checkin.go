package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var checkinMarkBlocked bool

var checkinCmd = &cobra.Command{
	Use:   "checkin [continue|blocked|stop]",
	Short: "Check in after a Focus Block ends",
	Long: `Check in on the active task when a Focus Block wraps up.

With no argument an interactive prompt asks what to do next. Passing
continue, blocked, or stop skips the prompt for scripted use:

  continue  schedule another Focus Block and keep the timer running
  blocked   stop and log the timer, keep the session for later
  stop      end the session entirely`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var action lifecycle.CheckinAction
		if len(args) == 1 {
			action = lifecycle.CheckinAction(args[0])
		} else {
			var err error
			action, err = promptCheckin()
			if err != nil {
				return err
			}
			if action == "" {
				ui.Info("Cancelled.")
				return nil
			}
		}
		return checkinRun(cmd.Context(), action)
	},
}

func init() {
	checkinCmd.Flags().BoolVar(&checkinMarkBlocked, "mark-blocked", false, "When blocked, also move the work item to its blocked state")
	rootCmd.AddCommand(checkinCmd)
}

// promptCheckin shows the interactive menu. Returns "" on cancel.
func promptCheckin() (lifecycle.CheckinAction, error) {
	st, err := getStore()
	if err != nil {
		return "", err
	}
	clk, err := workClock()
	if err != nil {
		return "", err
	}

	s, _ := st.Read()
	if s.Session == nil {
		return "", faults.Validationf("no active task to check in on; start one with 'ao start <id>'")
	}
	sess := s.Session

	ui.Info("Focus block check-in")
	ui.Info("Task: #%d %q, running for %s", sess.WorkItemID, sess.Title,
		timer.FormatDuration(sess.Elapsed(clk.Now())))
	ui.Info("")
	ui.Info("  [1] Continue working (schedule another Focus Block)")
	ui.Info("  [2] I'm blocked (stop timer, keep the task)")
	ui.Info("  [3] Done for now (stop timer, end session)")
	ui.Info("  [q] Cancel")
	fmt.Fprint(ui.Out, "Your choice: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", &faults.IOError{Op: "read", Path: "stdin", Err: err}
	}

	switch strings.TrimSpace(line) {
	case "1":
		return lifecycle.CheckinContinue, nil
	case "2":
		return lifecycle.CheckinBlocked, nil
	case "3":
		return lifecycle.CheckinStop, nil
	case "q", "Q", "":
		return "", nil
	default:
		return "", faults.Validationf("unrecognized choice %q", strings.TrimSpace(line))
	}
}

func checkinRun(ctx context.Context, action lifecycle.CheckinAction) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	res, err := co.Checkin(ctx, action, lifecycle.CheckinOptions{
		MarkBlocked: checkinMarkBlocked,
		DryRun:      dryRun,
	})
	if res != nil {
		reportExpired(res.ExpiredPrior)
	}
	if err != nil {
		return err
	}

	if res.Outcome == lifecycle.OutcomeDryRun {
		ui.DryRunMsg("would check in (%s) on #%d", action, res.Session.WorkItemID)
		if res.NextBlock != nil {
			ui.DryRunMsg("would schedule focus block %s", formatBlock(*res.NextBlock))
		}
		if res.FocusErr != nil {
			ui.Warning("No focus block could be planned: %v", res.FocusErr)
		}
		return nil
	}

	switch action {
	case lifecycle.CheckinContinue:
		ui.Success("Continuing on #%d %q", res.Session.WorkItemID, res.Session.Title)
		if res.NextBlock != nil {
			ui.Success("Next focus block: %s", formatBlock(*res.NextBlock))
		}
	case lifecycle.CheckinBlocked:
		ui.Success("Paused #%d %q", res.Session.WorkItemID, res.Session.Title)
		if res.Logged > 0 {
			ui.Info("Logged %s.", timer.FormatDuration(res.Logged))
		}
		if res.TrackerErr != nil {
			ui.Warning("Timer stopped, but the item could not be marked blocked: %v", res.TrackerErr)
		} else if checkinMarkBlocked {
			ui.Info("Work item marked blocked.")
		}
		ui.Info("Resume later with 'ao switch %d'.", res.Session.WorkItemID)
	case lifecycle.CheckinStop:
		if res.Session != nil {
			ui.Success("Stopped #%d %q", res.Session.WorkItemID, res.Session.Title)
		}
		if res.Logged > 0 {
			ui.Info("Logged %s.", timer.FormatDuration(res.Logged))
		}
	}
	return nil
}
