package cmd

import (
	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var currentCmd = &cobra.Command{
	Use:     "current",
	Aliases: []string{"cur"},
	Short:   "Show the active task",
	Long: `Show the active session: work item, elapsed time, and when the session
expires. This is a plain read and never takes the state lock.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return currentRun()
	},
}

func init() {
	rootCmd.AddCommand(currentCmd)
}

func currentRun() error {
	st, err := getStore()
	if err != nil {
		return err
	}
	clk, err := workClock()
	if err != nil {
		return err
	}

	s, corrupt := st.Read()
	if corrupt != nil {
		ui.Warning("State file was corrupt and has been moved aside: %v", corrupt)
	}
	if s.Session == nil {
		ui.Info("No active task.")
		return nil
	}

	sess := s.Session
	now := clk.Now()
	if sess.Expired(now) {
		ui.Warning("Session on #%d %q expired at %s; it will be cleared on the next command.",
			sess.WorkItemID, sess.Title, sess.ExpiresAt.Format("2006-01-02 15:04"))
		return nil
	}

	ui.Info("Working on #%d %q", sess.WorkItemID, sess.Title)
	ui.Info("  started: %s (%s ago)", sess.StartedAt.Format("2006-01-02 15:04"), timer.FormatDuration(sess.Elapsed(now)))
	ui.Info("  expires: %s", sess.ExpiresAt.Format("2006-01-02 15:04"))
	if sess.TimerID == "" {
		ui.Info("  timer:   not running")
	} else {
		ui.Info("  timer:   running (%s)", sess.TimerID)
	}
	return nil
}
