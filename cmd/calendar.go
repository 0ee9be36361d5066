package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/calendar"
	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

var (
	calListDays  int
	calListItem  int
	calListFocus bool
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Inspect and clean up calendar events",
}

var calendarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upcoming calendar events",
	Long: `List events over the coming days, with their event ids so stale Focus
Blocks can be removed with 'ao calendar delete'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarListRun(cmd.Context())
	},
}

var calendarDeleteCmd = &cobra.Command{
	Use:   "delete <event-id>",
	Short: "Delete a calendar event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return calendarDeleteRun(cmd.Context(), args[0])
	},
}

func init() {
	calendarListCmd.Flags().IntVar(&calListDays, "days", 7, "How many days ahead to fetch")
	calendarListCmd.Flags().IntVar(&calListItem, "item", 0, "Only events linked to this work item")
	calendarListCmd.Flags().BoolVar(&calListFocus, "focus", false, "Only Focus Block events")
	calendarCmd.AddCommand(calendarListCmd)
	calendarCmd.AddCommand(calendarDeleteCmd)
	rootCmd.AddCommand(calendarCmd)
}

func calendarListRun(ctx context.Context) error {
	if calListDays <= 0 || calListDays > 365 {
		return faults.Validationf("days must be in [1, 365], got %d", calListDays)
	}

	co, err := getCoordinator()
	if err != nil {
		return err
	}

	from := co.Clock.Now()
	to := from.AddDate(0, 0, calListDays)

	events, err := co.Calendar.ListEvents(ctx, from, to)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Event ID", "Subject", "Start", "Duration", "Item"})
	shown := 0
	for _, ev := range events {
		if calListItem > 0 && ev.WorkItemID != calListItem {
			continue
		}
		if calListFocus && !hasCategory(ev.Categories, calendar.FocusCategory) {
			continue
		}
		item := ""
		if ev.WorkItemID > 0 {
			item = fmt.Sprintf("#%d", ev.WorkItemID)
		}
		table.Append([]string{
			ev.ID,
			ev.Subject,
			ev.Start.Format("Mon 2006-01-02 15:04"),
			timer.FormatDuration(ev.End.Sub(ev.Start)),
			item,
		})
		shown++
	}

	if shown == 0 {
		ui.Info("No matching events in the next %d days.", calListDays)
		return nil
	}
	table.Render()
	return nil
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}

func calendarDeleteRun(ctx context.Context, eventID string) error {
	if eventID == "" {
		return faults.Validationf("event id must not be empty")
	}

	co, err := getCoordinator()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("would delete event %s", eventID)
		return nil
	}

	if err := co.Calendar.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	ui.Success("Event %s deleted.", eventID)
	return nil
}
