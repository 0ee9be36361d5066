package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/cache"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/sched"
)

var focusCmd = &cobra.Command{
	Use:   "focus",
	Short: "Focus Block scheduling",
}

var focusPlanCmd = &cobra.Command{
	Use:   "plan [work-item-id]",
	Short: "Preview the next available Focus Block slot",
	Long: `Compute where the next Focus Block would land, without writing anything
to the calendar. Uses the cached calendar when fresh.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := 0
		if len(args) == 1 {
			var err error
			id, err = parseItemID(args[0])
			if err != nil {
				return err
			}
		}
		return focusPlanRun(cmd.Context(), id)
	},
}

func init() {
	focusCmd.AddCommand(focusPlanCmd)
	rootCmd.AddCommand(focusCmd)
}

func focusPlanRun(ctx context.Context, itemID int) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	now := co.Clock.Now()
	horizon := now.AddDate(0, 0, co.Policy.LookaheadDays+3)
	key := "events/" + now.Format("2006-01-02")

	var events []models.CalendarEvent
	res, err := co.Cache.GetOrRefresh(ctx, models.SourceCalendar, key, cache.TTLCalendar, &events,
		func(ctx context.Context) (any, error) {
			return co.Calendar.ListEvents(ctx, now, horizon)
		})
	if err != nil {
		return err
	}
	if res.Stale {
		ui.Warning("Calendar unreachable; planning against a view from %s ago.", res.Age.Round(time.Second))
	}

	blk, err := sched.FindSlot(events, co.Clock, now, itemID, co.Policy)
	if err != nil {
		return err
	}

	ui.Info("Next focus block would be %s", formatBlock(blk))
	ui.VerboseLog("considered %d calendar events through %s", len(events), horizon.Format("2006-01-02"))
	return nil
}
