package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/faults"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/output"
)

var stateCmd = &cobra.Command{
	Use:   "state <work-item-id> [new-state]",
	Short: "Show or change a work item's state",
	Long: `Without a new state, show the item's current state and the states its
type allows. With one, validate it against the type schema and update the
item in the tracker.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		target := ""
		if len(args) == 2 {
			target = args[1]
		}
		return stateRun(cmd.Context(), id, target)
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func stateRun(ctx context.Context, id int, target string) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	// A pending update reads the item directly; only the display path may
	// serve cached data.
	var item *models.WorkItem
	if target == "" {
		item, _, err = cachedItem(ctx, co, id, false)
	} else {
		item, err = co.Tracker.GetItem(ctx, id)
	}
	if err != nil {
		return err
	}
	schema, err := cachedSchema(ctx, co, item.Type)
	if err != nil {
		return err
	}

	if target == "" {
		ui.Info("Task #%d is %s", item.ID, output.StateColor(item.State))
		ui.Info("Valid states for %s: %s", item.Type, strings.Join(schema.States, ", "))
		if next := schema.Transitions[item.State]; len(next) > 0 {
			ui.Info("Reachable from %s: %s", item.State, strings.Join(next, ", "))
		}
		return nil
	}

	if !containsState(schema.States, target) {
		return faults.Validationf("invalid state %q; valid states for %s: %s",
			target, item.Type, strings.Join(schema.States, ", "))
	}
	if item.State == target {
		ui.Info("Task #%d is already %s.", id, target)
		return nil
	}
	// Transition rules are advisory; enforce them only when the schema
	// declares any for the current state.
	if next := schema.Transitions[item.State]; len(next) > 0 && !schema.CanTransition(item.State, target) {
		return faults.Validationf("%s cannot move from %s to %s (reachable: %s)",
			item.Type, item.State, target, strings.Join(next, ", "))
	}

	if dryRun {
		ui.DryRunMsg("would update #%d from %s to %s", id, item.State, target)
		return nil
	}

	if err := co.Tracker.UpdateItemState(ctx, id, target); err != nil {
		return err
	}
	if co.Cache != nil {
		_ = co.Cache.Invalidate(ctx, models.SourceTracker, fmt.Sprintf("item/%d", id))
	}
	ui.Success("Task #%d updated: %s -> %s", id, item.State, target)
	return nil
}

func containsState(states []string, s string) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
