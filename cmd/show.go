package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/cache"
	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/output"
)

var showFresh bool

var showCmd = &cobra.Command{
	Use:   "show <work-item-id>",
	Short: "Show work item detail",
	Long: `Show a work item's title, type, state, assignee, and tags, plus the
states its type allows. Results are cached briefly; use --fresh to force
a refetch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseItemID(args[0])
		if err != nil {
			return err
		}
		return showRun(cmd.Context(), id)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showFresh, "fresh", false, "Bypass the cache")
	rootCmd.AddCommand(showCmd)
}

// cachedItem fetches a work item through the cache when one is wired.
func cachedItem(ctx context.Context, co *lifecycle.Coordinator, id int, fresh bool) (*models.WorkItem, bool, error) {
	if co.Cache == nil {
		item, err := co.Tracker.GetItem(ctx, id)
		return item, false, err
	}

	key := fmt.Sprintf("item/%d", id)
	if fresh {
		if err := co.Cache.Invalidate(ctx, models.SourceTracker, key); err != nil {
			ui.VerboseLog("cache invalidation failed: %v", err)
		}
	}

	var item models.WorkItem
	res, err := co.Cache.GetOrRefresh(ctx, models.SourceTracker, key, cache.TTLItem, &item,
		func(ctx context.Context) (any, error) {
			return co.Tracker.GetItem(ctx, id)
		})
	if err != nil {
		return nil, false, err
	}
	return &item, res.Stale, nil
}

// cachedSchema fetches a type schema through the cache when one is wired.
func cachedSchema(ctx context.Context, co *lifecycle.Coordinator, itemType string) (*models.TypeSchema, error) {
	if co.Cache == nil {
		return co.Tracker.GetTypeSchema(ctx, itemType)
	}

	var schema models.TypeSchema
	_, err := co.Cache.GetOrRefresh(ctx, models.SourceTracker, "schema/"+itemType, cache.TTLSchema, &schema,
		func(ctx context.Context) (any, error) {
			return co.Tracker.GetTypeSchema(ctx, itemType)
		})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func showRun(ctx context.Context, id int) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	item, stale, err := cachedItem(ctx, co, id, showFresh)
	if err != nil {
		return err
	}
	if stale {
		ui.Warning("Tracker unreachable; showing cached data.")
	}

	ui.Info("Task #%d: %s", item.ID, item.Title)
	ui.Info("  type:     %s", item.Type)
	ui.Info("  state:    %s", output.StateColor(item.State))
	if item.AssignedTo != "" {
		ui.Info("  assigned: %s", item.AssignedTo)
	} else {
		ui.Info("  assigned: (unassigned)")
	}
	if len(item.Tags) > 0 {
		ui.Info("  tags:     %s", strings.Join(item.Tags, ", "))
	}

	// Schema is supplementary; the item detail stands on its own.
	schema, err := cachedSchema(ctx, co, item.Type)
	if err != nil {
		ui.VerboseLog("type schema unavailable: %v", err)
		return nil
	}
	ui.Info("  states:   %s", strings.Join(schema.States, " > "))
	if next := schema.Transitions[item.State]; len(next) > 0 {
		ui.Info("  next:     %s", strings.Join(next, ", "))
	}

	// If this item carries the active session, say so.
	if st, _ := co.Store.Read(); st.Session != nil && st.Session.WorkItemID == id {
		ui.Info("  session:  active since %s", st.Session.StartedAt.Format(time.RFC3339))
	}
	return nil
}
