package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/cache"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/output"
)

var (
	listState    string
	listAssigned string
	listSearch   string
	listTag      string
	listLimit    int
	listFresh    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List work items from the tracker",
	Long: `List work items assigned to you (or matching the given filters).
Results are cached briefly; use --fresh to force a refetch.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun(cmd.Context())
	},
}

func init() {
	listCmd.Flags().StringVarP(&listState, "state", "s", "", "Filter by state (e.g. Active)")
	listCmd.Flags().StringVarP(&listAssigned, "assigned", "a", "@me", "Filter by assignee")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Title substring search")
	listCmd.Flags().StringVarP(&listTag, "tag", "t", "", "Filter by tag")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of items")
	listCmd.Flags().BoolVar(&listFresh, "fresh", false, "Bypass the cache")
	rootCmd.AddCommand(listCmd)
}

func listRun(ctx context.Context) error {
	co, err := getCoordinator()
	if err != nil {
		return err
	}

	filter := models.ItemFilter{
		State:      listState,
		AssignedTo: listAssigned,
		Search:     listSearch,
		Tag:        listTag,
		Limit:      listLimit,
	}
	key := fmt.Sprintf("query/%s/%s/%s/%s/%d",
		filter.State, filter.AssignedTo, filter.Search, filter.Tag, filter.Limit)

	if listFresh {
		if err := co.Cache.Invalidate(ctx, models.SourceTracker, key); err != nil {
			ui.VerboseLog("cache invalidation failed: %v", err)
		}
	}

	var items []models.WorkItem
	res, err := co.Cache.GetOrRefresh(ctx, models.SourceTracker, key, cache.TTLItem, &items,
		func(ctx context.Context) (any, error) {
			return co.Tracker.Query(ctx, filter)
		})
	if err != nil {
		return err
	}
	if res.Stale {
		ui.Warning("Tracker unreachable; showing cached results from %s ago.", res.Age.Round(time.Second))
	}

	if len(items) == 0 {
		ui.Info("No work items match.")
		return nil
	}

	table := ui.Table([]string{"ID", "Type", "State", "Title", "Tags"})
	for _, it := range items {
		table.Append([]string{
			fmt.Sprintf("%d", it.ID),
			it.Type,
			output.StateColor(it.State),
			it.Title,
			strings.Join(it.Tags, ", "),
		})
	}
	table.Render()
	return nil
}
