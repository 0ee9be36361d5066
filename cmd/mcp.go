package cmd

import (
	"github.com/spf13/cobra"

	"github.com/TarunvirBains/ao-no-out7ook/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents drive the task lifecycle natively. Configure with:

  {
    "mcpServers": {
      "ao": { "command": "ao", "args": ["mcp"] }
    }
  }

Available tools: ao_current_task, ao_list_items, ao_start_task,
ao_stop_task, ao_plan_focus`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		co, err := getCoordinator()
		if err != nil {
			return err
		}
		return mcp.NewServer(co).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
