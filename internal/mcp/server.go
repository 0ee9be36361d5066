// Package mcp exposes the task lifecycle to agents over the Model Context
// Protocol. Tools mirror the CLI commands; mutations go through the same
// coordinator, so locking, saga ordering, and cache invalidation behave
// identically whether a human or an agent drives.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/TarunvirBains/ao-no-out7ook/internal/lifecycle"
	"github.com/TarunvirBains/ao-no-out7ook/internal/models"
	"github.com/TarunvirBains/ao-no-out7ook/internal/sched"
	"github.com/TarunvirBains/ao-no-out7ook/internal/timer"
)

// Server wraps the lifecycle coordinator and exposes it as MCP tools.
type Server struct {
	co *lifecycle.Coordinator
}

// NewServer creates the MCP server wrapper around an already-wired
// coordinator.
func NewServer(co *lifecycle.Coordinator) *Server {
	return &Server{co: co}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("ao", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.currentTaskTool())
	srv.AddTool(s.listItemsTool())
	srv.AddTool(s.startTaskTool())
	srv.AddTool(s.stopTaskTool())
	srv.AddTool(s.planFocusTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// ao_current_task
func (s *Server) currentTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ao_current_task",
		mcp.WithDescription("Get the active task session, if any. Returns JSON with work_item_id, title, started_at, expires_at, elapsed, and whether a timer is running; or {\"active\": false}."),
	)
	return tool, s.handleCurrentTask
}

func (s *Server) handleCurrentTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, corrupt := s.co.Store.Read()
	if corrupt != nil {
		return mcp.NewToolResultError(fmt.Sprintf("state file was corrupt and moved aside: %v", corrupt)), nil
	}
	if st.Session == nil {
		return mcp.NewToolResultText(`{"active": false}`), nil
	}

	sess := st.Session
	now := s.co.Clock.Now()
	out := map[string]any{
		"active":        true,
		"work_item_id":  sess.WorkItemID,
		"title":         sess.Title,
		"started_at":    sess.StartedAt.Format(time.RFC3339),
		"expires_at":    sess.ExpiresAt.Format(time.RFC3339),
		"elapsed":       timer.FormatDuration(sess.Elapsed(now)),
		"timer_running": sess.TimerID != "",
		"expired":       sess.Expired(now),
	}
	return marshalResult(out)
}

// ao_list_items
func (s *Server) listItemsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ao_list_items",
		mcp.WithDescription("List work items from the tracker. Returns a JSON array with id, title, state, type, and tags."),
		mcp.WithString("state", mcp.Description("Filter by state, e.g. Active")),
		mcp.WithString("search", mcp.Description("Title substring search")),
		mcp.WithString("tag", mcp.Description("Filter by tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 50)")),
	)
	return tool, s.handleListItems
}

func (s *Server) handleListItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.ItemFilter{
		State:      request.GetString("state", ""),
		AssignedTo: "@me",
		Search:     request.GetString("search", ""),
		Tag:        request.GetString("tag", ""),
		Limit:      request.GetInt("limit", 50),
	}

	items, err := s.co.Tracker.Query(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to query tracker: %v", err)), nil
	}
	return marshalResult(items)
}

// ao_start_task
func (s *Server) startTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ao_start_task",
		mcp.WithDescription("Start (or switch to) a work item: starts the remote timer and optionally schedules a Focus Block. If another task is active it is stopped first."),
		mcp.WithNumber("work_item_id", mcp.Required(), mcp.Description("Work item id to start")),
		mcp.WithBoolean("focus", mcp.Description("Also schedule a Focus Block (default false)")),
		mcp.WithString("comment", mcp.Description("Comment attached to the timer")),
	)
	return tool, s.handleStartTask
}

func (s *Server) handleStartTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("work_item_id")
	if err != nil || id <= 0 {
		return mcp.NewToolResultError("missing or invalid parameter: work_item_id"), nil
	}
	opts := lifecycle.StartOptions{
		Focus:   request.GetBool("focus", false),
		Comment: request.GetString("comment", ""),
	}

	// Agents have no use for the start/switch distinction; pick whichever
	// applies to the current state.
	st, _ := s.co.Store.Read()
	var startRes *lifecycle.StartResult
	if st.Session != nil && !st.Session.Expired(s.co.Clock.Now()) {
		sw, err := s.co.Switch(ctx, id, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("switch failed: %v", err)), nil
		}
		startRes = sw.Start
	} else {
		startRes, err = s.co.Start(ctx, id, opts)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}
	}

	out := map[string]any{
		"outcome":      string(startRes.Outcome),
		"work_item_id": startRes.Session.WorkItemID,
		"title":        startRes.Session.Title,
		"expires_at":   startRes.Session.ExpiresAt.Format(time.RFC3339),
	}
	if startRes.Block != nil {
		out["focus_block"] = blockOut(*startRes.Block)
	}
	if startRes.FocusErr != nil {
		out["focus_error"] = startRes.FocusErr.Error()
	}
	return marshalResult(out)
}

// ao_stop_task
func (s *Server) stopTaskTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ao_stop_task",
		mcp.WithDescription("Stop the active task: stops the remote timer and logs the tracked time against the work item."),
		mcp.WithBoolean("no_log", mcp.Description("Discard tracked time instead of logging it (default false)")),
	)
	return tool, s.handleStopTask
}

func (s *Server) handleStopTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.co.Stop(ctx, lifecycle.StopOptions{NoLog: request.GetBool("no_log", false)})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
	}

	out := map[string]any{
		"outcome":      string(res.Outcome),
		"work_item_id": res.Stopped.WorkItemID,
		"title":        res.Stopped.Title,
		"logged":       timer.FormatDuration(res.Logged),
	}
	return marshalResult(out)
}

// ao_plan_focus
func (s *Server) planFocusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ao_plan_focus",
		mcp.WithDescription("Compute where the next Focus Block would land in the calendar, without creating an event. Returns the proposed start, end, and duration."),
		mcp.WithNumber("work_item_id", mcp.Description("Work item the block would be for")),
	)
	return tool, s.handlePlanFocus
}

func (s *Server) handlePlanFocus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID := request.GetInt("work_item_id", 0)

	now := s.co.Clock.Now()
	horizon := now.AddDate(0, 0, s.co.Policy.LookaheadDays+3)
	events, err := s.co.Calendar.ListEvents(ctx, now, horizon)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list calendar events: %v", err)), nil
	}

	blk, err := sched.FindSlot(events, s.co.Clock, now, itemID, s.co.Policy)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no slot available: %v", err)), nil
	}
	return marshalResult(blockOut(blk))
}

func blockOut(b models.FocusBlock) map[string]any {
	return map[string]any{
		"start":     b.Start.Format(time.RFC3339),
		"end":       b.End.Format(time.RFC3339),
		"duration":  timer.FormatDuration(b.Duration()),
		"truncated": b.Truncated,
	}
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
