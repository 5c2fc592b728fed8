package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/waypointhq/waypoint/internal/domain/checkpoint"
	"github.com/waypointhq/waypoint/internal/domain/command"
	"github.com/waypointhq/waypoint/internal/domain/event"
	"github.com/waypointhq/waypoint/internal/domain/instance"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.registerInstanceTool(),
		s.heartbeatTool(),
		s.listInstancesTool(),
		s.listStaleInstancesTool(),
		s.getInstanceDetailsTool(),
		s.closeInstanceTool(),
		s.emitEventTool(),
		s.queryEventsTool(),
		s.replayEventsTool(),
		s.listEventTypesTool(),
		s.aggregateEventsTool(),
		s.createCheckpointTool(),
		s.getCheckpointTool(),
		s.listCheckpointsTool(),
		s.cleanupCheckpointsTool(),
		s.logCommandTool(),
		s.searchCommandsTool(),
		s.commandStatsTool(),
		s.resumeInstanceTool(),
		s.getResumeDetailsTool(),
	)
}

// ---------------------------------------------------------------------------
// Registry tools
// ---------------------------------------------------------------------------

func (s *Server) registerInstanceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("register_instance",
		mcplib.WithDescription("Register a new worker or coordinator instance and receive its generated ID"),
		mcplib.WithString("project",
			mcplib.Required(),
			mcplib.Description("Project name (no spaces, dashes, or slashes)"),
		),
		mcplib.WithString("instance_type",
			mcplib.Required(),
			mcplib.Description("Instance type: worker or coordinator"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRegisterInstance}
}

func (s *Server) handleRegisterInstance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	args := req.GetArguments()
	project, _ := args["project"].(string)
	itype, _ := args["instance_type"].(string)
	if project == "" || itype == "" {
		return mcplib.NewToolResultError("project and instance_type are required"), nil
	}

	in, err := s.deps.Registry.Register(ctx, &instance.RegisterRequest{
		Project: project,
		Type:    instance.Type(itype),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to register instance", err), nil
	}
	return marshalResult(in)
}

func (s *Server) heartbeatTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("heartbeat",
		mcplib.WithDescription("Record a heartbeat for an instance, updating context usage and optionally the current epic"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithNumber("context_percent",
			mcplib.Required(),
			mcplib.Description("Context window usage, 0-100"),
		),
		mcplib.WithString("current_epic",
			mcplib.Description("Epic the instance is working on"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleHeartbeat}
}

func (s *Server) handleHeartbeat(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}
	pct, ok := args["context_percent"].(float64)
	if !ok {
		return mcplib.NewToolResultError("context_percent is required"), nil
	}

	hreq := &instance.HeartbeatRequest{InstanceID: id, ContextPercent: int(pct)}
	if epic, ok := args["current_epic"].(string); ok && epic != "" {
		hreq.CurrentEpic = &epic
	}

	res, err := s.deps.Registry.Heartbeat(ctx, hreq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("heartbeat failed for %s", id), err), nil
	}
	return marshalResult(res)
}

func (s *Server) listInstancesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_instances",
		mcplib.WithDescription("List registered instances with derived statuses"),
		mcplib.WithString("project",
			mcplib.Description("Filter by project name"),
		),
		mcplib.WithBoolean("include_closed",
			mcplib.Description("Include closed instances (default false)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListInstances}
}

func (s *Server) handleListInstances(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	args := req.GetArguments()
	project, _ := args["project"].(string)
	includeClosed, _ := args["include_closed"].(bool)

	list, err := s.deps.Registry.List(ctx, project, includeClosed)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list instances", err), nil
	}
	return marshalResult(list)
}

func (s *Server) listStaleInstancesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_stale_instances",
		mcplib.WithDescription("List instances past the staleness threshold, candidates for resume"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListStaleInstances}
}

func (s *Server) handleListStaleInstances(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	list, err := s.deps.Registry.ListStale(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list stale instances", err), nil
	}
	return marshalResult(list)
}

func (s *Server) getInstanceDetailsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_instance_details",
		mcplib.WithDescription("Get a single instance by full ID or unique hash fragment"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID or hash fragment"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetInstanceDetails}
}

func (s *Server) handleGetInstanceDetails(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	id, _ := req.GetArguments()["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	in, err := s.deps.Registry.GetDetails(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get instance %s", id), err), nil
	}
	if in == nil {
		return mcplib.NewToolResultError(fmt.Sprintf("no instance matches %q", id)), nil
	}
	return marshalResult(in)
}

func (s *Server) closeInstanceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("close_instance",
		mcplib.WithDescription("Close an instance; closing is terminal and excludes it from resume"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCloseInstance}
}

func (s *Server) handleCloseInstance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registry == nil {
		return mcplib.NewToolResultError("registry not configured"), nil
	}
	id, _ := req.GetArguments()["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	in, err := s.deps.Registry.Close(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to close instance %s", id), err), nil
	}
	return marshalResult(in)
}

// ---------------------------------------------------------------------------
// Event log tools
// ---------------------------------------------------------------------------

func (s *Server) emitEventTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("emit_event",
		mcplib.WithDescription("Append an event to an instance's log; the sequence number is assigned atomically"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithString("event_type",
			mcplib.Required(),
			mcplib.Description("One of the known event types, e.g. epic.started, test.failed, commit.created"),
		),
		mcplib.WithString("payload",
			mcplib.Description("Event payload as a JSON object string"),
		),
		mcplib.WithString("metadata",
			mcplib.Description("Event metadata as a JSON object string"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleEmitEvent}
}

func (s *Server) handleEmitEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event log not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	etype, _ := args["event_type"].(string)
	if id == "" || etype == "" {
		return mcplib.NewToolResultError("instance_id and event_type are required"), nil
	}

	payload, err := jsonArg(args, "payload")
	if err != nil {
		return mcplib.NewToolResultError("payload must be valid JSON"), nil
	}
	metadata, err := jsonArg(args, "metadata")
	if err != nil {
		return mcplib.NewToolResultError("metadata must be valid JSON"), nil
	}

	ev, err := s.deps.Events.Emit(ctx, id, event.Type(etype), payload, metadata)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to emit event", err), nil
	}
	return marshalResult(ev)
}

func (s *Server) queryEventsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("query_events",
		mcplib.WithDescription("Query an instance's events, newest first"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithString("event_type",
			mcplib.Description("Filter to a single event type"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of events to return"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleQueryEvents}
}

func (s *Server) handleQueryEvents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event log not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	filter := event.Filter{InstanceID: id}
	if t, ok := args["event_type"].(string); ok && t != "" {
		filter.Types = []event.Type{event.Type(t)}
	}
	if n, ok := args["limit"].(float64); ok {
		filter.Limit = int(n)
	}

	evs, err := s.deps.Events.Query(ctx, filter)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to query events", err), nil
	}
	return marshalResult(evs)
}

func (s *Server) replayEventsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("replay_events",
		mcplib.WithDescription("Replay an instance's events in sequence order, optionally up to a sequence number"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithNumber("up_to_sequence",
			mcplib.Description("Stop at this sequence number (0 = all)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleReplayEvents}
}

func (s *Server) handleReplayEvents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event log not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}
	var upTo int64
	if n, ok := args["up_to_sequence"].(float64); ok {
		upTo = int64(n)
	}

	evs, err := s.deps.Events.Replay(ctx, id, upTo)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to replay events", err), nil
	}
	return marshalResult(evs)
}

func (s *Server) listEventTypesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_event_types",
		mcplib.WithDescription("List all known event types"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListEventTypes}
}

func (s *Server) handleListEventTypes(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event log not configured"), nil
	}
	return marshalResult(s.deps.Events.ListTypes())
}

func (s *Server) aggregateEventsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("aggregate_events",
		mcplib.WithDescription("Count events per type, optionally scoped to one instance"),
		mcplib.WithString("instance_id",
			mcplib.Description("Full instance ID; omit to aggregate across all instances"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAggregateEvents}
}

func (s *Server) handleAggregateEvents(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Events == nil {
		return mcplib.NewToolResultError("event log not configured"), nil
	}
	id, _ := req.GetArguments()["instance_id"].(string)

	counts, err := s.deps.Events.AggregateByType(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to aggregate events", err), nil
	}
	return marshalResult(counts)
}

// ---------------------------------------------------------------------------
// Checkpoint tools
// ---------------------------------------------------------------------------

func (s *Server) createCheckpointTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_checkpoint",
		mcplib.WithDescription("Capture a point-in-time snapshot of an instance's work state"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithString("checkpoint_type",
			mcplib.Required(),
			mcplib.Description("manual or auto"),
		),
		mcplib.WithNumber("context_percent",
			mcplib.Required(),
			mcplib.Description("Context window usage at capture time, 0-100"),
		),
		mcplib.WithString("work_state",
			mcplib.Description("Work state as a JSON object string (project, epic, git, tests, files)"),
		),
		mcplib.WithString("metadata",
			mcplib.Description("Checkpoint metadata as a JSON object string"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCreateCheckpoint}
}

func (s *Server) handleCreateCheckpoint(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Checkpoints == nil {
		return mcplib.NewToolResultError("checkpoint store not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	ctype, _ := args["checkpoint_type"].(string)
	if id == "" || ctype == "" {
		return mcplib.NewToolResultError("instance_id and checkpoint_type are required"), nil
	}
	pct, ok := args["context_percent"].(float64)
	if !ok {
		return mcplib.NewToolResultError("context_percent is required"), nil
	}

	creq := &checkpoint.CreateRequest{
		InstanceID:     id,
		Type:           checkpoint.CaptureType(ctype),
		ContextPercent: int(pct),
	}
	if raw, err := jsonArg(args, "work_state"); err != nil {
		return mcplib.NewToolResultError("work_state must be valid JSON"), nil
	} else if raw != nil {
		if err := json.Unmarshal(raw, &creq.WorkState); err != nil {
			return mcplib.NewToolResultError("work_state does not match the expected shape"), nil
		}
	}
	if raw, err := jsonArg(args, "metadata"); err != nil {
		return mcplib.NewToolResultError("metadata must be valid JSON"), nil
	} else if raw != nil {
		creq.Metadata = raw
	}

	cp, err := s.deps.Checkpoints.Create(ctx, creq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to create checkpoint", err), nil
	}
	return marshalResult(cp)
}

func (s *Server) getCheckpointTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_checkpoint",
		mcplib.WithDescription("Get a checkpoint by its ID"),
		mcplib.WithString("checkpoint_id",
			mcplib.Required(),
			mcplib.Description("Checkpoint ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetCheckpoint}
}

func (s *Server) handleGetCheckpoint(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Checkpoints == nil {
		return mcplib.NewToolResultError("checkpoint store not configured"), nil
	}
	id, _ := req.GetArguments()["checkpoint_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("checkpoint_id is required"), nil
	}

	cp, err := s.deps.Checkpoints.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get checkpoint %s", id), err), nil
	}
	return marshalResult(cp)
}

func (s *Server) listCheckpointsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_checkpoints",
		mcplib.WithDescription("List an instance's checkpoints, newest first"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of checkpoints to return"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListCheckpoints}
}

func (s *Server) handleListCheckpoints(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Checkpoints == nil {
		return mcplib.NewToolResultError("checkpoint store not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}
	var limit int
	if n, ok := args["limit"].(float64); ok {
		limit = int(n)
	}

	list, err := s.deps.Checkpoints.ListForInstance(ctx, id, limit)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list checkpoints", err), nil
	}
	return marshalResult(list)
}

func (s *Server) cleanupCheckpointsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cleanup_checkpoints",
		mcplib.WithDescription("Delete old checkpoints per the retention policy; the latest checkpoint of each open instance is kept"),
		mcplib.WithNumber("max_age_hours",
			mcplib.Description("Delete checkpoints older than this many hours (0 = configured default)"),
		),
		mcplib.WithNumber("max_per_instance",
			mcplib.Description("Keep at most this many checkpoints per instance (0 = configured default)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCleanupCheckpoints}
}

func (s *Server) handleCleanupCheckpoints(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Checkpoints == nil {
		return mcplib.NewToolResultError("checkpoint store not configured"), nil
	}
	args := req.GetArguments()
	var policy checkpoint.RetentionPolicy
	if n, ok := args["max_age_hours"].(float64); ok {
		policy.MaxAge = time.Duration(n) * time.Hour
	}
	if n, ok := args["max_per_instance"].(float64); ok {
		policy.MaxPerInstance = int(n)
	}

	deleted, err := s.deps.Checkpoints.Cleanup(ctx, policy)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("checkpoint cleanup failed", err), nil
	}
	return marshalResult(map[string]int{"deleted": deleted})
}

// ---------------------------------------------------------------------------
// Command log tools
// ---------------------------------------------------------------------------

func (s *Server) logCommandTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("log_command",
		mcplib.WithDescription("Record a command executed by an instance"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithString("command_type",
			mcplib.Required(),
			mcplib.Description("Command category, e.g. test, commit, build"),
		),
		mcplib.WithString("action",
			mcplib.Required(),
			mcplib.Description("What the command did"),
		),
		mcplib.WithString("tool_name",
			mcplib.Description("Tool that executed the command"),
		),
		mcplib.WithString("parameters",
			mcplib.Description("Command parameters as a JSON object string"),
		),
		mcplib.WithString("result",
			mcplib.Description("Command output summary"),
		),
		mcplib.WithBoolean("success",
			mcplib.Description("Whether the command succeeded (default true)"),
		),
		mcplib.WithNumber("execution_time_ms",
			mcplib.Description("Execution time in milliseconds"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleLogCommand}
}

func (s *Server) handleLogCommand(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Commands == nil {
		return mcplib.NewToolResultError("command log not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	ctype, _ := args["command_type"].(string)
	action, _ := args["action"].(string)
	if id == "" || ctype == "" || action == "" {
		return mcplib.NewToolResultError("instance_id, command_type, and action are required"), nil
	}

	entry := &command.Entry{
		InstanceID:  id,
		CommandType: ctype,
		Action:      action,
		Success:     true,
	}
	if v, ok := args["tool_name"].(string); ok {
		entry.ToolName = v
	}
	if v, ok := args["result"].(string); ok {
		entry.Result = v
	}
	if v, ok := args["success"].(bool); ok {
		entry.Success = v
	}
	if n, ok := args["execution_time_ms"].(float64); ok {
		entry.ExecutionTime = int64(n)
	}
	if raw, err := jsonArg(args, "parameters"); err != nil {
		return mcplib.NewToolResultError("parameters must be valid JSON"), nil
	} else if raw != nil {
		entry.Parameters = raw
	}

	out, err := s.deps.Commands.Log(ctx, entry)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to log command", err), nil
	}
	return marshalResult(out)
}

func (s *Server) searchCommandsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("search_commands",
		mcplib.WithDescription("Search an instance's command history, newest first"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
		mcplib.WithString("command_type",
			mcplib.Description("Filter by command category"),
		),
		mcplib.WithString("text",
			mcplib.Description("Free-text match against action, tool name, and tags"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of entries to return"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleSearchCommands}
}

func (s *Server) handleSearchCommands(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Commands == nil {
		return mcplib.NewToolResultError("command log not configured"), nil
	}
	args := req.GetArguments()
	id, _ := args["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	filter := command.Filter{InstanceID: id}
	if v, ok := args["command_type"].(string); ok {
		filter.CommandType = v
	}
	if v, ok := args["text"].(string); ok {
		filter.Text = v
	}
	if n, ok := args["limit"].(float64); ok {
		filter.Limit = int(n)
	}

	entries, err := s.deps.Commands.Search(ctx, filter)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to search commands", err), nil
	}
	return marshalResult(entries)
}

func (s *Server) commandStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("command_stats",
		mcplib.WithDescription("Aggregate an instance's command history by type"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCommandStats}
}

func (s *Server) handleCommandStats(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Commands == nil {
		return mcplib.NewToolResultError("command log not configured"), nil
	}
	id, _ := req.GetArguments()["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	stats, err := s.deps.Commands.StatsFor(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to aggregate commands", err), nil
	}
	return marshalResult(stats)
}

// ---------------------------------------------------------------------------
// Resume tools
// ---------------------------------------------------------------------------

func (s *Server) resumeInstanceTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("resume_instance",
		mcplib.WithDescription("Resume a stale instance: resolve the hint, rebuild its work state, and get next steps. With no hint, resumes the most recently active stale instance."),
		mcplib.WithString("hint",
			mcplib.Description("Full ID, hash fragment (4-6 hex chars), project name, or epic name"),
		),
		mcplib.WithNumber("choice",
			mcplib.Description("Candidate index from a previous disambiguation of the same hint"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleResumeInstance}
}

func (s *Server) handleResumeInstance(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Resume == nil {
		return mcplib.NewToolResultError("resume engine not configured"), nil
	}
	args := req.GetArguments()
	hint, _ := args["hint"].(string)
	var choice *int
	if n, ok := args["choice"].(float64); ok {
		c := int(n)
		choice = &c
	}

	res, err := s.deps.Resume.Resume(ctx, hint, choice)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("resume failed", err), nil
	}
	return marshalResult(res)
}

func (s *Server) getResumeDetailsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_resume_instance_details",
		mcplib.WithDescription("Get the full recovery payload for an instance: registry record, reconstruction, latest checkpoint, recent events, and command stats"),
		mcplib.WithString("instance_id",
			mcplib.Required(),
			mcplib.Description("Full instance ID"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetResumeDetails}
}

func (s *Server) handleGetResumeDetails(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Resume == nil {
		return mcplib.NewToolResultError("resume engine not configured"), nil
	}
	id, _ := req.GetArguments()["instance_id"].(string)
	if id == "" {
		return mcplib.NewToolResultError("instance_id is required"), nil
	}

	details, err := s.deps.Resume.Details(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get resume details for %s", id), err), nil
	}
	return marshalResult(details)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// jsonArg extracts an optional JSON-object string argument. Returns nil when
// absent or empty.
func jsonArg(args map[string]any, key string) (json.RawMessage, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return nil, nil
	}
	if !json.Valid([]byte(v)) {
		return nil, fmt.Errorf("%s is not valid JSON", key)
	}
	return json.RawMessage(v), nil
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}
