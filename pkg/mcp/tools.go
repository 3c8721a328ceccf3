package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowlab-dev/flowlab/internal/diagram"
	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// handleRun executes a stored workflow and returns the run record.
func (s *FlowlabServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	// The input may be any JSON value; non-strings are serialized to
	// their JSON text before seeding the run.
	input, coerceErr := schema.CoerceInput(req.GetArguments()["input"])
	if coerceErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid input: %v", coerceErr)), nil
	}

	var vars map[string]string
	if raw := mcp.ParseStringMap(req, "vars", nil); raw != nil {
		vars = make(map[string]string, len(raw))
		for k, v := range raw {
			vars[k] = fmt.Sprint(v)
		}
	}

	wf, wfErr := s.store.GetWorkflow(ctx, workflowID)
	if wfErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", wfErr)), nil
	}

	run, runErr := s.runner.Run(ctx, wf, input, vars)
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow rejected: %v", runErr)), nil
	}

	return marshalResult(run)
}

// handleStatus returns a run record by ID.
func (s *FlowlabServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.store.GetRun(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", getErr)), nil
	}

	return marshalResult(run)
}

// handleDefine registers a new workflow.
func (s *FlowlabServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}

	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	// Round-trip the definition through JSON to get typed nodes and edges.
	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	var def struct {
		Nodes []schema.Node `json:"nodes"`
		Edges []schema.Edge `json:"edges"`
	}
	if unmarshalErr := json.Unmarshal(defBytes, &def); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", unmarshalErr)), nil
	}

	now := time.Now().UTC()
	wf := &schema.Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		Description: req.GetString("description", ""),
		Nodes:       def.Nodes,
		Edges:       def.Edges,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.validator != nil {
		if valErr := s.validator.ValidateWorkflow(wf); valErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", valErr)), nil
		}
	}

	if storeErr := s.store.CreateWorkflow(ctx, wf); storeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store workflow: %v", storeErr)), nil
	}

	return marshalResult(map[string]any{
		"workflow_id": wf.ID,
		"name":        name,
	})
}

// handleQuery lists workflows, runs, tools, or agents based on filters.
func (s *FlowlabServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "tools":
		tools, listErr := s.store.ListTools(ctx)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"tools": tools})
	case "agents":
		agents, listErr := s.store.ListAgents(ctx)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"agents": agents})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram renders a workflow graph as Mermaid or ASCII text.
func (s *FlowlabServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}

	wf, wfErr := s.store.GetWorkflow(ctx, workflowID)
	if wfErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow lookup failed: %v", wfErr)), nil
	}

	var steps []schema.Step
	if runID := req.GetString("run_id", ""); runID != "" {
		run, runErr := s.store.GetRun(ctx, runID)
		if runErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", runErr)), nil
		}
		steps = run.Steps
	}

	model, buildErr := diagram.Build(wf, steps)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format := req.GetString("format", "mermaid"); format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown diagram format: %s", format)), nil
	}
}

// --- Query helpers ---

func (s *FlowlabServer) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	workflows, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{
		Limit: extractInt(filter, "limit", 50),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

func (s *FlowlabServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if wfID, ok := filter["workflow_id"].(string); ok {
		rf.WorkflowID = wfID
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// --- Internal helpers ---

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
