package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/internal/validation"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// WorkflowRunner executes a workflow and returns its run record.
type WorkflowRunner interface {
	Run(ctx context.Context, wf *schema.Workflow, input string, vars map[string]string) (*schema.Run, error)
}

// FlowlabServerDeps holds the dependencies for creating a FlowlabServer.
type FlowlabServerDeps struct {
	Store     store.Store
	Runner    WorkflowRunner
	Validator validation.Validator
	Logger    *slog.Logger
}

// FlowlabServer wraps an MCP server with flowlab-specific tool handlers.
type FlowlabServer struct {
	store     store.Store
	runner    WorkflowRunner
	validator validation.Validator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowlabServer creates a new FlowlabServer with all tools registered.
func NewFlowlabServer(deps FlowlabServerDeps) *FlowlabServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowlabServer{
		store:     deps.Store,
		runner:    deps.Runner,
		validator: deps.Validator,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowlab",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowlab is a local-first workflow engine that routes text through graphs of agent, tool, transform and condition nodes. Use flowlab.run to execute a workflow, flowlab.status to inspect a run, flowlab.define to register a workflow, flowlab.query to list workflows/runs/tools/agents, and flowlab.diagram to render a workflow graph."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowlabServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowlabServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *FlowlabServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("flowlab.run",
		mcp.WithDescription("Execute a workflow and return the full run record with per-node steps"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to execute")),
		mcp.WithString("input", mcp.Description("Input handed to the start node; non-string JSON values are serialized to their JSON text")),
		mcp.WithObject("vars", mcp.Description("Extra template variables as string key-value pairs")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("flowlab.status",
		mcp.WithDescription("Get a run record by ID, including its steps and final output"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the run to query")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("flowlab.define",
		mcp.WithDescription("Register a workflow graph of start/agent/tool/transform/condition/end nodes"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Workflow name")),
		mcp.WithString("description", mcp.Description("Workflow description")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object with nodes and edges arrays")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flowlab.query",
		mcp.WithDescription("Query workflows, runs, tools, or agent presets"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "tools", "agents"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow_id, status, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flowlab.diagram",
		mcp.WithDescription("Render a workflow graph as a Mermaid flowchart or ASCII diagram"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to render")),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii"),
			mcp.Description("Output format, defaults to mermaid"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay this run's step outcomes onto the nodes")),
	)
}
