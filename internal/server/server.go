package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/flowlab-dev/flowlab/internal/llm"
	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/internal/streaming"
	"github.com/flowlab-dev/flowlab/internal/validation"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// WorkflowRunner executes a workflow and returns its run record.
// RunWithID takes a caller-assigned run ID so the caller can subscribe to
// the run's events before execution starts. Satisfied by the engine runner.
type WorkflowRunner interface {
	Run(ctx context.Context, wf *schema.Workflow, input string, vars map[string]string) (*schema.Run, error)
	RunWithID(ctx context.Context, wf *schema.Workflow, runID, input string, vars map[string]string) (*schema.Run, error)
}

// ModelLister queries the LLM backend for available models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llm.Model, error)
}

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Runner    WorkflowRunner
	Models    ModelLister
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Server serves the JSON API and SSE event streams.
type Server struct {
	deps Deps
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Workflows.
	mux.HandleFunc("POST /api/workflows", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("POST /api/workflows/{id}/run", s.handleRunWorkflow)
	mux.HandleFunc("GET /api/workflows/{id}/diagram", s.handleWorkflowDiagram)

	// Runs.
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)

	// Tools.
	mux.HandleFunc("POST /api/tools", s.handleCreateTool)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{id}", s.handleGetTool)
	mux.HandleFunc("PUT /api/tools/{id}", s.handleUpdateTool)
	mux.HandleFunc("POST /api/tools/{id}/toggle", s.handleToggleTool)
	mux.HandleFunc("DELETE /api/tools/{id}", s.handleDeleteTool)

	// Agent presets.
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)

	// Scheduled jobs.
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("PUT /api/jobs/{id}", s.handleUpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)

	// Models.
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// SSE streams.
	mux.HandleFunc("GET /api/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /api/workflows/{id}/events", s.handleSSEWorkflow)
	mux.HandleFunc("GET /api/runs/{id}/events", s.handleSSERun)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
