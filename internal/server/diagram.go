package server

import (
	"net/http"

	"github.com/flowlab-dev/flowlab/internal/diagram"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// handleWorkflowDiagram renders a workflow graph as Mermaid or ASCII text.
// An optional run_id query parameter overlays that run's step outcomes onto
// the nodes.
func (s *Server) handleWorkflowDiagram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	wf, err := s.deps.Store.GetWorkflow(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var steps []schema.Step
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err := s.deps.Store.GetRun(ctx, runID)
		if err != nil {
			writeError(w, err)
			return
		}
		steps = run.Steps
	}

	model, err := diagram.Build(wf, steps)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	var rendered string
	switch format {
	case "", "mermaid":
		rendered = diagram.RenderMermaid(model)
	case "ascii":
		rendered = diagram.RenderASCII(model)
	default:
		writeBadRequest(w, "unknown diagram format: "+format)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rendered))
}
