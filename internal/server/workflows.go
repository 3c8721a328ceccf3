package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/internal/store"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wf schema.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := s.deps.Validator.ValidateWorkflow(&wf); err != nil {
		writeError(w, err)
		return
	}

	if err := s.deps.Store.CreateWorkflow(ctx, &wf); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &wf)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.deps.Store.ListWorkflows(r.Context(), store.WorkflowFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if workflows == nil {
		workflows = []*schema.Workflow{}
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.deps.Store.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var wf schema.Workflow
	if err := decodeBody(r, &wf); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	wf.ID = r.PathValue("id")

	if err := s.deps.Validator.ValidateWorkflow(&wf); err != nil {
		writeError(w, err)
		return
	}

	if err := s.deps.Store.UpdateWorkflow(ctx, &wf); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.deps.Store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunWorkflow executes a workflow and returns the run record, or
// streams per-step events when ?stream=sse is set. Graph violations fail the
// request before any node executes; node failures are reported inside the
// returned run.
//
// The input may be any JSON value. Strings seed the run input as-is; every
// other value is serialized to its JSON text first.
func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Input json.RawMessage   `json:"input"`
		Vars  map[string]string `json:"vars"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeBadRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}

	input, err := schema.CoerceInput(body.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	wf, err := s.deps.Store.GetWorkflow(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("stream") == "sse" {
		s.streamRun(w, r, wf, input, body.Vars)
		return
	}

	run, err := s.deps.Runner.Run(ctx, wf, input, body.Vars)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}
