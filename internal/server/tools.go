package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	// New tools are enabled unless the body says otherwise.
	tool := schema.Tool{Enabled: true}
	if err := decodeBody(r, &tool); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if tool.Name == "" || tool.Endpoint == "" {
		writeBadRequest(w, "name and endpoint are required")
		return
	}
	if tool.ID == "" {
		tool.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	tool.CreatedAt = now
	tool.UpdatedAt = now

	if err := s.deps.Store.CreateTool(r.Context(), &tool); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &tool)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.deps.Store.ListTools(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if tools == nil {
		tools = []*schema.Tool{}
	}
	writeJSON(w, http.StatusOK, tools)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.deps.Store.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	existing, err := s.deps.Store.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	// A body that omits "enabled" keeps the current enable state; the
	// toggle route is the switch.
	tool := schema.Tool{Enabled: existing.Enabled}
	if err := decodeBody(r, &tool); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	tool.ID = existing.ID
	if tool.Name == "" || tool.Endpoint == "" {
		writeBadRequest(w, "name and endpoint are required")
		return
	}

	if err := s.deps.Store.UpdateTool(r.Context(), &tool); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.deps.Store.GetTool(r.Context(), tool.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleToggleTool flips a tool's enabled flag and returns the updated tool.
func (s *Server) handleToggleTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.deps.Store.GetTool(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	tool.Enabled = !tool.Enabled
	if err := s.deps.Store.UpdateTool(r.Context(), tool); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.deps.Store.GetTool(r.Context(), tool.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteTool(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
