package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent schema.Agent
	if err := decodeBody(r, &agent); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if agent.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	if err := s.deps.Store.CreateAgent(r.Context(), &agent); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Store.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if agents == nil {
		agents = []*schema.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.deps.Store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var agent schema.Agent
	if err := decodeBody(r, &agent); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	agent.ID = r.PathValue("id")
	if agent.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if err := s.deps.Store.UpdateAgent(r.Context(), &agent); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.deps.Store.GetAgent(r.Context(), agent.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
