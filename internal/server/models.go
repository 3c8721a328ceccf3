package server

import (
	"net/http"

	"github.com/flowlab-dev/flowlab/internal/llm"
)

// handleListModels proxies the model list from the LLM backend.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Models.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if models == nil {
		models = []llm.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}
