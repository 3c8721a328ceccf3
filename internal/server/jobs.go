package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/internal/store"
)

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		WorkflowID     string `json:"workflow_id"`
		CronExpression string `json:"cron_expression"`
		Input          string `json:"input"`
		Enabled        bool   `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if body.WorkflowID == "" || body.CronExpression == "" {
		writeBadRequest(w, "workflow_id and cron_expression are required")
		return
	}

	// The workflow must exist before a job can reference it.
	if _, err := s.deps.Store.GetWorkflow(ctx, body.WorkflowID); err != nil {
		writeError(w, err)
		return
	}

	job := &store.ScheduledJob{
		ID:             uuid.New().String(),
		WorkflowID:     body.WorkflowID,
		CronExpression: body.CronExpression,
		Input:          body.Input,
		Enabled:        body.Enabled,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.deps.Store.CreateScheduledJob(ctx, job); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.Store.ListScheduledJobs(r.Context(), store.ScheduledJobFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*store.ScheduledJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.PathValue("id")

	var body struct {
		CronExpression *string `json:"cron_expression"`
		Input          *string `json:"input"`
		Enabled        *bool   `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return
	}

	if err := s.deps.Store.UpdateScheduledJob(ctx, jobID, store.ScheduledJobUpdate{
		CronExpression: body.CronExpression,
		Input:          body.Input,
		Enabled:        body.Enabled,
	}); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.deps.Store.GetScheduledJob(ctx, jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteScheduledJob(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
