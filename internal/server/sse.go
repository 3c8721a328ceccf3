package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/flowlab-dev/flowlab/internal/streaming"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// handleSSEGlobal streams all events to the client via Server-Sent Events.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{})
}

// handleSSEWorkflow streams events for a specific workflow.
func (s *Server) handleSSEWorkflow(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{WorkflowID: r.PathValue("id")})
}

// handleSSERun streams events for a specific run.
func (s *Server) handleSSERun(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{RunID: r.PathValue("id")})
}

// streamRun executes a workflow while streaming its events to the client as
// SSE. The run ID is assigned here and the subscription attached before the
// runner starts, so every published event for the run reaches the stream.
// The stream ends with a "run" event carrying the terminal run record.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, wf *schema.Workflow, input string, vars map[string]string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	runID := uuid.NewString()
	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), streaming.EventFilter{RunID: runID})
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeSSE(w, "run_queued", map[string]string{"run_id": runID})
	flusher.Flush()

	done := make(chan *schema.Run, 1)
	go func() {
		// The runner's request-level error is already reflected in the
		// run record; the stream reports it through the terminal event.
		run, _ := s.deps.Runner.RunWithID(r.Context(), wf, runID, input, vars)
		done <- run
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event.EventType, event)
			flusher.Flush()
		case run := <-done:
			// Events the runner published before returning are still
			// buffered on the subscription; drain them first.
			for {
				select {
				case event := <-ch:
					writeSSE(w, event.EventType, event)
				default:
					writeSSE(w, "run", run)
					flusher.Flush()
					return
				}
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}

// serveSSE is the common SSE implementation.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event.EventType, event)
			flusher.Flush()
		}
	}
}
