package streaming

import "context"

// Event types emitted over the run event stream.
const (
	EventRunStarted    = "run_started"
	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
)

// StreamEvent is a real-time event emitted during a workflow run.
type StreamEvent struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	NodeID     string `json:"node_id,omitempty"`
	EventType  string `json:"event_type"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	WorkflowID string   `json:"workflow_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
