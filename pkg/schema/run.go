package schema

import "time"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus represents the outcome of one executed node.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
)

// Step records one node's execution outcome within a run, in execution order.
type Step struct {
	NodeID    string     `json:"node_id"`
	NodeLabel string     `json:"node_label,omitempty"`
	NodeType  NodeType   `json:"node_type"`
	Status    StepStatus `json:"status"`
	Output    string     `json:"output,omitempty"`
	Error     *FlowError `json:"error,omitempty"`
	LatencyMs int64      `json:"latency_ms"`
}

// Run is one end-to-end execution of a workflow against a specific input.
// Mutated by the runner while in flight; immutable once terminal.
type Run struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	WorkflowName   string     `json:"workflow_name,omitempty"`
	Status         RunStatus  `json:"status"`
	Input          string     `json:"input"`
	FinalOutput    string     `json:"final_output,omitempty"`
	Error          *FlowError `json:"error,omitempty"`
	Steps          []Step     `json:"steps"`
	TotalLatencyMs int64      `json:"total_latency_ms"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
