package schema

import "time"

// Tool is a registered HTTP tool a workflow's tool nodes can invoke.
// The endpoint receives the rendered input payload as a JSON POST body
// unless another method is configured. Disabled tools stay registered but
// reject invocation.
type Tool struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	InputSchema map[string]any    `json:"input_schema,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Agent is a reusable preset an agent node can reference by ID instead of
// configuring a model and system prompt inline.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
