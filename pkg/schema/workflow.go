package schema

import (
	"encoding/json"
	"time"
)

// Workflow is a directed graph of typed nodes connected by edges.
// Authored in the visual editor, persisted as JSON, executed by the runner.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NodeType enumerates the kinds of nodes in a workflow.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeTransform NodeType = "transform"
	NodeTypeCondition NodeType = "condition"
	NodeTypeEnd       NodeType = "end"
)

// Node is a unit of work in a workflow graph.
// Config is type-specific; Position is editor presentation only.
type Node struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Label    string          `json:"label,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Position Position        `json:"position,omitempty"`
}

// Position is the node's location on the editor canvas. Irrelevant to execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge is a directed connection between two nodes. An edge with an empty
// Condition is the default edge; conditional edges carry an expression of
// the form "<op>:<operand>".
type Edge struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// AgentConfig is the config block for agent-type nodes.
// Either AgentID references a registered agent preset, or Model/SystemPrompt
// are given inline. PromptTemplate defaults to "{{input}}".
type AgentConfig struct {
	AgentID        string `json:"agent_id,omitempty"`
	Model          string `json:"model,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	PromptTemplate string `json:"prompt_template,omitempty"`
}

// ToolConfig is the config block for tool-type nodes.
// InputTemplate defaults to "{{prev_output}}" and must render to valid JSON.
type ToolConfig struct {
	ToolID        string `json:"tool_id"`
	InputTemplate string `json:"input_template,omitempty"`
}

// TransformConfig is the config block for transform-type nodes.
// Template rewrites the upstream output via {{...}} interpolation; JQ applies
// a jq expression to the upstream output parsed as JSON. Exactly one is used;
// when both are set, Template wins.
type TransformConfig struct {
	Template string `json:"template,omitempty"`
	JQ       string `json:"jq,omitempty"`
}

// ConditionConfig is the config block for condition-type nodes.
// Expression is informational: routing is decided by the conditions on the
// node's outgoing edges, evaluated against the upstream output.
type ConditionConfig struct {
	Expression string `json:"expression,omitempty"`
}

// DefaultPromptTemplate is used when an agent node has no prompt_template.
const DefaultPromptTemplate = "{{input}}"

// DefaultInputTemplate is used when a tool node has no input_template.
const DefaultInputTemplate = "{{prev_output}}"

// KnownNodeTypes is the closed set of node types the executor dispatches on.
var KnownNodeTypes = map[NodeType]bool{
	NodeTypeStart:     true,
	NodeTypeAgent:     true,
	NodeTypeTool:      true,
	NodeTypeTransform: true,
	NodeTypeCondition: true,
	NodeTypeEnd:       true,
}
