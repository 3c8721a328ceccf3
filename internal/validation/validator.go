package validation

import "github.com/flowlab-dev/flowlab/pkg/schema"

// Validator checks workflow documents and tool inputs at the API boundary.
// Structural graph checks (start node count, edge endpoints) live in the
// graph package; this layer rejects malformed JSON shapes before they are
// persisted.
type Validator interface {
	ValidateWorkflow(wf *schema.Workflow) error
	ValidateToolInput(input map[string]any, inputSchema []byte) error
}
