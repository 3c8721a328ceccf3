package graph

import (
	"encoding/json"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// Graph is the validated in-memory representation of a workflow.
// Built once per run from a workflow snapshot, then read-only: the runner
// resolves nodes and outgoing edges against it while walking the graph.
type Graph struct {
	workflow *schema.Workflow
	nodes    map[string]*schema.Node
	outgoing map[string][]*schema.Edge // source node ID → edges in authored order
	start    *schema.Node
}

// Build validates a workflow and constructs its executable graph.
// Checks: at least one node, exactly one start node, unique node IDs,
// known node types, required per-type config, and edge endpoints that
// resolve to existing nodes. Returns an INVALID_WORKFLOW error naming
// the specific violation.
func Build(wf *schema.Workflow) (*Graph, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidWorkflow, "workflow is nil")
	}

	if len(wf.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeInvalidWorkflow, "workflow has no nodes")
	}

	g := &Graph{
		workflow: wf,
		nodes:    make(map[string]*schema.Node, len(wf.Nodes)),
		outgoing: make(map[string][]*schema.Edge, len(wf.Nodes)),
	}

	// First pass: register nodes, check duplicates and types.
	for i := range wf.Nodes {
		node := &wf.Nodes[i]

		if node.ID == "" {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "node at index %d has empty ID", i)
		}

		if _, exists := g.nodes[node.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "duplicate node id %s", node.ID)
		}

		if !schema.KnownNodeTypes[node.Type] {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "node %s has unknown type %q", node.ID, node.Type).
				WithNode(node.ID)
		}

		if node.Type == schema.NodeTypeStart {
			if g.start != nil {
				return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow,
					"workflow must have exactly one start node, found both %s and %s", g.start.ID, node.ID)
			}
			g.start = node
		}

		g.nodes[node.ID] = node
	}

	if g.start == nil {
		return nil, schema.NewError(schema.ErrCodeInvalidWorkflow, "workflow has no start node")
	}

	// Second pass: per-type config constraints.
	for _, node := range g.nodes {
		if err := validateNodeConfig(node); err != nil {
			return nil, err
		}
	}

	// Third pass: edge endpoints, preserving authored order per source.
	for i := range wf.Edges {
		edge := &wf.Edges[i]

		if _, ok := g.nodes[edge.Source]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "edge references unknown node %s", edge.Source)
		}
		if _, ok := g.nodes[edge.Target]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "edge references unknown node %s", edge.Target)
		}

		g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge)
	}

	return g, nil
}

// validateNodeConfig checks type-specific constraints on a node.
func validateNodeConfig(node *schema.Node) error {
	switch node.Type {
	case schema.NodeTypeTool:
		var cfg schema.ToolConfig
		if err := unmarshalConfig(node.Config, &cfg); err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "tool node %s has invalid config: %v", node.ID, err).
				WithNode(node.ID)
		}
		if cfg.ToolID == "" {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "tool node %s has no tool_id", node.ID).
				WithNode(node.ID)
		}

	case schema.NodeTypeAgent:
		var cfg schema.AgentConfig
		if err := unmarshalConfig(node.Config, &cfg); err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "agent node %s has invalid config: %v", node.ID, err).
				WithNode(node.ID)
		}

	case schema.NodeTypeTransform:
		var cfg schema.TransformConfig
		if err := unmarshalConfig(node.Config, &cfg); err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "transform node %s has invalid config: %v", node.ID, err).
				WithNode(node.ID)
		}
		if cfg.Template == "" && cfg.JQ == "" {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "transform node %s must have a template or a jq expression", node.ID).
				WithNode(node.ID)
		}

	case schema.NodeTypeCondition:
		var cfg schema.ConditionConfig
		if err := unmarshalConfig(node.Config, &cfg); err != nil {
			return schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "condition node %s has invalid config: %v", node.ID, err).
				WithNode(node.ID)
		}
	}

	// start and end nodes carry no required config.
	return nil
}

// unmarshalConfig decodes a node config, treating empty config as zero-value.
func unmarshalConfig(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Workflow returns the workflow this graph was built from.
func (g *Graph) Workflow() *schema.Workflow {
	return g.workflow
}

// StartNode returns the unique start node.
func (g *Graph) StartNode() *schema.Node {
	return g.start
}

// Node returns the node with the given ID, or nil when absent.
func (g *Graph) Node(id string) *schema.Node {
	return g.nodes[id]
}

// OutgoingEdges returns all edges whose source is the given node, in the
// order they were authored. Authored order governs condition tie-breaks.
func (g *Graph) OutgoingEdges(nodeID string) []*schema.Edge {
	return g.outgoing[nodeID]
}
