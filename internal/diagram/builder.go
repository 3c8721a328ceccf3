package diagram

import (
	"fmt"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// Build converts a workflow graph into a renderable Model. Steps from a run
// may be passed to overlay runtime status onto the nodes; nil means no
// overlay. Cycles are allowed, each node is placed on the level of its first
// visit.
func Build(wf *schema.Workflow, steps []schema.Step) (*Model, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is nil")
	}
	if len(wf.Nodes) == 0 {
		return nil, fmt.Errorf("workflow has no nodes")
	}

	model := &Model{Title: wf.Name}

	overlay := buildOverlay(steps)
	byID := make(map[string]*Node, len(wf.Nodes))
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		node := &Node{
			ID:     n.ID,
			Label:  nodeLabel(n),
			Kind:   string(n.Type),
			Status: overlay[n.ID],
		}
		model.Nodes = append(model.Nodes, node)
		byID[n.ID] = node
	}

	outgoing := make(map[string][]string)
	for _, e := range wf.Edges {
		model.Edges = append(model.Edges, Edge{From: e.Source, To: e.Target, Label: e.Condition})
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
	}

	model.Levels = layoutLevels(wf, byID, outgoing)
	return model, nil
}

// buildOverlay maps node IDs to their latest step state.
func buildOverlay(steps []schema.Step) map[string]*StatusOverlay {
	if len(steps) == 0 {
		return nil
	}
	overlay := make(map[string]*StatusOverlay, len(steps))
	for _, step := range steps {
		so := &StatusOverlay{
			Status:    string(step.Status),
			LatencyMs: step.LatencyMs,
		}
		if step.Error != nil {
			so.Error = step.Error.Message
		}
		overlay[step.NodeID] = so
	}
	return overlay
}

// layoutLevels assigns nodes to rows by BFS distance from the start node.
// Nodes unreachable from the start are appended as a trailing row so they
// still show up in the diagram.
func layoutLevels(wf *schema.Workflow, byID map[string]*Node, outgoing map[string][]string) [][]string {
	var startID string
	for _, n := range wf.Nodes {
		if n.Type == schema.NodeTypeStart {
			startID = n.ID
			break
		}
	}
	if startID == "" {
		// No start node: a single row keeps the render deterministic.
		row := make([]string, 0, len(wf.Nodes))
		for _, n := range wf.Nodes {
			row = append(row, n.ID)
		}
		return [][]string{row}
	}

	visited := map[string]bool{startID: true}
	var levels [][]string
	frontier := []string{startID}

	for len(frontier) > 0 {
		levels = append(levels, frontier)
		var next []string
		for _, id := range frontier {
			for _, target := range outgoing[id] {
				if visited[target] {
					continue
				}
				if _, ok := byID[target]; !ok {
					continue
				}
				visited[target] = true
				next = append(next, target)
			}
		}
		frontier = next
	}

	var orphans []string
	for _, n := range wf.Nodes {
		if !visited[n.ID] {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		levels = append(levels, orphans)
	}
	return levels
}

func nodeLabel(n *schema.Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}
