package graph

import (
	"encoding/json"
	"testing"

	"github.com/flowlab-dev/flowlab/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *schema.Workflow {
	return &schema.Workflow{
		ID:   "wf-1",
		Name: "linear",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "agent", Type: schema.NodeTypeAgent, Config: json.RawMessage(`{"prompt_template":"{{input}}"}`)},
			{ID: "end", Type: schema.NodeTypeEnd},
		},
		Edges: []schema.Edge{
			{Source: "start", Target: "agent"},
			{Source: "agent", Target: "end"},
		},
	}
}

func TestBuildValidWorkflow(t *testing.T) {
	g, err := Build(validWorkflow())
	require.NoError(t, err)

	require.NotNil(t, g.StartNode())
	assert.Equal(t, "start", g.StartNode().ID)

	node := g.Node("agent")
	require.NotNil(t, node)
	assert.Equal(t, schema.NodeTypeAgent, node.Type)

	assert.Nil(t, g.Node("missing"))
}

func TestBuildNilWorkflow(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
	assertInvalid(t, err)
}

func TestBuildEmptyWorkflow(t *testing.T) {
	_, err := Build(&schema.Workflow{ID: "wf-1"})
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestBuildNoStartNode(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "a", Type: schema.NodeTypeAgent},
			{ID: "end", Type: schema.NodeTypeEnd},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "no start node")
}

func TestBuildTwoStartNodes(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "s1", Type: schema.NodeTypeStart},
			{ID: "s2", Type: schema.NodeTypeStart},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "exactly one start node")
}

func TestBuildDuplicateNodeID(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "start", Type: schema.NodeTypeEnd},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "duplicate node id start")
}

func TestBuildUnknownNodeType(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "x", Type: schema.NodeType("mystery")},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestBuildEdgeReferencesUnknownNode(t *testing.T) {
	wf := validWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{Source: "agent", Target: "ghost"})

	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "unknown node ghost")
}

func TestBuildToolNodeRequiresToolID(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "tool", Type: schema.NodeTypeTool, Config: json.RawMessage(`{"input_template":"{{prev_output}}"}`)},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
	assert.Contains(t, err.Error(), "no tool_id")
}

func TestBuildTransformNodeRequiresTemplateOrJQ(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "tx", Type: schema.NodeTypeTransform, Config: json.RawMessage(`{}`)},
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assertInvalid(t, err)
}

func TestOutgoingEdgesPreserveAuthoredOrder(t *testing.T) {
	wf := &schema.Workflow{
		ID: "wf-1",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeStart},
			{ID: "cond", Type: schema.NodeTypeCondition},
			{ID: "a", Type: schema.NodeTypeEnd},
			{ID: "b", Type: schema.NodeTypeEnd},
			{ID: "c", Type: schema.NodeTypeEnd},
		},
		Edges: []schema.Edge{
			{Source: "start", Target: "cond"},
			{Source: "cond", Target: "a", Condition: "contains:a"},
			{Source: "cond", Target: "b", Condition: "contains:b"},
			{Source: "cond", Target: "c"},
		},
	}
	g, err := Build(wf)
	require.NoError(t, err)

	edges := g.OutgoingEdges("cond")
	require.Len(t, edges, 3)
	assert.Equal(t, "a", edges[0].Target)
	assert.Equal(t, "b", edges[1].Target)
	assert.Equal(t, "c", edges[2].Target)

	assert.Empty(t, g.OutgoingEdges("a"))
}

func assertInvalid(t *testing.T, err error) {
	t.Helper()
	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeInvalidWorkflow, flowErr.Code)
}
