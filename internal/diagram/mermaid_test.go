package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

func TestRenderMermaidLinear(t *testing.T) {
	model, err := Build(linearWorkflow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)

	// Must start with graph TD.
	assert.Contains(t, output, "graph TD")

	// Title comment.
	assert.Contains(t, output, "%% Summarize Pipeline")

	// Agent and tool nodes use square brackets, start/end use double parens.
	assert.Contains(t, output, "summarize[")
	assert.Contains(t, output, "publish[")
	assert.Contains(t, output, "start((")
	assert.Contains(t, output, "end((")

	// Edges present.
	assert.Contains(t, output, "-->")

	// Class definitions.
	assert.Contains(t, output, "classDef completed")
	assert.Contains(t, output, "classDef failed")
	assert.Contains(t, output, "classDef running")
}

func TestRenderMermaidShapes(t *testing.T) {
	model, err := Build(branchingWorkflow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)

	// Condition nodes are diamonds, transform nodes double brackets.
	assert.Contains(t, output, "decide{")
	assert.Contains(t, output, "reshape[[")
}

func TestRenderMermaidEdgeLabels(t *testing.T) {
	model, err := Build(branchingWorkflow(), nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "decide -->|contains:urgent| escalate")
	assert.Contains(t, output, "decide --> reshape")
}

func TestRenderMermaidWithStatus(t *testing.T) {
	steps := []schema.Step{
		{NodeID: "summarize", Status: schema.StepStatusCompleted},
		{NodeID: "publish", Status: schema.StepStatusError},
	}
	model, err := Build(linearWorkflow(), steps)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "class summarize completed")
	assert.Contains(t, output, "class publish failed")
	assert.NotContains(t, output, "class end ")
}

func TestRenderMermaidSafeIDs(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].ID = "summarize-step.v2"
	wf.Edges[0].Target = "summarize-step.v2"
	wf.Edges[1].Source = "summarize-step.v2"

	model, err := Build(wf, nil)
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, "summarize_step_v2")
	assert.NotContains(t, output, "summarize-step.v2[")
}
