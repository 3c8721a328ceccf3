package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"

	"github.com/flowlab-dev/flowlab/internal/expressions"
	"github.com/flowlab-dev/flowlab/internal/llm"
	"github.com/flowlab-dev/flowlab/internal/tools"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// AgentResolver resolves agent presets referenced by agent nodes.
type AgentResolver interface {
	GetAgent(ctx context.Context, id string) (*schema.Agent, error)
}

// NodeExecutor produces the output (or error) of executing a single node
// against the current ExecutionContext. Only agent and tool nodes have
// externally observable side effects; everything else is pure context
// transformation.
type NodeExecutor struct {
	llm    llm.Invoker
	tools  tools.Invoker
	agents AgentResolver
	jq     *expressions.GoJQEngine
	logger *slog.Logger
}

// NewNodeExecutor creates a NodeExecutor. The agent resolver is optional;
// when nil, agent nodes referencing a preset by ID fail.
func NewNodeExecutor(llmClient llm.Invoker, toolInvoker tools.Invoker, agents AgentResolver, jq *expressions.GoJQEngine, logger *slog.Logger) *NodeExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeExecutor{
		llm:    llmClient,
		tools:  toolInvoker,
		agents: agents,
		jq:     jq,
		logger: logger,
	}
}

// Execute runs one node and returns its output. The switch is exhaustive
// over the known node types; Build has already rejected anything else.
func (ne *NodeExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (string, error) {
	switch node.Type {
	case schema.NodeTypeStart:
		return ec.Input, nil

	case schema.NodeTypeAgent:
		return ne.executeAgent(ctx, node, ec)

	case schema.NodeTypeTool:
		return ne.executeTool(ctx, node, ec)

	case schema.NodeTypeTransform:
		return ne.executeTransform(ctx, node, ec)

	case schema.NodeTypeCondition:
		// Routing happens at the runner level; the step itself passes
		// prev_output through unchanged to keep the log consistent.
		return ec.PrevOutput, nil

	case schema.NodeTypeEnd:
		return ec.PrevOutput, nil

	default:
		return "", schema.NewErrorf(schema.ErrCodeInvalidWorkflow, "node %s has unknown type %q", node.ID, node.Type).
			WithNode(node.ID)
	}
}

func (ne *NodeExecutor) executeAgent(ctx context.Context, node *schema.Node, ec *ExecutionContext) (string, error) {
	var cfg schema.AgentConfig
	if len(node.Config) > 0 {
		if err := json.Unmarshal(node.Config, &cfg); err != nil {
			return "", schema.NewErrorf(schema.ErrCodeAgentInvocation, "invalid agent config: %v", err).
				WithNode(node.ID).WithCause(err)
		}
	}

	model := cfg.Model
	systemPrompt := cfg.SystemPrompt

	// An agent preset supplies defaults; inline config wins.
	if cfg.AgentID != "" {
		if ne.agents == nil {
			return "", schema.NewErrorf(schema.ErrCodeAgentInvocation, "agent preset %q referenced but no resolver configured", cfg.AgentID).
				WithNode(node.ID)
		}
		preset, err := ne.agents.GetAgent(ctx, cfg.AgentID)
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeAgentInvocation, "resolve agent preset %q: %v", cfg.AgentID, err).
				WithNode(node.ID).WithCause(err)
		}
		if model == "" {
			model = preset.Model
		}
		if systemPrompt == "" {
			systemPrompt = preset.SystemPrompt
		}
	}

	promptTemplate := cfg.PromptTemplate
	if promptTemplate == "" {
		promptTemplate = schema.DefaultPromptTemplate
	}
	prompt := expressions.Render(promptTemplate, ec.TemplateVars())

	res, err := ne.llm.Invoke(ctx, model, systemPrompt, prompt)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeAgentInvocation, "llm invocation failed: %v", err).
			WithNode(node.ID).WithCause(err)
	}

	ne.logger.DebugContext(ctx, "agent node completed",
		slog.String("model", res.Model),
		slog.Int64("llm_latency_ms", res.LatencyMs))

	return res.Text, nil
}

func (ne *NodeExecutor) executeTool(ctx context.Context, node *schema.Node, ec *ExecutionContext) (string, error) {
	var cfg schema.ToolConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeToolExecution, "invalid tool config: %v", err).
			WithNode(node.ID).WithCause(err)
	}

	inputTemplate := cfg.InputTemplate
	if inputTemplate == "" {
		inputTemplate = schema.DefaultInputTemplate
	}
	rendered := expressions.Render(inputTemplate, ec.TemplateVars())

	payload := coerceJSONPayload(rendered)
	if payload == nil {
		return "", schema.NewErrorf(schema.ErrCodeToolInput,
			"rendered tool input is not valid JSON: %s", truncateForError(rendered)).
			WithNode(node.ID).
			WithDetails(map[string]any{"rendered_input": rendered})
	}

	result, err := ne.tools.Invoke(ctx, cfg.ToolID, payload)
	if err != nil {
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) {
			return "", flowErr.WithNode(node.ID)
		}
		return "", schema.NewErrorf(schema.ErrCodeToolExecution, "tool invocation failed: %v", err).
			WithNode(node.ID).WithCause(err)
	}

	return string(result), nil
}

func (ne *NodeExecutor) executeTransform(ctx context.Context, node *schema.Node, ec *ExecutionContext) (string, error) {
	var cfg schema.TransformConfig
	if err := json.Unmarshal(node.Config, &cfg); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeTransform, "invalid transform config: %v", err).
			WithNode(node.ID).WithCause(err)
	}

	// A template takes precedence over a jq program when both are set.
	if cfg.Template != "" {
		return expressions.Render(cfg.Template, ec.TemplateVars()), nil
	}

	if ne.jq == nil {
		return "", schema.NewError(schema.ErrCodeTransform, "jq transform requested but no jq engine configured").
			WithNode(node.ID)
	}

	data := ec.ExpressionData()
	// Expose structured prev_output to jq when it parses as JSON.
	var parsed any
	if err := json.Unmarshal([]byte(ec.PrevOutput), &parsed); err == nil {
		data["prev_output"] = parsed
	}

	out, err := ne.jq.Evaluate(ctx, cfg.JQ, data)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeTransform, "jq transform failed: %v", err).
			WithNode(node.ID).WithCause(err)
	}

	return stringifyTransformResult(out)
}

// coerceJSONPayload turns a rendered tool input into a JSON payload.
// Valid JSON passes through, an empty render becomes an empty object,
// anything else is rejected.
func coerceJSONPayload(rendered string) json.RawMessage {
	if rendered == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(rendered)) {
		return json.RawMessage(rendered)
	}
	return nil
}

// stringifyTransformResult converts a jq result back into the string form
// carried by prev_output.
func stringifyTransformResult(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", schema.NewErrorf(schema.ErrCodeTransform, "marshal transform result: %v", err).WithCause(err)
		}
		return string(b), nil
	}
}

func truncateForError(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
