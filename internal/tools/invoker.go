package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// DefaultClient bounds a single tool call.
var DefaultClient = &http.Client{Timeout: 60 * time.Second}

// maxResponseBytes caps how much of a tool response body is read.
const maxResponseBytes = 4 << 20

// Registry resolves tool definitions by ID.
type Registry interface {
	GetTool(ctx context.Context, id string) (*schema.Tool, error)
}

// InputValidator checks a rendered payload against a tool's declared input
// schema. Satisfied by validation.Validator.
type InputValidator interface {
	ValidateToolInput(input map[string]any, inputSchema []byte) error
}

// Invoker is the tool invocation contract the node executor depends on.
type Invoker interface {
	Invoke(ctx context.Context, toolID string, payload json.RawMessage) (json.RawMessage, error)
}

// HTTPInvoker calls a registered tool's HTTP endpoint with a JSON payload.
type HTTPInvoker struct {
	client    *http.Client
	registry  Registry
	validator InputValidator
}

// NewHTTPInvoker creates an HTTPInvoker backed by the given registry. A nil
// validator skips input-schema enforcement.
func NewHTTPInvoker(registry Registry, validator InputValidator, client *http.Client) *HTTPInvoker {
	if client == nil {
		client = DefaultClient
	}
	return &HTTPInvoker{client: client, registry: registry, validator: validator}
}

// Invoke resolves the tool, POSTs the payload to its endpoint, and returns
// the raw JSON response body. Unknown or disabled tools, transport failures,
// and non-2xx responses all surface as TOOL_EXECUTION_ERROR; payloads
// rejected by the tool's input schema surface as TOOL_INPUT_ERROR.
func (inv *HTTPInvoker) Invoke(ctx context.Context, toolID string, payload json.RawMessage) (json.RawMessage, error) {
	tool, err := inv.registry.GetTool(ctx, toolID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "resolve tool %q: %v", toolID, err).WithCause(err)
	}
	if !tool.Enabled {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "tool %q is disabled", toolID)
	}
	if tool.Endpoint == "" {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "tool %q has no endpoint configured", toolID)
	}

	if err := inv.validateInput(toolID, tool, payload); err != nil {
		return nil, err
	}

	method := tool.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, tool.Endpoint, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "create request for tool %q: %v", toolID, err).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range tool.Headers {
		req.Header.Set(k, v)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "tool %q request failed: %v", toolID, err).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "read tool %q response: %v", toolID, err).WithCause(err)
	}
	if len(raw) > maxResponseBytes {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution,
			"tool %q response exceeds %d bytes", toolID, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeToolExecution,
			"tool %q returned status %d", toolID, resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(raw)})
	}

	if !json.Valid(raw) {
		// Wrap non-JSON responses so the step output stays a JSON value.
		wrapped, err := json.Marshal(map[string]string{"result": string(raw)})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeToolExecution, "wrap tool %q response: %v", toolID, err).WithCause(err)
		}
		return wrapped, nil
	}

	return raw, nil
}

// validateInput enforces the tool's declared input schema, when one exists.
func (inv *HTTPInvoker) validateInput(toolID string, tool *schema.Tool, payload json.RawMessage) error {
	if inv.validator == nil || len(tool.InputSchema) == 0 {
		return nil
	}

	schemaBytes, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeToolExecution, "marshal input schema for tool %q: %v", toolID, err).WithCause(err)
	}

	var input map[string]any
	if err := json.Unmarshal(payload, &input); err != nil {
		return schema.NewErrorf(schema.ErrCodeToolInput,
			"tool %q declares an input schema but the payload is not a JSON object", toolID)
	}
	if err := inv.validator.ValidateToolInput(input, schemaBytes); err != nil {
		return schema.NewErrorf(schema.ErrCodeToolInput, "tool %q rejected input: %v", toolID, err).WithCause(err)
	}
	return nil
}

var _ Invoker = (*HTTPInvoker)(nil)
