package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlab-dev/flowlab/internal/llm"
	"github.com/flowlab-dev/flowlab/internal/server"
	"github.com/flowlab-dev/flowlab/internal/validation"
	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// apiHarness runs the JSON API over the engine harness.
type apiHarness struct {
	*harness
	srv *httptest.Server
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := newHarness(t)

	validator, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	api := server.NewServer(server.Deps{
		Store:     h.store,
		Runner:    h.runner,
		Models:    llm.New(llm.WithEndpoint(h.llmSrv.URL)),
		Validator: validator,
		Hub:       h.hub,
		Logger:    logger,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiHarness{harness: h, srv: srv}
}

func (h *apiHarness) do(method, path string, body any) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPIWorkflowLifecycle(t *testing.T) {
	h := newAPIHarness(t)

	body := map[string]any{
		"name": "greeter",
		"nodes": []map[string]any{
			{"id": "start", "type": "start"},
			{"id": "greet", "type": "agent", "config": map[string]any{
				"prompt_template": "Greet {{input}}",
			}},
			{"id": "end", "type": "end"},
		},
		"edges": []map[string]any{
			{"source": "start", "target": "greet"},
			{"source": "greet", "target": "end"},
		},
	}

	// Create.
	resp := h.do(http.MethodPost, "/api/workflows", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	wf := decodeJSON[schema.Workflow](t, resp)
	require.NotEmpty(t, wf.ID)

	// Run it against the fake LLM.
	resp = h.do(http.MethodPost, "/api/workflows/"+wf.ID+"/run", map[string]any{"input": "ada"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decodeJSON[schema.Run](t, resp)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "echo: Greet ada", run.FinalOutput)

	// The run is retrievable and listed.
	resp = h.do(http.MethodGet, "/api/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeJSON[schema.Run](t, resp)
	assert.Equal(t, run.FinalOutput, fetched.FinalOutput)
	assert.Len(t, fetched.Steps, 3)

	resp = h.do(http.MethodGet, "/api/runs?workflow_id="+wf.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decodeJSON[[]schema.Run](t, resp)
	require.Len(t, runs, 1)

	// Diagram with run overlay.
	resp = h.do(http.MethodGet, "/api/workflows/"+wf.ID+"/diagram?run_id="+run.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	diagram, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(diagram), "graph TD")
	assert.Contains(t, string(diagram), "class greet completed")
}

func TestAPIRejectsInvalidWorkflowShape(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(http.MethodPost, "/api/workflows", map[string]any{
		"name":  "broken",
		"nodes": []map[string]any{{"id": "x", "type": "teleport"}},
		"edges": []map[string]any{},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, schema.ErrCodeValidation, errBody.Error.Code)
}

func TestAPIRunFailureReportedInRun(t *testing.T) {
	h := newAPIHarness(t)

	// Tool node referencing an unregistered tool fails at runtime, not at
	// the request level.
	body := map[string]any{
		"name": "doomed",
		"nodes": []map[string]any{
			{"id": "start", "type": "start"},
			{"id": "call", "type": "tool", "config": map[string]any{"tool_id": "ghost"}},
			{"id": "end", "type": "end"},
		},
		"edges": []map[string]any{
			{"source": "start", "target": "call"},
			{"source": "call", "target": "end"},
		},
	}
	wf := decodeJSON[schema.Workflow](t, h.do(http.MethodPost, "/api/workflows", body))

	resp := h.do(http.MethodPost, "/api/workflows/"+wf.ID+"/run", map[string]any{"input": `{"x":1}`})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decodeJSON[schema.Run](t, resp)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, schema.ErrCodeToolExecution, run.Error.Code)
}

func TestAPIModels(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.do(http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	models := decodeJSON[[]llm.Model](t, resp)
	require.Len(t, models, 1)
	assert.Equal(t, "e2e-model", models[0].ID)
}

func TestAPIRunStreaming(t *testing.T) {
	h := newAPIHarness(t)

	body := map[string]any{
		"name": "streamer",
		"nodes": []map[string]any{
			{"id": "start", "type": "start"},
			{"id": "greet", "type": "agent", "config": map[string]any{
				"prompt_template": "Greet {{input}}",
			}},
			{"id": "end", "type": "end"},
		},
		"edges": []map[string]any{
			{"source": "start", "target": "greet"},
			{"source": "greet", "target": "end"},
		},
	}
	wf := decodeJSON[schema.Workflow](t, h.do(http.MethodPost, "/api/workflows", body))

	resp := h.do(http.MethodPost, "/api/workflows/"+wf.ID+"/run?stream=sse", map[string]any{
		"input": map[string]any{"name": "ada"},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(raw)

	assert.Contains(t, stream, "event: run_queued")
	assert.Contains(t, stream, "event: run_started")
	assert.Contains(t, stream, "event: node_completed")
	assert.Contains(t, stream, "event: run_completed")
	assert.Contains(t, stream, "event: run")

	// The object input was serialized before seeding the run.
	assert.Contains(t, stream, `echo: Greet {\"name\":\"ada\"}`)
}

func TestAPIToolToggleBlocksRun(t *testing.T) {
	h := newAPIHarness(t)

	toolSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(toolSrv.Close)

	tool := decodeJSON[schema.Tool](t, h.do(http.MethodPost, "/api/tools", map[string]any{
		"name":     "pinger",
		"endpoint": toolSrv.URL,
	}))
	require.True(t, tool.Enabled)

	body := map[string]any{
		"name": "ping flow",
		"nodes": []map[string]any{
			{"id": "start", "type": "start"},
			{"id": "ping", "type": "tool", "config": map[string]any{"tool_id": tool.ID}},
			{"id": "end", "type": "end"},
		},
		"edges": []map[string]any{
			{"source": "start", "target": "ping"},
			{"source": "ping", "target": "end"},
		},
	}
	wf := decodeJSON[schema.Workflow](t, h.do(http.MethodPost, "/api/workflows", body))

	// Enabled tool: the run completes.
	run := decodeJSON[schema.Run](t, h.do(http.MethodPost, "/api/workflows/"+wf.ID+"/run", map[string]any{"input": "x"}))
	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	// Disabled tool: the run fails with a tool execution error.
	resp := h.do(http.MethodPost, "/api/tools/"+tool.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	run = decodeJSON[schema.Run](t, h.do(http.MethodPost, "/api/workflows/"+wf.ID+"/run", map[string]any{"input": "x"}))
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, schema.ErrCodeToolExecution, run.Error.Code)
	assert.Contains(t, run.Error.Message, "disabled")
}
