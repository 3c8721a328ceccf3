package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowlab-dev/flowlab/internal/validation"
	"github.com/flowlab-dev/flowlab/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRegistry map[string]*schema.Tool

func (r mapRegistry) GetTool(_ context.Context, id string) (*schema.Tool, error) {
	tool, ok := r[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool %s not found", id)
	}
	return tool, nil
}

func TestInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"weather"}`, string(body))

		_, _ = w.Write([]byte(`{"result":"sunny"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{
		"search": {ID: "search", Endpoint: srv.URL, Enabled: true, Headers: map[string]string{"X-Api-Key": "secret"}},
	}, nil, nil)

	out, err := inv.Invoke(context.Background(), "search", json.RawMessage(`{"query":"weather"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"sunny"}`, string(out))
}

func TestInvokeUnknownTool(t *testing.T) {
	inv := NewHTTPInvoker(mapRegistry{}, nil, nil)

	_, err := inv.Invoke(context.Background(), "ghost", nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
}

func TestInvokeMissingEndpoint(t *testing.T) {
	inv := NewHTTPInvoker(mapRegistry{"bad": {ID: "bad", Enabled: true}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "bad", nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
	assert.Contains(t, flowErr.Message, "no endpoint")
}

func TestInvokeNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream broke`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Enabled: true}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "t", json.RawMessage(`{}`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
	assert.Equal(t, http.StatusBadGateway, flowErr.Details["status"])
}

func TestInvokeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Enabled: true}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "t", json.RawMessage(`{}`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
}

func TestInvokeWrapsNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`plain text result`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Enabled: true}}, nil, nil)

	out, err := inv.Invoke(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"plain text result"}`, string(out))
}

func TestInvokeCustomMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Method: http.MethodPut, Enabled: true}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "t", json.RawMessage(`{}`))
	require.NoError(t, err)
}

func TestInvokeDisabledTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("disabled tool must not be called")
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Enabled: false}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "t", json.RawMessage(`{}`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
	assert.Contains(t, flowErr.Message, "disabled")
}

func TestInvokeValidatesInputSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	validator, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	reg := mapRegistry{"t": {
		ID:       "t",
		Endpoint: srv.URL,
		Enabled:  true,
		InputSchema: map[string]any{
			"type":       "object",
			"required":   []any{"query"},
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
		},
	}}
	inv := NewHTTPInvoker(reg, validator, nil)

	_, err = inv.Invoke(context.Background(), "t", json.RawMessage(`{"wrong":"field"}`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolInput, flowErr.Code)

	_, err = inv.Invoke(context.Background(), "t", json.RawMessage(`{"query":"weather"}`))
	require.NoError(t, err)
}

func TestInvokeRejectsNonObjectWhenSchemaDeclared(t *testing.T) {
	validator, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	reg := mapRegistry{"t": {
		ID:          "t",
		Endpoint:    "http://127.0.0.1:1/unreachable",
		Enabled:     true,
		InputSchema: map[string]any{"type": "object"},
	}}
	inv := NewHTTPInvoker(reg, validator, nil)

	_, err = inv.Invoke(context.Background(), "t", json.RawMessage(`"bare string"`))
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolInput, flowErr.Code)
}

func TestInvokeOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxResponseBytes+2))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(mapRegistry{"t": {ID: "t", Endpoint: srv.URL, Enabled: true}}, nil, nil)

	_, err := inv.Invoke(context.Background(), "t", nil)
	require.Error(t, err)

	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, schema.ErrCodeToolExecution, flowErr.Code)
	assert.Contains(t, flowErr.Message, "exceeds")
}
