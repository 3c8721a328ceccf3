package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to an HTTP status and writes a JSON error body.
// FlowErrors keep their code and details; other errors become 500s.
func writeError(w http.ResponseWriter, err error) {
	var flowErr *schema.FlowError
	if !errors.As(err, &flowErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{
				"code":    schema.ErrCodeInternal,
				"message": err.Error(),
			},
		})
		return
	}

	writeJSON(w, statusForCode(flowErr.Code), map[string]any{"error": flowErr})
}

// writeBadRequest writes a 400 with a VALIDATION_ERROR body.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeError(w, schema.NewError(schema.ErrCodeValidation, msg))
}

func statusForCode(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation, schema.ErrCodeInvalidWorkflow:
		return http.StatusBadRequest
	case schema.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
