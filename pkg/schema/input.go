package schema

import "encoding/json"

// CoerceInput converts an arbitrary JSON input value into the string that
// seeds a run's input context. JSON strings pass through as their unquoted
// value; every other value keeps its JSON text.
func CoerceInput(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.RawMessage:
		return coerceRawInput(t)
	case []byte:
		return coerceRawInput(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", NewErrorf(ErrCodeValidation, "serialize input: %v", err).WithCause(err)
		}
		return string(b), nil
	}
}

func coerceRawInput(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	if !json.Valid(raw) {
		return "", NewError(ErrCodeValidation, "input is not valid JSON")
	}
	return string(raw), nil
}
