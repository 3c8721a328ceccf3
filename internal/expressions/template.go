package expressions

import "strings"

// Render substitutes {{name}} references in a template with values from vars.
// Variable names are case-sensitive and whitespace inside the braces is
// ignored ({{ input }} and {{input}} are equivalent). Unknown names are left
// in place as literal text. Substituted values are not re-scanned, so a value
// containing {{...}} does not expand further.
func Render(template string, vars map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		// Write everything before the marker.
		result.WriteString(template[i : i+idx])
		start := i + idx + 2 // skip "{{".

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			// Unclosed marker, keep the rest verbatim.
			result.WriteString(template[i+idx:])
			break
		}
		end += start

		name := strings.TrimSpace(template[start:end])

		if val, ok := vars[name]; ok && name != "" {
			result.WriteString(val)
		} else {
			// Unknown variable, keep the original token.
			result.WriteString(template[i+idx : end+2])
		}

		i = end + 2 // skip "}}".
	}

	return result.String()
}
