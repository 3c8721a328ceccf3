package engine

// ExecutionContext is the per-run mutable state threaded through node
// execution. Input is fixed for the run's lifetime; PrevOutput is updated
// after each step. Vars carries optional caller-supplied named variables
// available to templates and expression conditions.
type ExecutionContext struct {
	Input      string
	PrevOutput string
	Vars       map[string]string
}

// NewExecutionContext seeds a context for a run. PrevOutput starts equal
// to the input so the first template render has both available.
func NewExecutionContext(input string, vars map[string]string) *ExecutionContext {
	return &ExecutionContext{
		Input:      input,
		PrevOutput: input,
		Vars:       vars,
	}
}

// TemplateVars builds the variable map for template rendering. Caller vars
// never shadow the reserved input and prev_output names.
func (ec *ExecutionContext) TemplateVars() map[string]string {
	vars := make(map[string]string, len(ec.Vars)+2)
	for k, v := range ec.Vars {
		vars[k] = v
	}
	vars["input"] = ec.Input
	vars["prev_output"] = ec.PrevOutput
	return vars
}

// ExpressionData builds the data map handed to cel: and expr: edge
// conditions and to transform-node jq programs.
func (ec *ExecutionContext) ExpressionData() map[string]any {
	extra := make(map[string]any, len(ec.Vars))
	for k, v := range ec.Vars {
		extra[k] = v
	}
	return map[string]any{
		"input":       ec.Input,
		"prev_output": ec.PrevOutput,
		"vars":        extra,
	}
}
