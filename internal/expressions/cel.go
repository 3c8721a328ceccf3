package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression
// Language. It evaluates cel: edge conditions during run routing.
type CELEngine struct {
	env   *cel.Env
	cache *compileCache[cel.Program]
}

// NewCELEngine creates a new CEL expression engine with a sandboxed
// environment. The environment exposes four top-level variables:
//   - subject (string), the value the edge condition is tested against
//   - input (string), the run's original input
//   - prev_output (string), the most recent node output
//   - vars (map of string to dyn), extra run variables
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("subject", cel.StringType),
		cel.Variable("input", cel.StringType),
		cel.Variable("prev_output", cel.StringType),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: newCompileCache[cel.Program](),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates
// it against the provided data. The data map should contain keys matching the
// environment variables: subject, input, prev_output, vars.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.cache.get(expression, e.compile)
	if err != nil {
		return nil, err
	}

	// Defaults for missing keys avoid CEL runtime nil-ref errors.
	out, _, err := prg.Eval(buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return prg, nil
}

// buildActivation creates the evaluation activation map from the data.
// Missing string keys default to "" and vars defaults to an empty map.
func buildActivation(data map[string]any) map[string]any {
	activation := make(map[string]any, 4)

	for _, key := range []string{"subject", "input", "prev_output"} {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = ""
		}
	}
	if v, ok := data["vars"]; ok && v != nil {
		activation["vars"] = v
	} else {
		activation["vars"] = map[string]any{}
	}

	return activation
}

var _ Engine = (*CELEngine)(nil)
