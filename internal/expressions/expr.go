package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowlab-dev/flowlab/pkg/schema"
)

// ExprEngine implements the Engine interface using expr-lang/expr. It backs
// expr: edge conditions and supports let bindings, array operations (filter,
// map, count, any, all, sum, min, max), string operations, nil coalescing
// (??), optional chaining (?.), and pipe chaining (|).
type ExprEngine struct {
	cache *compileCache[*vm.Program]
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: newCompileCache[*vm.Program]()}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an Expr expression and runs it
// with the data map as its environment, making all keys available as
// top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := e.cache.get(expression, func(src string) (*vm.Program, error) {
		compiled, compileErr := expr.Compile(src,
			expr.Env(env),
			expr.AllowUndefinedVariables(),
		)
		if compileErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"expr compile error in %q: %s", src, compileErr.Error()).
				WithCause(compileErr).
				WithDetails(map[string]any{"expression": src})
		}
		return compiled, nil
	})
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

var _ Engine = (*ExprEngine)(nil)
