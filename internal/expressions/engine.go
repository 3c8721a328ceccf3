package expressions

import "context"

// Engine evaluates expressions against run data.
// Three implementations: CEL and Expr (edge conditions), GoJQ (transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
