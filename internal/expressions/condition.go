package expressions

import (
	"context"
	"strconv"
	"strings"
)

// ConditionEvaluator decides whether an edge condition matches a subject
// value. Conditions use the form "<op>:<operand>" with string operators
// (contains, equals, startswith, endswith) and numeric comparisons
// (>, <, >=, <=). Two prefixed forms delegate to an expression engine:
// "cel:<expr>" and "expr:<expr>" evaluate the expression against the run
// data and must yield a boolean.
//
// Every failure mode evaluates to false: malformed conditions, unknown
// operators, non-numeric operands on numeric comparisons, expression
// compile or runtime errors, and non-boolean expression results. A bad
// condition never routes, it falls through to the default edge.
type ConditionEvaluator struct {
	cel  Engine
	expr Engine
}

// NewConditionEvaluator creates a ConditionEvaluator. The cel and expr
// engines are optional; when nil the corresponding prefixed conditions
// evaluate to false.
func NewConditionEvaluator(cel, expr Engine) *ConditionEvaluator {
	return &ConditionEvaluator{cel: cel, expr: expr}
}

// Evaluate evaluates a single edge condition against the subject.
// The data map carries the run scope (subject, input, prev_output, vars)
// for cel: and expr: conditions; built-in operators ignore it.
func (ce *ConditionEvaluator) Evaluate(ctx context.Context, expression, subject string, data map[string]any) bool {
	op, operand, found := strings.Cut(expression, ":")
	if !found {
		return false
	}

	switch op {
	case "contains":
		return strings.Contains(subject, operand)
	case "equals":
		return subject == operand
	case "startswith":
		return strings.HasPrefix(subject, operand)
	case "endswith":
		return strings.HasSuffix(subject, operand)
	case ">", "<", ">=", "<=":
		return compareNumeric(op, subject, operand)
	case "cel":
		return ce.evalEngine(ctx, ce.cel, operand, subject, data)
	case "expr":
		return ce.evalEngine(ctx, ce.expr, operand, subject, data)
	default:
		return false
	}
}

// compareNumeric parses both sides as floats and applies the operator.
// Non-numeric input on either side fails closed.
func compareNumeric(op, subject, operand string) bool {
	lhs, err := strconv.ParseFloat(strings.TrimSpace(subject), 64)
	if err != nil {
		return false
	}
	rhs, err := strconv.ParseFloat(strings.TrimSpace(operand), 64)
	if err != nil {
		return false
	}

	switch op {
	case ">":
		return lhs > rhs
	case "<":
		return lhs < rhs
	case ">=":
		return lhs >= rhs
	case "<=":
		return lhs <= rhs
	}
	return false
}

// evalEngine runs a delegated expression and coerces the result to bool.
func (ce *ConditionEvaluator) evalEngine(ctx context.Context, engine Engine, expression, subject string, data map[string]any) bool {
	if engine == nil {
		return false
	}

	env := make(map[string]any, len(data)+1)
	for k, v := range data {
		env[k] = v
	}
	env["subject"] = subject

	out, err := engine.Evaluate(ctx, expression, env)
	if err != nil {
		return false
	}

	b, ok := out.(bool)
	return ok && b
}
