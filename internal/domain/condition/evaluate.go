package condition

import (
	"strconv"
	"strings"
)

// Outcome is the result of evaluating a condition expression.
type Outcome int

const (
	// NotSatisfied means the condition evaluated to false.
	NotSatisfied Outcome = iota
	// Satisfied means the condition evaluated to true.
	Satisfied
	// Indeterminate means the expression could not be interpreted (absent,
	// non-object input or an unknown operator). The policy decides how an
	// indeterminate guard is treated.
	Indeterminate
)

// String returns a label suitable for logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Satisfied:
		return "satisfied"
	case NotSatisfied:
		return "not_satisfied"
	default:
		return "indeterminate"
	}
}

// Bool resolves the outcome under the given policy.
func (o Outcome) Bool(policy Policy) bool {
	switch o {
	case Satisfied:
		return true
	case NotSatisfied:
		return false
	default:
		return policy == FailOpen
	}
}

// Policy decides how indeterminate guards resolve.
type Policy int

const (
	// FailOpen treats indeterminate guards as satisfied. This is the legacy
	// default: a guard that cannot be interpreted does not block a
	// transition.
	FailOpen Policy = iota
	// FailClosed treats indeterminate guards as not satisfied.
	FailClosed
)

// Context is the data a guard reads via {"var": "dotted.path"} references.
type Context map[string]interface{}

// Evaluate evaluates a parsed expression against the context. A nil
// expression is Indeterminate (vacuously satisfied under FailOpen). Nested
// indeterminate sub-expressions are resolved inline by the policy, so only a
// root-level interpretation failure surfaces as Indeterminate.
func Evaluate(expr *Expression, ctx Context, policy Policy) Outcome {
	if expr == nil || expr.Op == OpUnknown {
		return Indeterminate
	}
	if evalBool(expr, ctx, policy) {
		return Satisfied
	}
	return NotSatisfied
}

// Eval is the lenient entry point: parse raw JSON and evaluate fail-open.
// It reproduces the behavior of the legacy evaluator bit for bit, including
// the permissive default for malformed input.
func Eval(raw []byte, ctx Context) bool {
	return Evaluate(Parse(raw), ctx, FailOpen).Bool(FailOpen)
}

func evalBool(expr *Expression, ctx Context, policy Policy) bool {
	if expr == nil || expr.Op == OpUnknown {
		return policy == FailOpen
	}

	switch expr.Op {
	case OpEqual:
		if expr.Malformed {
			return false
		}
		return looseEqual(resolve(expr.Args[0], ctx, policy), resolve(expr.Args[1], ctx, policy))

	case OpNotEqual:
		if expr.Malformed {
			return true
		}
		return !looseEqual(resolve(expr.Args[0], ctx, policy), resolve(expr.Args[1], ctx, policy))

	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		if expr.Malformed {
			return false
		}
		left, lok := toNumber(resolve(expr.Args[0], ctx, policy))
		right, rok := toNumber(resolve(expr.Args[1], ctx, policy))
		if !lok || !rok {
			// NaN comparisons are always false.
			return false
		}
		switch expr.Op {
		case OpGreater:
			return left > right
		case OpGreaterOrEqual:
			return left >= right
		case OpLess:
			return left < right
		default:
			return left <= right
		}

	case OpAnd:
		if expr.Malformed {
			return false
		}
		// Vacuous conjunction is satisfied.
		for _, arg := range expr.Args {
			if !operandExprBool(arg, ctx, policy) {
				return false
			}
		}
		return true

	case OpOr:
		if expr.Malformed {
			return false
		}
		for _, arg := range expr.Args {
			if operandExprBool(arg, ctx, policy) {
				return true
			}
		}
		return false

	case OpNot:
		if len(expr.Args) != 1 {
			return false
		}
		return !operandExprBool(expr.Args[0], ctx, policy)

	case OpIn:
		if expr.Malformed {
			return false
		}
		needle := resolve(expr.Args[0], ctx, policy)
		haystack, ok := resolve(expr.Args[1], ctx, policy).([]interface{})
		if !ok {
			return false
		}
		for _, item := range haystack {
			if looseEqual(needle, item) {
				return true
			}
		}
		return false

	case OpVar:
		if expr.Malformed {
			return false
		}
		return truthy(lookup(expr.Path, ctx))

	default:
		return policy == FailOpen
	}
}

// operandExprBool evaluates an operand in a logical position (and, or,
// not). Logical positions always interpret their operands as expressions:
// variable references collapse to truthiness and literals (which are not
// expressions) take the permissive default.
func operandExprBool(arg Operand, ctx Context, policy Policy) bool {
	switch v := arg.(type) {
	case *Expression:
		return evalBool(v, ctx, policy)
	case VarRef:
		return truthy(lookup(v.Path, ctx))
	default:
		return policy == FailOpen
	}
}

// resolve turns an operand into a value: literals pass through, var
// references read the context and nested expressions collapse to their
// boolean result.
func resolve(arg Operand, ctx Context, policy Policy) interface{} {
	switch v := arg.(type) {
	case Literal:
		return v.Value
	case VarRef:
		return lookup(v.Path, ctx)
	case *Expression:
		if v != nil && v.Op == OpVar && !v.Malformed {
			return lookup(v.Path, ctx)
		}
		return evalBool(v, ctx, policy)
	default:
		return nil
	}
}

// lookup walks a dotted path through nested maps. Missing segments resolve
// to nil, never an error.
func lookup(path string, ctx Context) interface{} {
	if path == "" {
		return nil
	}
	var current interface{} = map[string]interface{}(ctx)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[segment]
	}
	return current
}

// looseEqual compares two resolved values. Numbers compare numerically
// across int/float types; other scalars compare by value. Composite values
// never compare equal, matching the reference semantics where two distinct
// arrays are distinct.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, aok := numericValue(a); aok {
		bn, bok := numericValue(b)
		return bok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// numericValue reports whether v is a number and returns it as float64.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toNumber coerces a value for ordering comparisons: numbers pass through,
// numeric strings parse, booleans map to 0/1, the empty string is 0. A nil
// (missing variable) and everything else is NaN and the comparison fails.
func toNumber(v interface{}) (float64, bool) {
	if n, ok := numericValue(v); ok {
		return n, true
	}
	switch t := v.(type) {
	case nil:
		return 0, false
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// truthy applies the reference truthiness rules: false, 0, "" and nil are
// false, everything else (including empty collections) is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if n, ok := numericValue(v); ok {
			return n != 0
		}
		return true
	}
}
