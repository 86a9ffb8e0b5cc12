package condition

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operator identifies a condition operator. Operators are resolved once at
// parse time so evaluation never dispatches on raw strings.
type Operator int

const (
	OpUnknown Operator = iota
	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpAnd
	OpOr
	OpNot
	OpIn
	OpVar
)

var operatorNames = map[string]Operator{
	"==":  OpEqual,
	"===": OpEqual,
	"!=":  OpNotEqual,
	"!==": OpNotEqual,
	">":   OpGreater,
	">=":  OpGreaterOrEqual,
	"<":   OpLess,
	"<=":  OpLessOrEqual,
	"and": OpAnd,
	"or":  OpOr,
	"not": OpNot,
	"in":  OpIn,
	"var": OpVar,
}

// String returns the canonical operator token.
func (op Operator) String() string {
	for name, o := range operatorNames {
		if o == op && name != "===" && name != "!==" {
			return name
		}
	}
	return "?"
}

// Operand is one argument of an operator: a literal value, a variable
// reference, or a nested expression.
type Operand interface {
	isOperand()
}

// Literal is a constant operand value decoded from JSON.
type Literal struct {
	Value interface{}
}

// VarRef is a dotted-path reference into the evaluation context.
type VarRef struct {
	Path string
}

// Expression is a parsed condition. For OpVar, Path holds the variable path
// and Args is empty. For all other operators Args holds the operands.
//
// Malformed marks expressions whose operand shape does not fit the operator
// (non-array operand, wrong arity). They are kept rather than rejected so
// lenient evaluation can degrade exactly the way the legacy evaluator did.
type Expression struct {
	Op        Operator
	Args      []Operand
	Path      string
	Malformed bool
}

func (Literal) isOperand()     {}
func (VarRef) isOperand()      {}
func (*Expression) isOperand() {}

// SyntaxError describes why an expression was rejected by ParseStrict.
type SyntaxError struct {
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("condition syntax error: %s", e.Reason)
}

func syntaxErrorf(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Reason: fmt.Sprintf(format, args...)}
}

// Parse decodes a condition expression leniently. Inputs that are not a JSON
// object (null, scalars, arrays, invalid JSON) yield a nil expression, which
// evaluates as Indeterminate. Objects with several keys are read in document
// order and only the first key is honored. Operand shape problems are
// recorded on the expression instead of failing.
func Parse(raw []byte) *Expression {
	expr, _ := parse(raw, false)
	return expr
}

// ParseStrict decodes a condition expression and rejects everything Parse
// would silently tolerate: non-object input, multi-key objects, unknown
// operators, wrong operand arity and non-string var paths.
func ParseStrict(raw []byte) (*Expression, error) {
	return parse(raw, true)
}

func parse(raw []byte, strict bool) (*Expression, error) {
	op, operand, nkeys, err := splitExpression(raw)
	if err != nil {
		if strict {
			return nil, syntaxErrorf("expression is not a JSON object: %v", err)
		}
		return nil, nil
	}
	if strict && nkeys > 1 {
		return nil, syntaxErrorf("expression object must have exactly one key, got %d", nkeys)
	}

	operator, known := operatorNames[op]
	if !known {
		if strict {
			return nil, syntaxErrorf("unknown operator %q", op)
		}
		return &Expression{Op: OpUnknown}, nil
	}

	switch operator {
	case OpVar:
		var path string
		if err := json.Unmarshal(operand, &path); err != nil {
			if strict {
				return nil, syntaxErrorf("var path must be a string")
			}
			return &Expression{Op: OpVar, Malformed: true}, nil
		}
		return &Expression{Op: OpVar, Path: path}, nil

	case OpNot:
		arg, err := parseOperand(operand, strict)
		if err != nil {
			return nil, err
		}
		return &Expression{Op: OpNot, Args: []Operand{arg}}, nil

	default:
		items, ok := splitArray(operand)
		if !ok {
			if strict {
				return nil, syntaxErrorf("%s operand must be an array", operator)
			}
			return &Expression{Op: operator, Malformed: true}, nil
		}
		if wantPair(operator) && len(items) != 2 {
			if strict {
				return nil, syntaxErrorf("%s expects 2 operands, got %d", operator, len(items))
			}
			return &Expression{Op: operator, Malformed: true}, nil
		}

		args := make([]Operand, 0, len(items))
		for _, item := range items {
			arg, err := parseOperand(item, strict)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return &Expression{Op: operator, Args: args}, nil
	}
}

func wantPair(op Operator) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual, OpIn:
		return true
	}
	return false
}

// parseOperand decides how a nested value is interpreted: objects carrying a
// "var" key resolve as variable references, other objects are nested
// sub-expressions, everything else is a literal. Operand position determines
// interpretation; this mirrors the persisted expression format.
func parseOperand(raw json.RawMessage, strict bool) (Operand, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err != nil {
			if strict {
				return nil, syntaxErrorf("invalid operand: %v", err)
			}
			return Literal{Value: nil}, nil
		}
		return Literal{Value: v}, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		if strict {
			return nil, syntaxErrorf("invalid operand object: %v", err)
		}
		return Literal{Value: nil}, nil
	}
	if rawPath, ok := probe["var"]; ok {
		var path string
		if err := json.Unmarshal(rawPath, &path); err == nil {
			if strict && path == "" {
				return nil, syntaxErrorf("var reference path must be a non-empty string")
			}
			return VarRef{Path: path}, nil
		}
		if strict {
			return nil, syntaxErrorf("var reference path must be a string")
		}
	}

	expr, err := parse(trimmed, strict)
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// splitExpression reads the first key of a JSON object in document order,
// returning the key, its raw value and the total key count.
func splitExpression(raw []byte) (string, json.RawMessage, int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return "", nil, 0, fmt.Errorf("decode expression: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil, 0, fmt.Errorf("expression must be a JSON object")
	}

	var (
		first     string
		firstVal  json.RawMessage
		keyCount  int
		haveFirst bool
	)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", nil, 0, fmt.Errorf("decode expression key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return "", nil, 0, fmt.Errorf("expression key is not a string")
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return "", nil, 0, fmt.Errorf("decode expression value: %w", err)
		}
		keyCount++
		if !haveFirst {
			first, firstVal, haveFirst = key, val, true
		}
	}
	if !haveFirst {
		return "", nil, 0, fmt.Errorf("expression object is empty")
	}
	return first, firstVal, keyCount, nil
}

func splitArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return items, true
}
