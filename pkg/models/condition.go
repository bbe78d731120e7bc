package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator of the decision condition grammar.
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorGt       Operator = "gt"
	OperatorGte      Operator = "gte"
	OperatorLt       Operator = "lt"
	OperatorLte      Operator = "lte"
	OperatorContains Operator = "contains"
	OperatorExists   Operator = "exists"
)

var operatorSymbols = map[string]Operator{
	"==":       OperatorEq,
	"!=":       OperatorNe,
	">":        OperatorGt,
	">=":       OperatorGte,
	"<":        OperatorLt,
	"<=":       OperatorLte,
	"contains": OperatorContains,
	"exists":   OperatorExists,
}

// Condition is a single sandboxed comparison: a context field, an operator and
// a literal. It is parsed once at registration time and evaluated by direct
// lookup at runtime; raw condition text is never handed to a general-purpose
// expression evaluator.
type Condition struct {
	Field    string   `json:"field"    validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}

// ParseCondition parses condition text of the form "field op literal", e.g.
// `amount > 100`, `status == "open"`, `approved == true` or `customer exists`.
// Literals are numbers, double-quoted strings, true/false or null.
func ParseCondition(text string) (Condition, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return Condition{}, fmt.Errorf("condition %q: want \"field op literal\"", text)
	}

	op, ok := operatorSymbols[fields[1]]
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", text, fields[1])
	}

	cond := Condition{Field: fields[0], Operator: op}

	if op == OperatorExists {
		if len(fields) != 2 {
			return Condition{}, fmt.Errorf("condition %q: exists takes no literal", text)
		}

		return cond, nil
	}

	if len(fields) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want exactly one literal", text)
	}

	value, err := parseLiteral(fields[2])
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", text, err)
	}

	cond.Value = value

	return cond, nil
}

func parseLiteral(token string) (any, error) {
	switch {
	case token == "true":
		return true, nil
	case token == "false":
		return false, nil
	case token == "null":
		return nil, nil
	case strings.HasPrefix(token, `"`) && strings.HasSuffix(token, `"`) && len(token) >= 2:
		return token[1 : len(token)-1], nil
	}

	if n, err := strconv.ParseFloat(token, 64); err == nil {
		return n, nil
	}

	// Bare words compare as strings, matching how trigger data usually
	// arrives from JSON documents.
	return token, nil
}

// Evaluate resolves the condition's field in the given context (dotted paths
// descend into nested maps) and applies the operator. A missing field is
// simply false for every operator except exists.
func (c Condition) Evaluate(context map[string]any) bool {
	value, found := lookupField(context, c.Field)

	if c.Operator == OperatorExists {
		return found
	}

	if !found {
		return false
	}

	switch c.Operator {
	case OperatorEq:
		return compareEqual(value, c.Value)
	case OperatorNe:
		return !compareEqual(value, c.Value)
	case OperatorGt, OperatorGte, OperatorLt, OperatorLte:
		left, leftOK := toFloat(value)
		right, rightOK := toFloat(c.Value)

		if !leftOK || !rightOK {
			return false
		}

		switch c.Operator {
		case OperatorGt:
			return left > right
		case OperatorGte:
			return left >= right
		case OperatorLt:
			return left < right
		default:
			return left <= right
		}
	case OperatorContains:
		haystack, hok := value.(string)
		needle, nok := c.Value.(string)

		return hok && nok && strings.Contains(haystack, needle)
	default:
		return false
	}
}

func lookupField(context map[string]any, field string) (any, bool) {
	parts := strings.Split(field, ".")
	current := any(context)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func compareEqual(left, right any) bool {
	if lf, ok := toFloat(left); ok {
		if rf, ok := toFloat(right); ok {
			return lf == rf
		}
	}

	return left == right
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
