package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ConditionKind enumerates the closed set of edge condition predicates.
type ConditionKind string

const (
	ConditionAlways         ConditionKind = "always"
	ConditionNever          ConditionKind = "never"
	ConditionEquals         ConditionKind = "equals"
	ConditionContains       ConditionKind = "contains"
	ConditionGreaterThan    ConditionKind = "greater_than"
	ConditionLessThan       ConditionKind = "less_than"
	ConditionMatchesPattern ConditionKind = "matches_pattern"
)

// EdgeCondition is a predicate over the source node's output, evaluated
// against exactly one field path. It is a closed sum evaluated by a single
// exhaustive match rather than a generic expression interpreter.
type EdgeCondition struct {
	Kind  ConditionKind `json:"kind"            validate:"required"`
	Field string        `json:"field,omitempty"`
	Value any           `json:"value,omitempty"`
}

// Edge is a directed connection between two nodes. An absent condition
// always matches.
type Edge struct {
	ID        string         `json:"id"`
	Source    string         `json:"source" validate:"required"`
	Target    string         `json:"target" validate:"required"`
	Condition *EdgeCondition `json:"condition,omitempty"`
}

// Validate checks that the condition is well formed for its kind.
func (c *EdgeCondition) Validate() error {
	switch c.Kind {
	case ConditionAlways, ConditionNever:
		return nil
	case ConditionEquals, ConditionContains, ConditionGreaterThan, ConditionLessThan:
		if c.Field == "" {
			return fmt.Errorf("condition %s requires a field path", c.Kind)
		}

		return nil
	case ConditionMatchesPattern:
		if c.Field == "" {
			return fmt.Errorf("condition %s requires a field path", c.Kind)
		}

		pattern, ok := c.Value.(string)
		if !ok {
			return fmt.Errorf("condition %s requires a string pattern", c.Kind)
		}

		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("condition %s has invalid pattern: %w", c.Kind, err)
		}

		return nil
	default:
		return fmt.Errorf("unknown condition kind: %s", c.Kind)
	}
}

// Evaluate applies the predicate to the source node's output. Unknown kinds
// evaluate to an error rather than a silent false so that malformed published
// workflows surface immediately.
func (c *EdgeCondition) Evaluate(output map[string]any) (bool, error) {
	switch c.Kind {
	case ConditionAlways:
		return true, nil
	case ConditionNever:
		return false, nil
	case ConditionEquals:
		value, ok := lookupField(output, c.Field)
		if !ok {
			return false, nil
		}

		return equalValues(value, c.Value), nil
	case ConditionContains:
		value, ok := lookupField(output, c.Field)
		if !ok {
			return false, nil
		}

		return containsValue(value, c.Value), nil
	case ConditionGreaterThan:
		return compareField(output, c.Field, c.Value, func(a, b float64) bool { return a > b })
	case ConditionLessThan:
		return compareField(output, c.Field, c.Value, func(a, b float64) bool { return a < b })
	case ConditionMatchesPattern:
		value, ok := lookupField(output, c.Field)
		if !ok {
			return false, nil
		}

		pattern, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("matches_pattern condition requires a string pattern, got %T", c.Value)
		}

		matched, err := regexp.MatchString(pattern, stringify(value))
		if err != nil {
			return false, fmt.Errorf("invalid condition pattern %q: %w", pattern, err)
		}

		return matched, nil
	default:
		return false, fmt.Errorf("unknown condition kind: %s", c.Kind)
	}
}

// lookupField resolves a dot-separated path inside a node output map.
func lookupField(output map[string]any, path string) (any, bool) {
	if output == nil || path == "" {
		return nil, false
	}

	current := any(output)

	for _, part := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func equalValues(a, b any) bool {
	if a == b {
		return true
	}

	// Numeric values arrive as float64 after JSON round-trips; compare
	// numerically when both sides are numbers.
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if aok && bok {
		return af == bf
	}

	return stringify(a) == stringify(b)
}

func containsValue(haystack, needle any) bool {
	switch v := haystack.(type) {
	case string:
		return strings.Contains(v, stringify(needle))
	case []any:
		for _, item := range v {
			if equalValues(item, needle) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := v[stringify(needle)]

		return ok
	default:
		return false
	}
}

func compareField(output map[string]any, path string, threshold any, cmp func(a, b float64) bool) (bool, error) {
	value, ok := lookupField(output, path)
	if !ok {
		return false, nil
	}

	left, lok := toFloat(value)
	right, rok := toFloat(threshold)

	if !lok || !rok {
		return false, fmt.Errorf("numeric comparison requires numbers, got %T and %T", value, threshold)
	}

	return cmp(left, right), nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}
