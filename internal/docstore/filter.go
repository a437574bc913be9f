package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type matchFunc func(doc any) bool

// compileFilter builds a matcher from a Mongo style filter. Top level keys are
// dotted field paths; values are either a literal compared for equality or an
// operator object using $eq, $ne, $gt, $gte, $lt, $lte, $in or $exists.
func compileFilter(filter map[string]any) (matchFunc, error) {
	matchers := make([]matchFunc, 0, len(filter))
	for field, condition := range filter {
		if strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("unsupported top level operator %q", field)
		}
		m, err := compileCondition(strings.Split(field, "."), condition)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", field, err)
		}
		matchers = append(matchers, m)
	}
	return func(doc any) bool {
		for _, m := range matchers {
			if !m(doc) {
				return false
			}
		}
		return true
	}, nil
}

func compileCondition(path []string, condition any) (matchFunc, error) {
	ops, ok := condition.(map[string]any)
	if !ok || !isOperatorObject(ops) {
		return func(doc any) bool {
			value, found := lookup(doc, path)
			return found && equal(value, condition)
		}, nil
	}

	checks := make([]func(value any, found bool) bool, 0, len(ops))
	for op, operand := range ops {
		check, err := compileOperator(op, operand)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return func(doc any) bool {
		value, found := lookup(doc, path)
		for _, check := range checks {
			if !check(value, found) {
				return false
			}
		}
		return true
	}, nil
}

func compileOperator(op string, operand any) (func(value any, found bool) bool, error) {
	switch op {
	case "$eq":
		return func(value any, found bool) bool { return found && equal(value, operand) }, nil
	case "$ne":
		return func(value any, found bool) bool { return !found || !equal(value, operand) }, nil
	case "$gt", "$gte", "$lt", "$lte":
		return func(value any, found bool) bool {
			if !found {
				return false
			}
			cmp, ok := compare(value, operand)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				return cmp > 0
			case "$gte":
				return cmp >= 0
			case "$lt":
				return cmp < 0
			default:
				return cmp <= 0
			}
		}, nil
	case "$in":
		candidates, ok := operand.([]any)
		if !ok {
			return nil, fmt.Errorf("$in requires an array")
		}
		return func(value any, found bool) bool {
			if !found {
				return false
			}
			for _, candidate := range candidates {
				if equal(value, candidate) {
					return true
				}
			}
			return false
		}, nil
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("$exists requires a boolean")
		}
		return func(_ any, found bool) bool { return found == want }, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
}

func isOperatorObject(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}
	return true
}

func lookup(doc any, path []string) (any, bool) {
	current := doc
	for _, part := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if !okA || !okB {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
