package permission

import (
	"regexp"
	"strconv"
)

// Condition operators. A condition value that is a map holding exactly
// one of these keys is an operator expression; anything else is
// compared for equality.
const (
	opIn    = "$in"
	opGt    = "$gt"
	opLt    = "$lt"
	opRegex = "$regex"
)

// ValidateConditions evaluates a permission's conditions against a
// request context. Every condition must hold; a missing context key,
// an unknown operator, or malformed condition data denies.
func ValidateConditions(p Permission, reqCtx map[string]any) bool {
	if len(p.Conditions) == 0 {
		return true
	}

	for key, expected := range p.Conditions {
		actual, ok := reqCtx[key]
		if !ok {
			return false
		}
		if !conditionHolds(expected, actual) {
			return false
		}
	}

	return true
}

func conditionHolds(expected, actual any) bool {
	expr, ok := expected.(map[string]any)
	if !ok {
		return equalValues(expected, actual)
	}
	if len(expr) != 1 {
		return false
	}

	for op, operand := range expr {
		switch op {
		case opIn:
			list, ok := operand.([]any)
			if !ok {
				return false
			}
			for _, candidate := range list {
				if equalValues(candidate, actual) {
					return true
				}
			}
			return false

		case opGt:
			a, b, ok := numericPair(actual, operand)
			return ok && a > b

		case opLt:
			a, b, ok := numericPair(actual, operand)
			return ok && a < b

		case opRegex:
			pattern, ok := operand.(string)
			if !ok {
				return false
			}
			s, ok := actual.(string)
			if !ok {
				return false
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false
			}
			return re.MatchString(s)

		default:
			return false
		}
	}

	return false
}

func equalValues(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		fb, bok := toFloat(b)
		return bok && fa == fb
	}
	return a == b
}

func numericPair(actual, operand any) (float64, float64, bool) {
	a, aok := toFloat(actual)
	b, bok := toFloat(operand)
	return a, b, aok && bok
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
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
