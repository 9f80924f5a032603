package executor

import (
	"fmt"
	"os"
	"strings"
)

// Condition expressions gate step execution. The language is deliberately
// small: either a single value checked for truthiness, or a binary
// comparison with == or !=. Values may reference the resolved step
// environment with $VAR or ${VAR}. Examples:
//
//	$DEPLOY_ENV == production
//	$SKIP_TESTS != true
//	${FEATURE_FLAG}
type invalidConditionError struct {
	expr   string
	reason string
}

func (e *invalidConditionError) Error() string {
	return fmt.Sprintf("invalid condition %q: %s", e.expr, e.reason)
}

// CheckCondition validates the expression syntax without evaluating it.
// Used at pipeline validation time so malformed conditions are reported
// before execution starts.
func CheckCondition(expr string) error {
	_, _, _, err := splitCondition(expr)
	return err
}

// EvalCondition evaluates a condition against the resolved environment.
// An empty expression is true (the step always runs).
func EvalCondition(expr string, env map[string]string) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	left, op, right, err := splitCondition(expr)
	if err != nil {
		return false, err
	}

	leftVal := expand(left, env)
	switch op {
	case "":
		return truthy(leftVal), nil
	case "==":
		return leftVal == expand(right, env), nil
	case "!=":
		return leftVal != expand(right, env), nil
	}
	return false, &invalidConditionError{expr: expr, reason: "unsupported operator " + op}
}

// splitCondition returns (left, operator, right). A bare value comes back
// with an empty operator.
func splitCondition(expr string) (string, string, string, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return "", "", "", nil
	}

	for _, op := range []string{"==", "!="} {
		if idx := strings.Index(trimmed, op); idx >= 0 {
			left := strings.TrimSpace(trimmed[:idx])
			right := strings.TrimSpace(trimmed[idx+len(op):])
			if left == "" || right == "" {
				return "", "", "", &invalidConditionError{expr: expr, reason: "missing operand"}
			}
			if strings.Contains(right, "==") || strings.Contains(right, "!=") {
				return "", "", "", &invalidConditionError{expr: expr, reason: "multiple operators"}
			}
			return left, op, right, nil
		}
	}

	if strings.ContainsAny(trimmed, " \t") {
		return "", "", "", &invalidConditionError{expr: expr, reason: "expected a single value or a comparison"}
	}
	return trimmed, "", "", nil
}

// expand substitutes $VAR and ${VAR} references from env and strips
// surrounding quotes. Unknown variables expand to the empty string.
func expand(token string, env map[string]string) string {
	expanded := os.Expand(token, func(name string) string {
		return env[name]
	})
	return strings.Trim(expanded, `"'`)
}

// truthy reports whether a value counts as true: non-empty and not a common
// spelling of false.
func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}
