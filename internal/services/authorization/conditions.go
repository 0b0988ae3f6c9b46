package authorization

import (
	"regexp"
	"strings"

	"github.com/mizutama/torii/internal/entities"
)

// ConditionEvaluator evaluates attribute-condition trees against an
// evaluation context. Every failure mode (malformed payload, missing
// property, type mismatch, bad regex, expression error) evaluates to false:
// a broken condition can never grant access, and never aborts a decision.
type ConditionEvaluator struct {
	cel *CELEngine
}

// NewConditionEvaluator creates a new ConditionEvaluator.
// The CEL engine is optional; without it, expression conditions are false.
func NewConditionEvaluator(cel *CELEngine) *ConditionEvaluator {
	return &ConditionEvaluator{cel: cel}
}

// Evaluate evaluates the condition tree against the context
func (e *ConditionEvaluator) Evaluate(cond *entities.Condition, evalCtx *entities.EvaluationContext) bool {
	if cond == nil || evalCtx == nil {
		return false
	}
	if err := cond.Validate(); err != nil {
		return false
	}
	return e.evaluate(cond, evalCtx)
}

func (e *ConditionEvaluator) evaluate(cond *entities.Condition, evalCtx *entities.EvaluationContext) bool {
	if cond.IsComposite() {
		return e.evaluateComposite(cond, evalCtx)
	}
	return e.evaluateLeaf(cond, evalCtx)
}

func (e *ConditionEvaluator) evaluateComposite(cond *entities.Condition, evalCtx *entities.EvaluationContext) bool {
	switch cond.Operator {
	case entities.OperatorAnd:
		for _, child := range cond.Conditions {
			if !e.evaluate(child, evalCtx) {
				return false
			}
		}
		return len(cond.Conditions) > 0
	case entities.OperatorOr:
		for _, child := range cond.Conditions {
			if e.evaluate(child, evalCtx) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (e *ConditionEvaluator) evaluateLeaf(cond *entities.Condition, evalCtx *entities.EvaluationContext) bool {
	if cond.Type == entities.ConditionExpression {
		return e.evaluateExpression(cond, evalCtx)
	}

	prop, found := evalCtx.Property(cond.Property)
	if !found {
		return false
	}

	switch cond.Type {
	case entities.ConditionEquals, entities.ConditionNotEquals:
		propStr, ok := entities.StringifyValue(prop)
		if !ok {
			return false
		}
		valStr, ok := entities.StringifyValue(cond.Value)
		if !ok {
			return false
		}
		if cond.Type == entities.ConditionEquals {
			return propStr == valStr
		}
		return propStr != valStr

	case entities.ConditionContains, entities.ConditionNotContains:
		propStr, ok := entities.StringifyValue(prop)
		if !ok {
			return false
		}
		valStr, ok := entities.StringifyValue(cond.Value)
		if !ok {
			return false
		}
		contains := strings.Contains(strings.ToLower(propStr), strings.ToLower(valStr))
		if cond.Type == entities.ConditionContains {
			return contains
		}
		return !contains

	case entities.ConditionIn, entities.ConditionNotIn:
		propStr, ok := entities.StringifyValue(prop)
		if !ok {
			return false
		}
		items, err := cond.ListValue()
		if err != nil {
			return false
		}
		member := false
		for _, item := range items {
			if itemStr, ok := entities.StringifyValue(item); ok && itemStr == propStr {
				member = true
				break
			}
		}
		if cond.Type == entities.ConditionIn {
			return member
		}
		return !member

	case entities.ConditionRange:
		n, ok := intValue(prop)
		if !ok {
			return false
		}
		bounds, err := cond.RangeValue()
		if err != nil {
			return false
		}
		if bounds.Min != nil && n < *bounds.Min {
			return false
		}
		if bounds.Max != nil && n > *bounds.Max {
			return false
		}
		return true

	case entities.ConditionRegex:
		pattern, ok := cond.Value.(string)
		if !ok {
			return false
		}
		propStr, ok := entities.StringifyValue(prop)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(propStr)
	}

	return false
}

func (e *ConditionEvaluator) evaluateExpression(cond *entities.Condition, evalCtx *entities.EvaluationContext) bool {
	if e.cel == nil {
		return false
	}
	expr, ok := cond.Value.(string)
	if !ok {
		return false
	}
	result, err := e.cel.Evaluate(expr, evalCtx)
	if err != nil {
		return false
	}
	return result
}

// intValue coerces a property value into an int64 for range comparison.
// Only integer-typed values qualify; fractional floats do not.
func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}
