package entities

import (
	"encoding/json"
	"fmt"
)

// ConditionType identifies the comparison a leaf condition performs
type ConditionType string

const (
	ConditionEquals      ConditionType = "equals"
	ConditionNotEquals   ConditionType = "not_equals"
	ConditionContains    ConditionType = "contains"
	ConditionNotContains ConditionType = "not_contains"
	ConditionIn          ConditionType = "in"
	ConditionNotIn       ConditionType = "not_in"
	ConditionRange       ConditionType = "range"
	ConditionRegex       ConditionType = "regex"
	// ConditionExpression evaluates a CEL expression against the context
	ConditionExpression ConditionType = "expression"
)

// ConditionOperator combines child conditions in a composite node
type ConditionOperator string

const (
	OperatorAnd ConditionOperator = "and"
	OperatorOr  ConditionOperator = "or"
)

// Condition is a node in an attribute-condition tree. A node is either a
// composite (Operator + Conditions) or a leaf (Property + Type + Value);
// IsComposite distinguishes the two.
//
// Example leaf: {"property": "referenceType", "type": "equals", "value": "3"}
// Example composite: {"operator": "and", "conditions": [ ... ]}
type Condition struct {
	// Composite fields
	Operator   ConditionOperator `json:"operator,omitempty"`
	Conditions []*Condition      `json:"conditions,omitempty"`

	// Leaf fields
	Property string        `json:"property,omitempty"`
	Type     ConditionType `json:"type,omitempty"`
	Value    any           `json:"value,omitempty"`
}

// RangeBounds holds the inclusive bounds of a range condition value.
// Either bound may be absent.
type RangeBounds struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// IsComposite reports whether the node combines child conditions
func (c *Condition) IsComposite() bool {
	return c.Operator != ""
}

// Validate checks that the condition tree is structurally well-formed
func (c *Condition) Validate() error {
	if c == nil {
		return fmt.Errorf("condition is nil")
	}
	if c.IsComposite() {
		if c.Operator != OperatorAnd && c.Operator != OperatorOr {
			return fmt.Errorf("invalid condition operator: %s", c.Operator)
		}
		if len(c.Conditions) == 0 {
			return fmt.Errorf("composite condition has no children")
		}
		for _, child := range c.Conditions {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	switch c.Type {
	case ConditionEquals, ConditionNotEquals, ConditionContains, ConditionNotContains,
		ConditionIn, ConditionNotIn, ConditionRange, ConditionRegex:
		if c.Property == "" {
			return fmt.Errorf("leaf condition requires a property")
		}
	case ConditionExpression:
		if _, ok := c.Value.(string); !ok {
			return fmt.Errorf("expression condition requires a string value")
		}
	default:
		return fmt.Errorf("invalid condition type: %s", c.Type)
	}
	return nil
}

// ParseCondition deserializes and validates a condition tree from JSON
func ParseCondition(data []byte) (*Condition, error) {
	var c Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}
	return &c, nil
}

// RangeValue interprets the leaf's value as range bounds.
// Returns an error when the value is not a {min, max} object.
func (c *Condition) RangeValue() (*RangeBounds, error) {
	data, err := json.Marshal(c.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal range value: %w", err)
	}
	var bounds RangeBounds
	if err := json.Unmarshal(data, &bounds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal range value: %w", err)
	}
	if bounds.Min == nil && bounds.Max == nil {
		return nil, fmt.Errorf("range value has neither min nor max")
	}
	return &bounds, nil
}

// ListValue interprets the leaf's value as a list of values.
// Returns an error when the value is not a list.
func (c *Condition) ListValue() ([]any, error) {
	items, ok := c.Value.([]any)
	if !ok {
		return nil, fmt.Errorf("condition value is not a list: %T", c.Value)
	}
	return items, nil
}
