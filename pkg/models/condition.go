package models

import (
	"encoding/json"
	"fmt"
)

// FieldID identifies a resolvable property of a tracked item. The set of
// valid fields is closed; the engine keeps a resolver table keyed by FieldID.
type FieldID string

const (
	FieldPrice                FieldID = "price"
	FieldPriceDropPercent     FieldID = "priceDropPercent"
	FieldRecommendation       FieldID = "recommendation"
	FieldRiskLevel            FieldID = "riskLevel"
	FieldVolumeChangePercent  FieldID = "volumeChangePercent"
	FieldPlatform             FieldID = "platform"
	FieldPriceVsAverage       FieldID = "priceVsAverage"
	FieldArbitrageOpportunity FieldID = "arbitrageOpportunity"
)

// Operator is a comparison operator used in a leaf condition.
type Operator string

const (
	OpEq  Operator = "="
	OpNeq Operator = "!="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpIn  Operator = "in"
)

// CompositeKind is the boolean connective of a composite condition.
type CompositeKind string

const (
	KindAnd CompositeKind = "and"
	KindOr  CompositeKind = "or"
	KindNot CompositeKind = "not"
)

// Condition is a node in a boolean expression tree: either a Leaf comparing
// a resolved field against a literal, or a Composite combining children with
// AND/OR/NOT.
type Condition interface {
	isCondition()
}

// Leaf compares a single resolved field against a literal value.
// For the "in" operator the literal must be a slice.
type Leaf struct {
	Field    FieldID     `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// Composite combines child conditions with a boolean connective.
// AND/OR require at least one child; NOT requires exactly one.
type Composite struct {
	Kind     CompositeKind `json:"kind"`
	Children []Condition   `json:"children"`
}

func (Leaf) isCondition()      {}
func (Composite) isCondition() {}

// MarshalJSON emits the composite with its children encoded recursively.
func (c Composite) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, len(c.Children))
	for _, child := range c.Children {
		raw, err := MarshalCondition(child)
		if err != nil {
			return nil, err
		}
		children = append(children, raw)
	}
	return json.Marshal(struct {
		Kind     CompositeKind     `json:"kind"`
		Children []json.RawMessage `json:"children"`
	}{Kind: c.Kind, Children: children})
}

// MarshalCondition serializes a condition tree to its wire form.
func MarshalCondition(c Condition) ([]byte, error) {
	switch node := c.(type) {
	case Leaf:
		return json.Marshal(node)
	case *Leaf:
		return json.Marshal(*node)
	case Composite:
		return node.MarshalJSON()
	case *Composite:
		return node.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown condition type %T", c)
	}
}

// conditionNode is the raw decoding envelope for a single condition node.
type conditionNode struct {
	Field    FieldID           `json:"field"`
	Operator Operator          `json:"operator"`
	Value    interface{}       `json:"value"`
	Kind     CompositeKind     `json:"kind"`
	Children []json.RawMessage `json:"children"`
}

// UnmarshalCondition decodes a condition tree from its wire form. A node with
// a "kind" key is a composite; otherwise it must carry "field" and "operator".
func UnmarshalCondition(data []byte) (Condition, error) {
	var node conditionNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode condition node: %w", err)
	}

	if node.Kind != "" {
		children := make([]Condition, 0, len(node.Children))
		for _, raw := range node.Children {
			child, err := UnmarshalCondition(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return Composite{Kind: node.Kind, Children: children}, nil
	}

	if node.Field == "" {
		return nil, fmt.Errorf("condition node is neither a composite nor a leaf")
	}
	return Leaf{Field: node.Field, Operator: node.Operator, Value: node.Value}, nil
}
