package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/models"
)

// MatchedLeaf records one leaf that evaluated true, with the resolved value
// that satisfied it. The dispatcher builds reason strings and value
// snapshots from these instead of re-fetching anything.
type MatchedLeaf struct {
	Field    models.FieldID
	Operator models.Operator
	Literal  interface{}
	Value    Value
}

// Trace collects the satisfied leaves of one evaluation.
type Trace struct {
	Matched []MatchedLeaf
}

// Evaluate runs the condition tree for one item against the sweep snapshot.
// Composite evaluation short-circuits; a leaf that cannot be resolved or
// whose operator does not fit the value type evaluates false and is logged
// at debug level. Evaluation never returns an error: a malformed leaf must
// not take down sibling conditions or other rules.
func Evaluate(cond models.Condition, itemID string, snapshot *models.MarketSnapshot) bool {
	return evalNode(cond, itemID, snapshot, nil)
}

// EvaluateWithTrace is Evaluate plus a record of the satisfied leaves.
func EvaluateWithTrace(cond models.Condition, itemID string, snapshot *models.MarketSnapshot) (bool, *Trace) {
	trace := &Trace{}
	ok := evalNode(cond, itemID, snapshot, trace)
	return ok, trace
}

func evalNode(cond models.Condition, itemID string, snapshot *models.MarketSnapshot, trace *Trace) bool {
	switch node := cond.(type) {
	case models.Leaf:
		return evalLeaf(node, itemID, snapshot, trace)
	case *models.Leaf:
		return evalLeaf(*node, itemID, snapshot, trace)
	case models.Composite:
		return evalComposite(node, itemID, snapshot, trace)
	case *models.Composite:
		return evalComposite(*node, itemID, snapshot, trace)
	default:
		logrus.Warnf("Unknown condition node type %T, evaluating as false", cond)
		return false
	}
}

func evalComposite(node models.Composite, itemID string, snapshot *models.MarketSnapshot, trace *Trace) bool {
	switch node.Kind {
	case models.KindAnd:
		for _, child := range node.Children {
			if !evalNode(child, itemID, snapshot, trace) {
				return false
			}
		}
		return true
	case models.KindOr:
		for _, child := range node.Children {
			if evalNode(child, itemID, snapshot, trace) {
				return true
			}
		}
		return false
	case models.KindNot:
		if len(node.Children) != 1 {
			logrus.Warnf("NOT composite with %d children, evaluating as false", len(node.Children))
			return false
		}
		// The child's own matched leaves are not part of the satisfying set.
		return !evalNode(node.Children[0], itemID, snapshot, nil)
	default:
		logrus.Warnf("Unknown composite kind %q, evaluating as false", node.Kind)
		return false
	}
}

func evalLeaf(leaf models.Leaf, itemID string, snapshot *models.MarketSnapshot, trace *Trace) bool {
	value, err := Resolve(leaf.Field, itemID, snapshot)
	if err != nil {
		logrus.Debugf("Leaf %s %s: resolution failed for item %s, evaluating false: %v",
			leaf.Field, leaf.Operator, itemID, err)
		return false
	}

	matched, err := compare(value, leaf.Operator, leaf.Value)
	if err != nil {
		logrus.Debugf("Leaf %s %s: comparison failed for item %s, evaluating false: %v",
			leaf.Field, leaf.Operator, itemID, err)
		return false
	}

	if matched && trace != nil {
		trace.Matched = append(trace.Matched, MatchedLeaf{
			Field:    leaf.Field,
			Operator: leaf.Operator,
			Literal:  leaf.Value,
			Value:    value,
		})
	}
	return matched
}

// compare applies the operator to a resolved value and a rule literal.
func compare(value Value, op models.Operator, literal interface{}) (bool, error) {
	switch op {
	case models.OpEq, models.OpNeq:
		equal, err := valueEquals(value, literal)
		if err != nil {
			return false, err
		}
		if op == models.OpNeq {
			return !equal, nil
		}
		return equal, nil

	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if value.Kind != NumberValue {
			return false, fmt.Errorf("%w: %s applied to categorical value", ErrTypeMismatch, op)
		}
		threshold, ok := toNumber(literal)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a numeric literal, got %T", ErrTypeMismatch, op, literal)
		}
		switch op {
		case models.OpGt:
			return value.Num > threshold, nil
		case models.OpGte:
			return value.Num >= threshold, nil
		case models.OpLt:
			return value.Num < threshold, nil
		default:
			return value.Num <= threshold, nil
		}

	case models.OpIn:
		members, ok := toSlice(literal)
		if !ok {
			return false, fmt.Errorf("%w: in requires a set literal, got %T", ErrTypeMismatch, literal)
		}
		for _, member := range members {
			equal, err := valueEquals(value, member)
			if err == nil && equal {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrTypeMismatch, op)
	}
}

func valueEquals(value Value, literal interface{}) (bool, error) {
	switch value.Kind {
	case NumberValue:
		n, ok := toNumber(literal)
		if !ok {
			return false, fmt.Errorf("%w: numeric value compared to %T", ErrTypeMismatch, literal)
		}
		return value.Num == n, nil
	default:
		s, ok := literal.(string)
		if !ok {
			return false, fmt.Errorf("%w: categorical value compared to %T", ErrTypeMismatch, literal)
		}
		return value.Text == s, nil
	}
}

// toNumber accepts the numeric shapes JSON decoding and Go literals produce.
func toNumber(literal interface{}) (float64, bool) {
	switch n := literal.(type) {
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
	default:
		return 0, false
	}
}

func toSlice(literal interface{}) ([]interface{}, bool) {
	switch set := literal.(type) {
	case []interface{}:
		return set, true
	case []string:
		out := make([]interface{}, len(set))
		for i, s := range set {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(set))
		for i, n := range set {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]interface{}, len(set))
		for i, n := range set {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

var validOperators = map[models.Operator]bool{
	models.OpEq: true, models.OpNeq: true,
	models.OpGt: true, models.OpGte: true,
	models.OpLt: true, models.OpLte: true,
	models.OpIn: true,
}

// ValidateCondition is the strict construction-time check run once when a
// rule is accepted: unknown fields, bad operators, wrong composite arity and
// malformed literals are rejected here, not on every sweep.
func ValidateCondition(cond models.Condition) error {
	switch node := cond.(type) {
	case models.Leaf:
		return validateLeaf(node)
	case *models.Leaf:
		return validateLeaf(*node)
	case models.Composite:
		return validateComposite(node)
	case *models.Composite:
		return validateComposite(*node)
	case nil:
		return fmt.Errorf("condition is nil")
	default:
		return fmt.Errorf("unknown condition node type %T", cond)
	}
}

func validateLeaf(leaf models.Leaf) error {
	if !KnownField(leaf.Field) {
		return fmt.Errorf("unknown field %q", leaf.Field)
	}
	if !validOperators[leaf.Operator] {
		return fmt.Errorf("unknown operator %q", leaf.Operator)
	}
	if leaf.Value == nil {
		return fmt.Errorf("leaf on field %q has no literal", leaf.Field)
	}
	if leaf.Operator == models.OpIn {
		if _, ok := toSlice(leaf.Value); !ok {
			return fmt.Errorf("operator in on field %q requires a set literal, got %T", leaf.Field, leaf.Value)
		}
	}
	return nil
}

func validateComposite(node models.Composite) error {
	switch node.Kind {
	case models.KindAnd, models.KindOr:
		if len(node.Children) == 0 {
			return fmt.Errorf("%s composite requires at least one child", node.Kind)
		}
	case models.KindNot:
		if len(node.Children) != 1 {
			return fmt.Errorf("not composite requires exactly one child, got %d", len(node.Children))
		}
	default:
		return fmt.Errorf("unknown composite kind %q", node.Kind)
	}
	for _, child := range node.Children {
		if err := ValidateCondition(child); err != nil {
			return err
		}
	}
	return nil
}
