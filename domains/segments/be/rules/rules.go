package rules

import (
	"fmt"
)

// Operator enumerates the comparison operators a rule leaf may use.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "notEquals"
	OpGreaterThanOrEqual Operator = "greaterThanOrEqual"
	OpLessThanOrEqual    Operator = "lessThanOrEqual"
	OpContains           Operator = "contains"
	OpIn                 Operator = "in"
	OpIsNull             Operator = "isNull"
	OpIsNotNull          Operator = "isNotNull"
)

// FieldType categorizes a prospect attribute for operator compatibility and
// for the type-dispatched meaning of "contains".
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldNumber      FieldType = "number"
	FieldStringArray FieldType = "stringArray"
)

// FieldSpec describes one recognized prospect attribute.
type FieldSpec struct {
	Column string
	Type   FieldType
}

// fieldCatalog maps rule field names to prospect columns. Scope columns and
// segment_id are deliberately absent: rules can never address them.
var fieldCatalog = map[string]FieldSpec{
	"name":        {Column: "name", Type: FieldString},
	"company":     {Column: "company", Type: FieldString},
	"email":       {Column: "email", Type: FieldString},
	"status":      {Column: "status", Type: FieldString},
	"rating":      {Column: "rating", Type: FieldNumber},
	"reviewCount": {Column: "review_count", Type: FieldNumber},
	"score":       {Column: "score", Type: FieldNumber},
	"tags":        {Column: "tags", Type: FieldStringArray},
}

// LookupField resolves a rule field name to its spec.
func LookupField(name string) (FieldSpec, bool) {
	spec, ok := fieldCatalog[name]
	return spec, ok
}

// Node is one vertex of a rule expression tree: a field predicate leaf, an
// AND group, or an OR group.
type Node interface {
	isNode()
}

// Leaf is a single field predicate. Value is ignored for isNull/isNotNull.
type Leaf struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// AndGroup matches records satisfying every child. An AndGroup with no
// children matches nothing; an accidental "match all" would leak cross-tenant
// rows into a segment.
type AndGroup struct {
	Children []Node
}

// OrGroup matches records satisfying at least one child. An OrGroup with no
// children matches nothing.
type OrGroup struct {
	Children []Node
}

func (Leaf) isNode()     {}
func (AndGroup) isNode() {}
func (OrGroup) isNode()  {}

// RuleSet is the stored matching criteria of a segment. A nil Root is the
// empty rule set and matches zero records.
type RuleSet struct {
	Root Node
}

// ValidationError reports a malformed or type-incompatible rule leaf. It names
// the offending leaf so the caller can correct it; a rule set containing such
// a leaf is never partially applied.
type ValidationError struct {
	Field    string
	Operator Operator
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule leaf (field=%q operator=%q): %s", e.Field, e.Operator, e.Reason)
}

// Validate walks the tree and rejects unknown fields and operators
// incompatible with the field's declared type. Run at save time so bad rule
// sets never persist, and again by Compile.
func (rs RuleSet) Validate() error {
	if rs.Root == nil {
		return nil
	}
	return validateNode(rs.Root)
}

func validateNode(node Node) error {
	switch n := node.(type) {
	case Leaf:
		return validateLeaf(n)
	case AndGroup:
		for _, child := range n.Children {
			if err := validateNode(child); err != nil {
				return err
			}
		}
		return nil
	case OrGroup:
		for _, child := range n.Children {
			if err := validateNode(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported rule node %T", node)
	}
}

func validateLeaf(leaf Leaf) error {
	spec, ok := LookupField(leaf.Field)
	if !ok {
		return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "unknown field"}
	}

	switch leaf.Operator {
	case OpIsNull, OpIsNotNull:
		return nil
	case OpEquals, OpNotEquals:
		if spec.Type == FieldStringArray {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "operator requires a scalar field"}
		}
		return validateScalarValue(leaf, spec)
	case OpGreaterThanOrEqual, OpLessThanOrEqual:
		if spec.Type != FieldNumber {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "operator requires a numeric field"}
		}
		return validateScalarValue(leaf, spec)
	case OpContains:
		if _, ok := leaf.Value.(string); !ok {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value must be a string"}
		}
		if spec.Type == FieldNumber {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "operator requires a string or array field"}
		}
		return nil
	case OpIn:
		if _, err := listValue(leaf, spec); err != nil {
			return err
		}
		return nil
	default:
		return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "unknown operator"}
	}
}

func validateScalarValue(leaf Leaf, spec FieldSpec) error {
	switch spec.Type {
	case FieldString:
		if _, ok := leaf.Value.(string); !ok {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value must be a string"}
		}
	case FieldNumber:
		if _, ok := numberValue(leaf.Value); !ok {
			return &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value must be a number"}
		}
	}
	return nil
}

// numberValue normalizes JSON-decoded and literal numeric values to float64.
func numberValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
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

// listValue coerces an "in" leaf value to the typed slice the store expects.
func listValue(leaf Leaf, spec FieldSpec) (interface{}, error) {
	items, ok := leaf.Value.([]interface{})
	if !ok {
		return nil, &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value must be a list"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value list must not be empty"}
	}

	switch spec.Type {
	case FieldNumber:
		out := make([]float64, 0, len(items))
		for _, item := range items {
			n, ok := numberValue(item)
			if !ok {
				return nil, &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value list must contain only numbers"}
			}
			out = append(out, n)
		}
		return out, nil
	default:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "value list must contain only strings"}
			}
			out = append(out, s)
		}
		return out, nil
	}
}
