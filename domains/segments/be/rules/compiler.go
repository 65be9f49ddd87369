package rules

import (
	"fmt"
	"strings"

	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

// Predicate is the store-native filter produced by Compile: a SQL boolean
// expression over the prospects table with positional pgx arguments. Opaque to
// callers beyond handing it to the prospect store.
type Predicate struct {
	Where string
	Args  []interface{}
}

// Clause satisfies the prospect store's predicate contract.
func (p Predicate) Clause() (string, []interface{}) {
	return p.Where, p.Args
}

// Compile translates a rule set plus the caller's tenant scope into a
// Predicate. Pure and deterministic: identical inputs produce byte-identical
// SQL and an identical argument list, so outputs are safe to cache and
// compare. The emitted expression mirrors the source grouping exactly; no
// rebalancing or simplification that could change membership semantics.
//
// The scope clause is always intersected, even for the empty rule set, which
// compiles to a match-nothing predicate rather than match-all.
func Compile(rs RuleSet, s scope.Scope) (Predicate, error) {
	if err := rs.Validate(); err != nil {
		return Predicate{}, err
	}

	b := &predicateBuilder{}

	scopeSQL := b.scopeClause(s)

	ruleSQL := "FALSE"
	if rs.Root != nil {
		var err error
		ruleSQL, err = b.compileNode(rs.Root)
		if err != nil {
			return Predicate{}, err
		}
	}

	return Predicate{
		Where: "(" + scopeSQL + ") AND (" + ruleSQL + ")",
		Args:  b.args,
	}, nil
}

// CompileScopeOnly returns a predicate matching every record visible to the
// scope. Used by the reconciler to address current members and by the
// registry's referential cleanup.
func CompileScopeOnly(s scope.Scope) Predicate {
	b := &predicateBuilder{}
	return Predicate{Where: b.scopeClause(s), Args: b.args}
}

type predicateBuilder struct {
	args []interface{}
}

func (b *predicateBuilder) placeholder(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *predicateBuilder) scopeClause(s scope.Scope) string {
	if s.TenantID != nil {
		return "organization_id = " + b.placeholder(*s.TenantID)
	}
	return "owner_id = " + b.placeholder(s.ActorID)
}

func (b *predicateBuilder) compileNode(node Node) (string, error) {
	switch n := node.(type) {
	case Leaf:
		return b.compileLeaf(n)
	case AndGroup:
		return b.compileGroup(n.Children, " AND ")
	case OrGroup:
		return b.compileGroup(n.Children, " OR ")
	default:
		return "", fmt.Errorf("unsupported rule node %T", node)
	}
}

// compileGroup joins children in source order. Empty groups compile to FALSE:
// a group with no criteria matches nothing.
func (b *predicateBuilder) compileGroup(children []Node, sep string) (string, error) {
	if len(children) == 0 {
		return "FALSE", nil
	}

	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.compileNode(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *predicateBuilder) compileLeaf(leaf Leaf) (string, error) {
	spec, ok := LookupField(leaf.Field)
	if !ok {
		return "", &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "unknown field"}
	}

	col := spec.Column

	switch leaf.Operator {
	case OpIsNull:
		return col + " IS NULL", nil
	case OpIsNotNull:
		return col + " IS NOT NULL", nil
	case OpEquals:
		return col + " = " + b.placeholder(b.scalar(leaf, spec)), nil
	case OpNotEquals:
		return col + " <> " + b.placeholder(b.scalar(leaf, spec)), nil
	case OpGreaterThanOrEqual:
		return col + " >= " + b.placeholder(b.scalar(leaf, spec)), nil
	case OpLessThanOrEqual:
		return col + " <= " + b.placeholder(b.scalar(leaf, spec)), nil
	case OpContains:
		// Type-dispatched: substring match for strings, single-element
		// membership for arrays.
		if spec.Type == FieldStringArray {
			return b.placeholder(leaf.Value) + " = ANY(" + col + ")", nil
		}
		return col + " ILIKE '%' || " + b.placeholder(leaf.Value) + " || '%'", nil
	case OpIn:
		list, err := listValue(leaf, spec)
		if err != nil {
			return "", err
		}
		if spec.Type == FieldStringArray {
			return col + " && " + b.placeholder(list), nil
		}
		return col + " = ANY(" + b.placeholder(list) + ")", nil
	default:
		return "", &ValidationError{Field: leaf.Field, Operator: leaf.Operator, Reason: "unknown operator"}
	}
}

// scalar normalizes a validated scalar leaf value for the store driver.
func (b *predicateBuilder) scalar(leaf Leaf, spec FieldSpec) interface{} {
	if spec.Type == FieldNumber {
		if n, ok := numberValue(leaf.Value); ok {
			return n
		}
	}
	return leaf.Value
}
