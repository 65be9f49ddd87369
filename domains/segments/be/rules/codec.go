package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed ruleset.schema.json
var rulesetSchemaJSON string

// rulesetSchema structurally gates incoming rule payloads before decoding.
// Field names and operator/type compatibility are checked separately by
// Validate so errors can point at the exact leaf.
var rulesetSchema = jsonschema.MustCompileString("ruleset.schema.json", rulesetSchemaJSON)

type nodeEnvelope struct {
	Type     string            `json:"type"`
	Field    string            `json:"field,omitempty"`
	Operator Operator          `json:"operator,omitempty"`
	Value    interface{}       `json:"value,omitempty"`
	Children []json.RawMessage `json:"children,omitempty"`
}

// DecodeRuleSet parses the stored/submitted JSON form of a rule set. The
// payload must match the tagged-variant shape; semantic validation (field
// catalog, operator compatibility) is a separate Validate call.
func DecodeRuleSet(raw []byte) (RuleSet, error) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return RuleSet{}, nil
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return RuleSet{}, fmt.Errorf("decode rule set: %w", err)
	}
	if err := rulesetSchema.Validate(doc); err != nil {
		return RuleSet{}, fmt.Errorf("rule set shape: %w", err)
	}

	root, err := decodeNode(raw)
	if err != nil {
		return RuleSet{}, err
	}
	return RuleSet{Root: root}, nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode rule node: %w", err)
	}

	switch env.Type {
	case "leaf":
		return Leaf{Field: env.Field, Operator: env.Operator, Value: env.Value}, nil
	case "and", "or":
		children := make([]Node, 0, len(env.Children))
		for _, rawChild := range env.Children {
			child, err := decodeNode(rawChild)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if env.Type == "and" {
			return AndGroup{Children: children}, nil
		}
		return OrGroup{Children: children}, nil
	default:
		return nil, fmt.Errorf("unknown rule node type %q", env.Type)
	}
}

// EncodeRuleSet renders the JSON form persisted in the segments table. The
// empty rule set encodes as an empty OR group so the column stays non-null.
func EncodeRuleSet(rs RuleSet) ([]byte, error) {
	if rs.Root == nil {
		return encodeNode(OrGroup{Children: []Node{}})
	}
	return encodeNode(rs.Root)
}

func encodeNode(node Node) ([]byte, error) {
	switch n := node.(type) {
	case Leaf:
		return json.Marshal(nodeEnvelope{Type: "leaf", Field: n.Field, Operator: n.Operator, Value: n.Value})
	case AndGroup:
		return encodeGroup("and", n.Children)
	case OrGroup:
		return encodeGroup("or", n.Children)
	default:
		return nil, fmt.Errorf("unsupported rule node %T", node)
	}
}

func encodeGroup(kind string, children []Node) ([]byte, error) {
	encoded := make([]json.RawMessage, 0, len(children))
	for _, child := range children {
		raw, err := encodeNode(child)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, raw)
	}

	return json.Marshal(struct {
		Type     string            `json:"type"`
		Children []json.RawMessage `json:"children"`
	}{Type: kind, Children: encoded})
}
