package evaldef

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ModelKind tells which shape a ModelRef was written in.
type ModelKind int

const (
	ModelUnset ModelKind = iota
	ModelSingle
	ModelMultiple
)

func (k ModelKind) String() string {
	switch k {
	case ModelSingle:
		return "single"
	case ModelMultiple:
		return "multiple"
	default:
		return "unset"
	}
}

// ModelRef is either one model identifier or an ordered list of them. The
// document carries no tag; the YAML node shape decides.
type ModelRef struct {
	Kind ModelKind
	IDs  []string
}

// SingleModel returns a ModelRef holding one identifier.
func SingleModel(id string) ModelRef {
	return ModelRef{Kind: ModelSingle, IDs: []string{id}}
}

// MultipleModels returns a ModelRef holding a list of identifiers.
func MultipleModels(ids ...string) ModelRef {
	return ModelRef{Kind: ModelMultiple, IDs: append([]string{}, ids...)}
}

// Models returns the identifiers in document order.
func (m ModelRef) Models() []string { return m.IDs }

// UnmarshalYAML accepts a string scalar, then a sequence of string scalars.
// Anything else, including null and lists mixing strings with other
// values, is rejected.
func (m *ModelRef) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if id, ok := stringScalar(node); ok {
		*m = SingleModel(id)
		return nil
	}
	if node.Kind == yaml.SequenceNode {
		ids := make([]string, 0, len(node.Content))
		for i, item := range node.Content {
			id, ok := stringScalar(resolveAlias(item))
			if !ok {
				return fmt.Errorf("line %d: model[%d]: expected a string, got %s", item.Line, i, describeNode(item))
			}
			ids = append(ids, id)
		}
		*m = ModelRef{Kind: ModelMultiple, IDs: ids}
		return nil
	}
	return fmt.Errorf("line %d: model: expected a string or a list of strings, got %s", node.Line, describeNode(node))
}

// MarshalYAML writes the shape the reference was read from.
func (m ModelRef) MarshalYAML() (any, error) {
	switch m.Kind {
	case ModelSingle:
		return m.IDs[0], nil
	case ModelMultiple:
		return m.IDs, nil
	default:
		return nil, nil
	}
}

func (m ModelRef) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case ModelSingle:
		return json.Marshal(m.IDs[0])
	case ModelMultiple:
		if m.IDs == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(m.IDs)
	default:
		return []byte("null"), nil
	}
}

func stringScalar(node *yaml.Node) (string, bool) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return "", false
	}
	return node.Value, true
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func describeNode(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.ShortTag()
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.MappingNode:
		return "a mapping"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an empty document"
	}
}
