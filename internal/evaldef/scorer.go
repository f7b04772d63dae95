package evaldef

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ScorerList is the scorer section. Every entry must be a mapping; a null
// entry is an error rather than being dropped.
type ScorerList []ScorerConfig

func (l *ScorerList) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: scorer: expected a list, got %s", node.Line, describeNode(node))
	}
	out := make(ScorerList, 0, len(node.Content))
	for i, entry := range node.Content {
		entry = resolveAlias(entry)
		if entry.Kind == yaml.ScalarNode && entry.ShortTag() == "!!null" {
			return fmt.Errorf("line %d: scorer[%d]: entry is null", entry.Line, i)
		}
		var s ScorerConfig
		if err := s.UnmarshalYAML(entry); err != nil {
			return fmt.Errorf("scorer[%d]: %w", i, err)
		}
		out = append(out, s)
	}
	*l = out
	return nil
}

// ScorerConfig is one entry of the scorer list: a type discriminant plus
// every other key of the entry. Mappings at any depth keep document order.
type ScorerConfig struct {
	Type   string `validate:"required"`
	Config *OrderedMap
}

// UnmarshalYAML requires a string "type" key and captures the rest.
func (s *ScorerConfig) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: scorer: expected a mapping, got %s", node.Line, describeNode(node))
	}

	var (
		scorerType string
		hasType    bool
		config     = NewOrderedMap()
	)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := resolveAlias(node.Content[i]), node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: scorer: keys must be scalars", keyNode.Line)
		}
		key := keyNode.Value

		if key == "type" {
			if hasType {
				return fmt.Errorf("line %d: scorer: duplicate key %q", keyNode.Line, key)
			}
			t, ok := stringScalar(resolveAlias(valueNode))
			if !ok {
				return fmt.Errorf("line %d: scorer: type must be a string, got %s", valueNode.Line, describeNode(valueNode))
			}
			scorerType, hasType = t, true
			continue
		}

		if _, exists := config.Get(key); exists {
			return fmt.Errorf("line %d: scorer: duplicate key %q", keyNode.Line, key)
		}
		value, err := decodeValue(valueNode)
		if err != nil {
			return fmt.Errorf("scorer.%s: %w", key, err)
		}
		config.Set(key, value)
	}
	if !hasType {
		return fmt.Errorf("line %d: scorer: missing required key \"type\"", node.Line)
	}

	s.Type = scorerType
	s.Config = config
	return nil
}

// MarshalYAML emits type first, then the captured keys in order.
func (s ScorerConfig) MarshalYAML() (any, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	out.Content = append(out.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "type"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s.Type},
	)
	if s.Config != nil {
		rest, err := s.Config.node()
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, rest.Content...)
	}
	return out, nil
}

// MarshalJSON flattens the captured keys next to "type".
func (s ScorerConfig) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	t, err := json.Marshal(s.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(t)
	if s.Config != nil {
		if err := s.Config.writeFields(&buf, true); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OrderedMap is a string-keyed map that remembers insertion order.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap returns an empty map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: map[string]any{}}
}

// Set adds key or replaces its value in place.
func (m *OrderedMap) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *OrderedMap) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := m.writeFields(&buf, false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap) MarshalYAML() (any, error) {
	return m.node()
}

func (m *OrderedMap) writeFields(buf *bytes.Buffer, leadingComma bool) error {
	if m == nil {
		return nil
	}
	for i, key := range m.keys {
		if leadingComma || i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(m.values[key])
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	return nil
}

func (m *OrderedMap) node() (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if m == nil {
		return out, nil
	}
	for _, key := range m.keys {
		var value yaml.Node
		if err := value.Encode(m.values[key]); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out.Content = append(out.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&value,
		)
	}
	return out, nil
}

// decodeValue decodes a bag value, turning mappings into *OrderedMap so
// nested keys keep their order too. Mapping keys are taken as written.
func decodeValue(node *yaml.Node) (any, error) {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.MappingNode:
		m := NewOrderedMap()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := resolveAlias(node.Content[i])
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: keys must be scalars", keyNode.Line)
			}
			if _, exists := m.Get(keyNode.Value); exists {
				return nil, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
			}
			v, err := decodeValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(keyNode.Value, v)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	}
}
