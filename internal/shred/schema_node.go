package shred

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// schemaNode is one JSON-schema node: a type, optional string-format
// hints, and (for object/array types) its nested schema.
type schemaNode struct {
	Type       json.RawMessage `json:"type"`
	Format     string          `json:"format"`
	MaxLength  *int            `json:"maxLength"`
	Properties *orderedNodes   `json:"properties"`
	Items      *schemaNode     `json:"items"`
}

// normalizedType resolves Type to the single non-null type name. A
// multi-member non-null list collapses to "string" (schema translation
// ambiguity, not an error, per spec.md §7).
func (n schemaNode) normalizedType() string {
	if len(n.Type) == 0 {
		return "string"
	}
	var raw any
	if err := json.Unmarshal(n.Type, &raw); err != nil {
		return "string"
	}
	return normalizeTypeValue(raw)
}

func normalizeTypeValue(raw any) string {
	switch t := raw.(type) {
	case string:
		if t == "" || t == "null" {
			return "string"
		}
		return t
	case []any:
		var nonNull []string
		for _, item := range t {
			if s, ok := item.(string); ok && s != "null" {
				nonNull = append(nonNull, s)
			}
		}
		if len(nonNull) == 1 {
			return nonNull[0]
		}
		return "string"
	default:
		return "string"
	}
}

// isScalar reports whether n's declared type has no intersection with
// {object, array}.
func (n schemaNode) isScalar() bool {
	t := n.normalizedType()
	return t != "object" && t != "array"
}

func (n schemaNode) isObject() bool {
	return n.normalizedType() == "object"
}

func (n schemaNode) isArray() bool {
	return n.normalizedType() == "array"
}

// orderedNode is one named entry of a JSON object, preserving
// declaration order.
type orderedNode struct {
	Name string
	Node schemaNode
}

// orderedNodes decodes a JSON object into a name-ordered slice instead
// of an unordered Go map, so field order in emitted DDL follows schema
// declaration order.
type orderedNodes struct {
	Entries []orderedNode
}

func (o *orderedNodes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("shred: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("shred: expected object key, got %v", keyTok)
		}

		var node schemaNode
		if err := dec.Decode(&node); err != nil {
			return fmt.Errorf("shred: decoding property %q: %w", key, err)
		}
		o.Entries = append(o.Entries, orderedNode{Name: key, Node: node})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
