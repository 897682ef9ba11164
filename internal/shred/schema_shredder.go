// Package shred implements the schema-driven shredding pipeline: the
// Schema Shredder turns a JSON schema into an ordered set of related
// Tables, and the Record Shredder turns a JSON record into rows across
// those tables.
package shred

import (
	"encoding/json"
	"fmt"

	"github.com/shredsink/shredsink/internal/dotpath"
	"github.com/shredsink/shredsink/internal/table"
	"github.com/shredsink/shredsink/internal/warehouse"
)

// Entry pairs a table's dotted path with the Table built for it.
type Entry struct {
	Path  dotpath.Path
	Table *table.Table
}

// Result is the ordered output of the Schema Shredder: the root table
// first, every child appearing after its parent.
type Result struct {
	Entries []Entry
}

// Lookup returns the Table registered under dotted path key, or nil.
func (r *Result) Lookup(pathKey string) *table.Table {
	for _, e := range r.Entries {
		if e.Path.String() == pathKey {
			return e.Table
		}
	}
	return nil
}

// Shred walks schemaRaw and produces the Table set for one stream.
// primaryKeyPaths are declared primary-key paths rooted at the stream
// name, e.g. [["users", "id"]] (the Initializer prepends the stream
// name to the catalog's raw key paths before calling Shred).
func Shred(schemaRaw json.RawMessage, streamName, namespace string, primaryKeyPaths [][]string, dialect table.Dialect) (*Result, error) {
	var root schemaNode
	if err := json.Unmarshal(schemaRaw, &root); err != nil {
		return nil, fmt.Errorf("shred: decoding schema for stream %q: %w", streamName, err)
	}

	pkByPrefix := make(map[string][]string)
	for _, p := range primaryKeyPaths {
		if len(p) < 2 {
			continue
		}
		prefix := dotpath.Path(p[:len(p)-1]).String()
		last := p[len(p)-1]
		pkByPrefix[prefix] = append(pkByPrefix[prefix], last)
	}

	result := &Result{}
	s := &shredder{
		namespace:  namespace,
		dialect:    dialect,
		pkByPrefix: pkByPrefix,
		result:     result,
	}
	s.walk(root, dotpath.Path{streamName}, nil, false)
	return result, nil
}

type shredder struct {
	namespace  string
	dialect    table.Dialect
	pkByPrefix map[string][]string
	result     *Result
}

func (s *shredder) walk(node schemaNode, path dotpath.Path, parent *table.Table, refKeyInPK bool) *table.Table {
	t := &table.Table{
		Namespace:                s.namespace,
		Name:                     path.TableName(),
		Parent:                   parent,
		ReferenceKeyInPrimaryKey: refKeyInPK,
		Dialect:                  s.dialect,
	}
	if pk, ok := s.pkByPrefix[path.String()]; ok {
		t.PrimaryKeys = append(t.PrimaryKeys, pk...)
	}

	s.result.Entries = append(s.result.Entries, Entry{Path: path, Table: t})

	if node.Properties == nil {
		return t
	}

	for _, entry := range node.Properties.Entries {
		child := entry.Node
		switch {
		case child.isScalar():
			t.Fields = append(t.Fields, table.Field{
				Name: entry.Name,
				Type: s.dialect.MapType(schemaTypeOf(child)),
			})

		case child.isObject():
			if child.Properties != nil {
				s.walk(child, path.Child(entry.Name), t, true)
			} else {
				t.Fields = append(t.Fields, fallbackField(entry.Name, s.dialect))
			}

		case child.isArray():
			if child.Items != nil && child.Items.isObject() && child.Items.Properties != nil {
				s.walk(*child.Items, path.Child(entry.Name), t, false)
			} else {
				t.Fields = append(t.Fields, fallbackField(entry.Name, s.dialect))
			}

		default:
			t.Fields = append(t.Fields, fallbackField(entry.Name, s.dialect))
		}
	}

	return t
}

func fallbackField(name string, dialect table.Dialect) table.Field {
	return table.Field{Name: name, Type: dialect.MapType(warehouse.SchemaType{Type: "string"})}
}

func schemaTypeOf(n schemaNode) warehouse.SchemaType {
	st := warehouse.SchemaType{
		Type:   n.normalizedType(),
		Format: n.Format,
	}
	if n.MaxLength != nil {
		st.MaxLength = *n.MaxLength
	}
	return st
}
