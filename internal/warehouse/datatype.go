// Package warehouse defines the dialect-independent column type model
// (DataType, SchemaType) that each table.Dialect maps JSON-schema leaf
// types into.
package warehouse

import "fmt"

// DataType pairs a warehouse-level type name with an optional length.
// Length is meaningful only for variable-width string types; a length
// of zero means "no explicit length" and MaxLength means the dialect's
// symbolic unbounded marker (e.g. VARCHAR(MAX)).
type DataType struct {
	Name      string
	Length    int
	MaxLength bool
}

// String renders the DataType as it appears in DDL: "name" or
// "name(length)" or "name(MAX)".
func (d DataType) String() string {
	if d.MaxLength {
		return fmt.Sprintf("%s(MAX)", d.Name)
	}
	if d.Length > 0 {
		return fmt.Sprintf("%s(%d)", d.Name, d.Length)
	}
	return d.Name
}

// SchemaType is the JSON-schema leaf type the Type Mapper resolves
// into a DataType.
type SchemaType struct {
	// Type is the normalized (non-null) JSON-schema type name:
	// string, number, integer, boolean, or anything else (fallback).
	Type string
	// Format is the JSON-schema "format" hint: date-time, time, date,
	// or empty.
	Format string
	// MaxLength is the JSON-schema "maxLength" hint for string types;
	// zero means unspecified.
	MaxLength int
}

// NormalizeType resolves a JSON-schema "type" value, which may be a
// single string or a list such as ["null", "string"], to the single
// non-null type name the Type Mapper should use. A list with more than
// one non-null member is a schema translation ambiguity: the Type
// Mapper collapses it to "string" rather than erroring (per spec.md
// §7, not treated as an error).
func NormalizeType(raw any) string {
	switch t := raw.(type) {
	case string:
		if t == "" || t == "null" {
			return "string"
		}
		return t
	case []any:
		nonNull := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok || s == "null" {
				continue
			}
			nonNull = append(nonNull, s)
		}
		switch len(nonNull) {
		case 0:
			return "string"
		case 1:
			return nonNull[0]
		default:
			return "string"
		}
	default:
		return "string"
	}
}
